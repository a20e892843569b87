package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	admindomain "github.com/smallbiznis/subvault/internal/admin/domain"
	"github.com/smallbiznis/subvault/internal/authorization"
	"github.com/smallbiznis/subvault/internal/safemath"
)

func (s *Server) GetVaultStatus(c *gin.Context) {
	stopped, err := s.adminSvc.IsStopped(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"stopped": stopped}})
}

func (s *Server) GetAdmin(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectVault, authorization.ActionVaultConfigure) {
		return
	}

	admin, err := s.adminSvc.GetAdmin(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"admin": admin}})
}

func (s *Server) RotateAdmin(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectVault, authorization.ActionVaultRotate) {
		return
	}

	var req struct {
		NewAdmin string `json:"new_admin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.adminSvc.RotateAdmin(c.Request.Context(), actorFrom(c), req.NewAdmin); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"admin": req.NewAdmin}})
}

func (s *Server) GetMinTopup(c *gin.Context) {
	minTopup, err := s.adminSvc.GetMinTopup(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"min_topup": minTopup}})
}

func (s *Server) SetMinTopup(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectVault, authorization.ActionVaultConfigure) {
		return
	}

	var req struct {
		Amount safemath.Int128 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.adminSvc.SetMinTopup(c.Request.Context(), actorFrom(c), req.Amount); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"min_topup": req.Amount}})
}

func (s *Server) EmergencyStop(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectVault, authorization.ActionVaultStop) {
		return
	}

	if err := s.adminSvc.EmergencyStop(c.Request.Context(), actorFrom(c)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"stopped": true}})
}

func (s *Server) ResumeVault(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectVault, authorization.ActionVaultStop) {
		return
	}

	if err := s.adminSvc.ResumeVault(c.Request.Context(), actorFrom(c)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"stopped": false}})
}

func (s *Server) RecoverStrandedFunds(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectVault, authorization.ActionVaultRecover) {
		return
	}

	var req admindomain.RecoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.Actor = actorFrom(c)

	if err := s.adminSvc.RecoverStrandedFunds(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"recovered": true}})
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectVault, authorization.ActionVaultAuditView) {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	logs, err := s.auditSvc.Recent(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}
