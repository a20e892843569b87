package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/subvault/internal/authorization"
	vaultdomain "github.com/smallbiznis/subvault/internal/vault/domain"
)

func subscriptionIDParam(c *gin.Context) (uint32, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return uint32(id), true
}

func merchantParam(c *gin.Context) (string, bool) {
	merchant := strings.TrimSpace(c.Param("merchant"))
	if merchant == "" {
		AbortWithError(c, ErrInvalidRequest)
		return "", false
	}
	return merchant, true
}

func (s *Server) CreateSubscription(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectSubscription, authorization.ActionSubscriptionCreate) {
		return
	}

	var req vaultdomain.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.Subscriber = strings.TrimSpace(req.Subscriber)
	req.Merchant = strings.TrimSpace(req.Merchant)

	sub, err := s.vaultSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) GetSubscription(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectSubscription, authorization.ActionSubscriptionView) {
		return
	}

	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	sub, err := s.vaultSvc.GetSubscription(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) GetSubscriptionCount(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectSubscription, authorization.ActionSubscriptionView) {
		return
	}

	count, err := s.vaultSvc.GetSubscriptionCount(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"count": count}})
}

func (s *Server) Deposit(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectSubscription, authorization.ActionSubscriptionDeposit) {
		return
	}

	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	var req vaultdomain.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.SubscriptionID = id
	req.Actor = actorFrom(c)

	sub, err := s.vaultSvc.Deposit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) PauseSubscription(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectSubscription, authorization.ActionSubscriptionPause) {
		return
	}

	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	if err := s.vaultSvc.Pause(c.Request.Context(), id, actorFrom(c)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"status": vaultdomain.StatusPaused}})
}

func (s *Server) ResumeSubscription(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectSubscription, authorization.ActionSubscriptionResume) {
		return
	}

	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	if err := s.vaultSvc.Resume(c.Request.Context(), id, actorFrom(c)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"status": vaultdomain.StatusActive}})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectSubscription, authorization.ActionSubscriptionCancel) {
		return
	}

	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	refund, err := s.vaultSvc.Cancel(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"status": vaultdomain.StatusCancelled,
		"refund": refund,
	}})
}

func (s *Server) NextChargeInfo(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectSubscription, authorization.ActionSubscriptionView) {
		return
	}

	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	info, err := s.vaultSvc.NextChargeInfo(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": info})
}

func (s *Server) EstimateTopup(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectSubscription, authorization.ActionSubscriptionView) {
		return
	}

	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	intervals, err := strconv.ParseUint(c.DefaultQuery("intervals", "1"), 10, 32)
	if err != nil || intervals == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	amount, err := s.vaultSvc.EstimateTopupForIntervals(c.Request.Context(), id, uint32(intervals))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"required_topup": amount}})
}

func (s *Server) ChargeOne(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectBilling, authorization.ActionBillingCharge) {
		return
	}

	var req vaultdomain.ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.vaultSvc.ChargeOne(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"charged": true}})
}

func (s *Server) ChargeUsage(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectBilling, authorization.ActionBillingChargeUsage) {
		return
	}

	var req vaultdomain.ChargeUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.vaultSvc.ChargeUsage(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"charged": true}})
}

func (s *Server) BatchCharge(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectBilling, authorization.ActionBillingBatchCharge) {
		return
	}

	var req vaultdomain.BatchChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.Actor = actorFrom(c)

	results, err := s.vaultSvc.BatchCharge(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": results})
}

func (s *Server) ListDueSubscriptions(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectBilling, authorization.ActionBillingBatchCharge) {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ids, err := s.vaultSvc.ListDueSubscriptionIDs(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ids})
}

func (s *Server) GetMerchantBalance(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectMerchant, authorization.ActionMerchantList) {
		return
	}

	merchant, ok := merchantParam(c)
	if !ok {
		return
	}

	balance, err := s.vaultSvc.GetMerchantBalance(c.Request.Context(), merchant)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"merchant": merchant, "balance": balance}})
}

func (s *Server) ListMerchantSubscriptions(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectMerchant, authorization.ActionMerchantList) {
		return
	}

	merchant, ok := merchantParam(c)
	if !ok {
		return
	}

	var query struct {
		StartID uint32 `form:"start_id"`
		Limit   int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	subs, err := s.vaultSvc.ListByMerchant(c.Request.Context(), vaultdomain.ListByMerchantRequest{
		Merchant: merchant,
		StartID:  query.StartID,
		Limit:    query.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": subs})
}

func (s *Server) GetMerchantSubscriptionCount(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectMerchant, authorization.ActionMerchantList) {
		return
	}

	merchant, ok := merchantParam(c)
	if !ok {
		return
	}

	count, err := s.vaultSvc.GetMerchantSubscriptionCount(c.Request.Context(), merchant)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"merchant": merchant, "count": count}})
}

func (s *Server) WithdrawMerchantFunds(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectMerchant, authorization.ActionMerchantWithdraw) {
		return
	}

	merchant, ok := merchantParam(c)
	if !ok {
		return
	}

	var req vaultdomain.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.Merchant = merchant

	if err := s.vaultSvc.WithdrawMerchantFunds(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"withdrawn": true}})
}

func (s *Server) BatchWithdrawMerchantFunds(c *gin.Context) {
	if !s.authorize(c, authorization.ObjectMerchant, authorization.ActionMerchantWithdraw) {
		return
	}

	merchant, ok := merchantParam(c)
	if !ok {
		return
	}

	var req vaultdomain.BatchWithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.Merchant = merchant

	results, err := s.vaultSvc.BatchWithdrawMerchantFunds(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": results})
}
