package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	admindomain "github.com/smallbiznis/subvault/internal/admin/domain"
	auditdomain "github.com/smallbiznis/subvault/internal/audit/domain"
	"github.com/smallbiznis/subvault/internal/authorization"
	"github.com/smallbiznis/subvault/internal/config"
	vaultdomain "github.com/smallbiznis/subvault/internal/vault/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	log      *zap.Logger
	vaultSvc vaultdomain.Service
	adminSvc admindomain.Service
	auditSvc auditdomain.Service
	authzSvc authorization.Service
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Log      *zap.Logger
	VaultSvc vaultdomain.Service
	AdminSvc admindomain.Service
	AuditSvc auditdomain.Service
	AuthzSvc authorization.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		log:      p.Log.Named("http.server"),
		vaultSvc: p.VaultSvc,
		adminSvc: p.AdminSvc,
		auditSvc: p.AuditSvc,
		authzSvc: p.AuthzSvc,
	}

	svc.registerVaultRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerVaultRoutes() {
	v1 := s.engine.Group("/v1")

	subs := v1.Group("/subscriptions")
	{
		subs.POST("", s.CreateSubscription)
		subs.GET("/count", s.GetSubscriptionCount)
		subs.GET("/:id", s.GetSubscription)
		subs.POST("/:id/deposit", s.Deposit)
		subs.POST("/:id/pause", s.PauseSubscription)
		subs.POST("/:id/resume", s.ResumeSubscription)
		subs.POST("/:id/cancel", s.CancelSubscription)
		subs.GET("/:id/next-charge", s.NextChargeInfo)
		subs.GET("/:id/topup-estimate", s.EstimateTopup)
	}

	billing := v1.Group("/billing")
	{
		billing.POST("/charge", s.ChargeOne)
		billing.POST("/charge-usage", s.ChargeUsage)
		billing.POST("/batch-charge", s.BatchCharge)
		billing.GET("/due", s.ListDueSubscriptions)
	}

	merchants := v1.Group("/merchants/:merchant")
	{
		merchants.GET("/balance", s.GetMerchantBalance)
		merchants.GET("/subscriptions", s.ListMerchantSubscriptions)
		merchants.GET("/subscriptions/count", s.GetMerchantSubscriptionCount)
		merchants.POST("/withdraw", s.WithdrawMerchantFunds)
		merchants.POST("/batch-withdraw", s.BatchWithdrawMerchantFunds)
	}
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/v1/vault")

	admin.GET("/status", s.GetVaultStatus)
	admin.GET("/admin", s.GetAdmin)
	admin.POST("/admin/rotate", s.RotateAdmin)
	admin.GET("/min-topup", s.GetMinTopup)
	admin.PUT("/min-topup", s.SetMinTopup)
	admin.POST("/stop", s.EmergencyStop)
	admin.POST("/resume", s.ResumeVault)
	admin.POST("/recover", s.RecoverStrandedFunds)
	admin.GET("/audit-logs", s.ListAuditLogs)
}

// actorFrom resolves the caller principal. Identity verification lives at the
// edge; the service trusts the header the gateway injects.
func actorFrom(c *gin.Context) string {
	return c.GetHeader("X-Actor")
}

func (s *Server) authorize(c *gin.Context, object, action string) bool {
	if err := s.authzSvc.Authorize(c.Request.Context(), actorFrom(c), object, action); err != nil {
		AbortWithError(c, err)
		return false
	}
	return true
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
