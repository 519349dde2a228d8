package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/paissive/monetize/internal/analytics"
	analyticsdomain "github.com/paissive/monetize/internal/analytics/domain"
	"github.com/paissive/monetize/internal/config"
	"github.com/paissive/monetize/internal/invoice"
	invoicedomain "github.com/paissive/monetize/internal/invoice/domain"
	obslogger "github.com/paissive/monetize/internal/observability/logger"
	obsmetrics "github.com/paissive/monetize/internal/observability/metrics"
	obstracing "github.com/paissive/monetize/internal/observability/tracing"
	"github.com/paissive/monetize/internal/payment"
	paymentdomain "github.com/paissive/monetize/internal/payment/domain"
	"github.com/paissive/monetize/internal/plan"
	plandomain "github.com/paissive/monetize/internal/plan/domain"
	"github.com/paissive/monetize/internal/pricing"
	pricingdomain "github.com/paissive/monetize/internal/pricing/domain"
	"github.com/paissive/monetize/internal/proration"
	"github.com/paissive/monetize/internal/providers/pdf"
	"github.com/paissive/monetize/internal/ratelimit"
	"github.com/paissive/monetize/internal/subscription"
	subscriptiondomain "github.com/paissive/monetize/internal/subscription/domain"
	"github.com/paissive/monetize/internal/usage"
	usagedomain "github.com/paissive/monetize/internal/usage/domain"
)

var Module = fx.Module("http.server",
	pdf.Module,
	usage.Module,
	pricing.Module,
	proration.Module,
	plan.Module,
	payment.Module,
	subscription.Module,
	invoice.Module,
	analytics.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, metrics *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(metrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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

type Server struct {
	engine *gin.Engine
	cfg    config.Config

	usageSvc        usagedomain.Service
	pricingSvc      pricingdomain.Catalog
	planSvc         plandomain.Service
	subscriptionSvc subscriptiondomain.Service
	paymentSvc      paymentdomain.Service
	invoiceSvc      invoicedomain.Service
	analyticsSvc    analyticsdomain.Service

	usageLimiter *ratelimit.UsageIngestLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	UsageSvc        usagedomain.Service
	PricingSvc      pricingdomain.Catalog
	PlanSvc         plandomain.Service
	SubscriptionSvc subscriptiondomain.Service
	PaymentSvc      paymentdomain.Service
	InvoiceSvc      invoicedomain.Service
	AnalyticsSvc    analyticsdomain.Service
	UsageLimiter    *ratelimit.UsageIngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		usageSvc:        p.UsageSvc,
		pricingSvc:      p.PricingSvc,
		planSvc:         p.PlanSvc,
		subscriptionSvc: p.SubscriptionSvc,
		paymentSvc:      p.PaymentSvc,
		invoiceSvc:      p.InvoiceSvc,
		analyticsSvc:    p.AnalyticsSvc,
		usageLimiter:    p.UsageLimiter,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/usage", s.UsageIngestRateLimit(), s.TrackUsage)
	v1.GET("/usage", s.ListUsageRecords)
	v1.GET("/usage/check", s.CheckUsage)
	v1.GET("/usage/summary", s.UsageSummary)
	v1.GET("/usage/trends", s.UsageTrends)
	v1.PUT("/usage/limits", s.SetUsageLimit)
	v1.GET("/usage/limits", s.ListUsageLimits)

	v1.POST("/pricing/rules", s.CreatePricingRule)
	v1.GET("/pricing/rules", s.ListPricingRules)
	v1.GET("/pricing/cost", s.CalculateCost)

	v1.POST("/plans", s.CreatePlan)
	v1.GET("/plans", s.ListPlans)
	v1.GET("/plans/:id", s.GetPlan)
	v1.PATCH("/plans/:id", s.UpdatePlan)
	v1.DELETE("/plans/:id", s.ArchivePlan)

	v1.POST("/subscriptions", s.CreateSubscription)
	v1.GET("/subscriptions", s.ListSubscriptions)
	v1.GET("/subscriptions/:id", s.GetSubscription)
	v1.POST("/subscriptions/:id/cancel", s.CancelSubscription)
	v1.POST("/subscriptions/:id/change-plan", s.ChangeSubscriptionPlan)

	v1.POST("/transactions", s.CreateCharge)
	v1.GET("/transactions", s.ListTransactions)
	v1.GET("/transactions/:id", s.GetTransaction)
	v1.POST("/transactions/:id/refund", s.RefundTransaction)

	v1.POST("/invoices", s.CreateInvoice)
	v1.GET("/invoices", s.ListInvoices)
	v1.GET("/invoices/:id", s.GetInvoice)
	v1.GET("/invoices/:id/pdf", s.RenderInvoicePDF)
	v1.POST("/invoices/:id/send", s.SendInvoice)
	v1.POST("/invoices/:id/pay", s.PayInvoice)
	v1.POST("/invoices/:id/void", s.VoidInvoice)

	v1.GET("/analytics/overview", s.AnalyticsOverview)
	v1.POST("/analytics/revenue-projections", s.ForecastRevenue)
}
