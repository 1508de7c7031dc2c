package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/campforge/campforge/internal/audit"
	"github.com/campforge/campforge/internal/config"
	"github.com/campforge/campforge/internal/notification"
	notificationdomain "github.com/campforge/campforge/internal/notification/domain"
	"github.com/campforge/campforge/internal/revenue"
	"github.com/campforge/campforge/internal/royalty"
	royaltydomain "github.com/campforge/campforge/internal/royalty/domain"
	"github.com/campforge/campforge/internal/scheduler"
	"github.com/campforge/campforge/internal/snapshot"
	snapshotdomain "github.com/campforge/campforge/internal/snapshot/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	notification.Module,
	revenue.Module,
	royalty.Module,
	snapshot.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
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
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node

	royaltySvc  royaltydomain.Service
	snapshotSvc snapshotdomain.Service
	notifier    notificationdomain.Service
	sched       *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Engine *gin.Engine
	Cfg    config.Config
	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node

	RoyaltySvc  royaltydomain.Service
	SnapshotSvc snapshotdomain.Service
	Notifier    notificationdomain.Service
	Sched       *scheduler.Scheduler
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine: p.Engine,
		cfg:    p.Cfg,
		db:     p.DB,
		log:    p.Log.Named("http.server"),
		genID:  p.GenID,

		royaltySvc:  p.RoyaltySvc,
		snapshotSvc: p.SnapshotSvc,
		notifier:    p.Notifier,
		sched:       p.Sched,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	automation := v1.Group("/automation")
	automation.POST("/run", s.TriggerAutomationRun)
	if !s.cfg.IsProduction() {
		// Manual browser trigger for development and staging.
		automation.GET("/run", s.TriggerAutomationRun)
	}

	invoices := v1.Group("/royalty-invoices")
	invoices.GET("", s.ListRoyaltyInvoices)
	invoices.GET("/:id", s.GetRoyaltyInvoice)
	invoices.POST("/:id/adjustments", s.AddInvoiceAdjustment)
	invoices.POST("/:id/pay", s.MarkInvoicePaid)
	invoices.POST("/:id/status", s.UpdateInvoiceStatus)
}
