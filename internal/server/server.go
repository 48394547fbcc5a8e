package server

import (
	"context"
	"net/http"
	"time"

	"github.com/astralhq/oraculum/internal/artifact"
	"github.com/astralhq/oraculum/internal/config"
	"github.com/astralhq/oraculum/internal/divination"
	divinationdomain "github.com/astralhq/oraculum/internal/divination/domain"
	"github.com/astralhq/oraculum/internal/entitlement"
	"github.com/astralhq/oraculum/internal/generator"
	"github.com/astralhq/oraculum/internal/observability"
	obsmiddleware "github.com/astralhq/oraculum/internal/observability/logger"
	obsmetrics "github.com/astralhq/oraculum/internal/observability/metrics"
	obstracing "github.com/astralhq/oraculum/internal/observability/tracing"
	"github.com/astralhq/oraculum/internal/ratelimit"
	"github.com/astralhq/oraculum/internal/subscription"
	subscriptiondomain "github.com/astralhq/oraculum/internal/subscription/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	entitlement.Module,
	artifact.Module,
	generator.Module,
	ratelimit.Module,
	subscription.Module,
	divination.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
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
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	log             *zap.Logger
	divinationSvc   divinationdomain.Service
	subscriptionSvc subscriptiondomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Log             *zap.Logger
	DivinationSvc   divinationdomain.Service
	SubscriptionSvc subscriptiondomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("server"),
		divinationSvc:   p.DivinationSvc,
		subscriptionSvc: p.SubscriptionSvc,
	}

	svc.registerAPIRoutes()
	svc.registerDevRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Divinations --------
	divinations := api.Group("/divinations", s.AuthRequired())
	{
		divinations.POST("/horoscope", s.ObtainHoroscope)
		divinations.POST("/tarot", s.ObtainTarot)
		divinations.POST("/iching", s.ObtainIChing)
		divinations.POST("/dream", s.ObtainDream)
	}

	// -------- Subscriptions --------
	api.GET("/subscriptions/me", s.AuthRequired(), s.GetMySubscription)
}

func (s *Server) registerDevRoutes() {
	if s.cfg.IsProduction() {
		return
	}

	// Billing normally writes subscription rows out of band; this exists
	// so local setups can provision tiers without a billing system.
	s.engine.POST("/api/dev/subscriptions", s.UpsertSubscription)
}
