package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tank-gateway/auth"
	"tank-gateway/cache"
	"tank-gateway/confs"
	"tank-gateway/credentials"
	"tank-gateway/decision"
	"tank-gateway/handlers"
	httpHandler "tank-gateway/handlers/http"
	"tank-gateway/metrics"
	"tank-gateway/protocol"
	"tank-gateway/repositories"
	"tank-gateway/services"
	"tank-gateway/usecases"
	"tank-gateway/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Server struct {
	cfg      *confs.Config
	app      *gin.Engine
	log      zerolog.Logger
	registry *prometheus.Registry
	manager  *ws.Manager
	monitor  *services.Monitor
}

// NewServer wires the gateway around store. static is consulted after the
// store's own device records and may be nil.
func NewServer(cfg *confs.Config, store repositories.Store, static credentials.Resolver, lg zerolog.Logger) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	resolvers := credentials.Chain{
		credentials.StoreResolver{Devices: store},
		credentials.LegacyResolver{Devices: store},
	}
	if static != nil {
		resolvers = append(resolvers, static)
	}

	authCache := cache.NewAuthCache(cfg.AuthCacheTTL, time.Now)
	authn := auth.NewAuthenticator(resolvers, authCache, auth.Options{
		Drift:   cfg.HMACDrift,
		Logger:  lg,
		Metrics: m,
	})
	gate := protocol.NewGate(cfg.ProtocolMinVersion, cfg.ProtocolMaxVersion)

	manager := ws.NewManager(lg, m)
	presence := usecases.NewPresence(store, manager, time.Now, lg)
	queue := usecases.NewCommandQueue(store, manager, usecases.QueueOptions{
		TTL:      cfg.CommandTTL,
		Notifier: manager,
		Logger:   lg,
		Metrics:  m,
	})
	pipeline := usecases.NewPipeline(store, manager, queue, decision.NewEngine(cfg.PumpDeviceID), presence, usecases.PipelineOptions{
		Logger:  lg,
		Metrics: m,
	})
	control := usecases.NewControl(queue, cfg.PumpDeviceID)

	s := &Server{
		cfg:      cfg,
		log:      lg.With().Str("component", "server").Logger(),
		registry: registry,
		manager:  manager,
		monitor:  services.NewMonitor(presence, authCache, cfg.OfflineAfter, lg),
	}

	guard := httpHandler.NewDeviceGuard(authn, cfg.HMACRequired, gate,
		httpHandler.NewDeviceLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst), lg, m)
	wsHandler := handlers.NewWSHandler(handlers.WSDeps{
		Manager:      manager,
		Auth:         authn,
		HMACRequired: cfg.HMACRequired,
		Gate:         gate,
		Pipeline:     pipeline,
		Queue:        queue,
		Control:      control,
		Presence:     presence,
		Logger:       lg,
		Metrics:      m,
	})

	s.app = s.routes(guard, wsHandler,
		httpHandler.NewDeviceDataHandler(pipeline, lg),
		httpHandler.NewCommandHandler(queue, control, manager, lg),
		httpHandler.NewDeviceHandler(store, manager, presence.Tracker()),
		handlers.NewCacheHandler(authCache),
	)
	return s
}

func (s *Server) routes(
	guard *httpHandler.DeviceGuard,
	wsHandler *handlers.WSHandler,
	dataHandler *httpHandler.DeviceDataHandler,
	cmdHandler *httpHandler.CommandHandler,
	deviceHandler *httpHandler.DeviceHandler,
	cacheHandler *handlers.CacheHandler,
) *gin.Engine {
	app := gin.New()
	app.Use(gin.Recovery())
	if gin.Mode() == gin.DebugMode {
		app.Use(gin.Logger())
	}

	// Setup CORS middleware
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization",
		auth.HeaderDeviceID, auth.HeaderAPIKey, auth.HeaderSignature, auth.HeaderTimestamp}
	app.Use(cors.New(config))

	app.GET("/health", deviceHandler.Health)
	app.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	// Firmware routes, mounted twice because older builds post to the
	// functions prefix.
	for _, prefix := range []string{"/api", "/functions/v1/api"} {
		device := app.Group(prefix)
		{
			device.POST("/sensor-data", append(guard.Chain(), dataHandler.SensorData)...)
			device.POST("/motor-status", append(guard.Chain(), dataHandler.MotorStatus)...)
			device.POST("/heartbeat", append(guard.Chain(), dataHandler.Heartbeat)...)
			device.POST("/system-alert", append(guard.Chain(), dataHandler.SystemAlert)...)

			device.GET("/commands/pending", guard.Authenticate(), guard.Limit(), cmdHandler.Pending)
			device.POST("/commands/:id/ack", guard.Authenticate(), guard.Limit(), cmdHandler.Ack)
		}
	}

	api := app.Group("/api/v1")
	{
		api.POST("/commands", cmdHandler.Enqueue)
		api.GET("/devices/connected", deviceHandler.GetConnectedDevices)
		api.GET("/devices/:id", deviceHandler.GetDevice)
		api.POST("/alerts/:id/ack", deviceHandler.AcknowledgeAlert)

		cacheGroup := api.Group("/cache")
		{
			cacheGroup.GET("/stats", cacheHandler.GetCacheStats)
			cacheGroup.POST("/sweep", cacheHandler.Sweep)
		}
	}

	app.GET("/ws", wsHandler.HandleWS)
	return app
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.app }

// Manager exposes the connection registry.
func (s *Server) Manager() *ws.Manager { return s.manager }

// Run serves until ctx is cancelled, then drains within a short grace period.
func (s *Server) Run(ctx context.Context) error {
	s.monitor.Start(ctx)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + s.cfg.Port,
		Handler:           s.app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}
