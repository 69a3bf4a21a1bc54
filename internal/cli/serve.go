package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edirooss/firewatch-server/internal/config"
	"github.com/edirooss/firewatch-server/internal/detect"
	"github.com/edirooss/firewatch-server/internal/domain/principal"
	"github.com/edirooss/firewatch-server/internal/http/handler"
	mw "github.com/edirooss/firewatch-server/internal/http/middleware"
	"github.com/edirooss/firewatch-server/internal/repo"
	"github.com/edirooss/firewatch-server/internal/service"
	"github.com/edirooss/firewatch-server/internal/stream"
)

func newServeCommand(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and camera streams (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, *cfgFile)
		},
	}
}

func runServe(cmd *cobra.Command, cfgFile string) error {
	a, err := newApp(cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

// run serves until ctx is done, then stops live streams and drains the server.
func (a *app) run(ctx context.Context) error {
	log := a.log.Named("main")

	r, err := a.openRepo(ctx)
	if err != nil {
		return err
	}
	srv, err := a.newServer(r, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("running HTTP server", zap.String("addr", srv.http.Addr), zap.String("version", config.Version))
		if err := srv.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		// http.Server.Shutdown does not cancel handlers; end the streams first.
		srv.streams.StopAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.http.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("server closed", zap.Error(err))
	return err
}

type server struct {
	http    *http.Server
	router  *gin.Engine
	streams *service.StreamService
}

// newServer builds services and routes on top of r.
func (a *app) newServer(r *repo.Repository, reg *prometheus.Registry) (*server, error) {
	cfg, log := a.cfg, a.log
	isDev := cfg.IsDev()

	// Create Gin router
	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = zap.NewStdLog(log.Named("gin")).Writer() // Configure Gin's logger to use Zap

	usersess, err := a.newUserSessions()
	if err != nil {
		return nil, err
	}
	authsvc := service.NewAuthService(log, r, usersess)
	access := service.NewAccessPolicy(log, r.Topology)
	dir := service.NewCameraDirectory(log, r, access, service.DirectoryOptions{
		TTL:               cfg.Directory.CacheTTL,
		AllowStaleOnError: true,
	})

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := stream.NewMetrics(reg)

	opener, err := newOpener(log, cfg.Source)
	if err != nil {
		return nil, err
	}
	annotator, err := newAnnotator(log, cfg.Detect)
	if err != nil {
		return nil, err
	}
	streamer := stream.NewStreamer(annotator, stream.NewEncoder(cfg.Encoder.JPEGQuality), stream.StreamerConfig{
		IdleInterval:      cfg.Stream.IdleInterval,
		AnnotateTimeout:   cfg.Stream.AnnotateTimeout,
		MaxEncodeFailures: cfg.Stream.MaxEncodeFailures,
	}, metrics)
	streams := service.NewStreamService(log, opener, streamer, metrics, service.StreamOptions{
		Reconnect: stream.ReconnectPolicy{
			MaxAttempts: cfg.Reconnect.MaxAttempts,
			Delay:       cfg.Reconnect.Delay,
		},
		PollInterval:    cfg.Stream.PollInterval,
		SnapshotTimeout: cfg.Stream.SnapshotTimeout,
	})

	router := gin.New()
	{
		router.Use(gin.Recovery()) // Recovery first (outermost)
		router.Use(mw.RequestID()) // Attach request ID for tracing; early in the chain so it's available everywhere

		if isDev { // Enable CORS for local frontend dev
			router.Use(cors.New(cors.Config{
				AllowOrigins:     cfg.HTTP.AllowOrigins,
				AllowMethods:     []string{"GET", "POST", "OPTIONS"},
				AllowHeaders:     []string{"X-Request-ID", "Content-Type", "X-CSRF-Token", "Authorization"},
				ExposeHeaders:    []string{"X-Request-ID", "X-Total-Count"},
				AllowCredentials: true, // Allow cookies in dev
				MaxAge:           12 * time.Hour,
			}))
		} else { // Behind a TLS terminating proxy
			if err := router.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
				return nil, err
			}
			router.Use(secure.New(secure.Config{
				FrameDeny:          true,
				ContentTypeNosniff: true,
				SSLProxyHeaders: map[string]string{
					"X-Forwarded-Proto": "https", // Fix scheme for secure cookies
				},
			}))
		}

		router.Use(usersess.Middleware())      // Attach user cookie-based session for auth
		router.Use(mw.AccessLog(log, authsvc)) // Observability
		router.Use(limitBody(cfg.HTTP.MaxBodyBytes))
	}

	// --- Public endpoints (no auth) ---
	router.GET("/api/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
	usrsesshndler := handler.NewUserSessionsHandler(log, authsvc)
	router.POST("/api/login", usrsesshndler.Login)
	router.POST("/api/logout", usrsesshndler.Logout)

	// --- Protected endpoints (auth required) ---
	authed := router.Group("/api", mw.Authentication(authsvc), mw.ValidateSessionCSRF(authsvc))
	authed.GET("/me", handler.Me(authsvc))
	authed.GET("/csrf", handler.IssueSessionCSRF)

	camshndlr := handler.NewCamerasHandler(log, authsvc, dir)
	strmshndlr := handler.NewStreamsHandler(log, authsvc, dir, streams)
	requireValidID := mw.RequireValidID()
	streamLimit := mw.LimitConcurrentRequests(cfg.Stream.MaxConcurrent)

	authed.GET("/cameras", camshndlr.GetCameraList)
	authed.GET("/cameras/:id", requireValidID, camshndlr.GetCamera)
	authed.GET("/cameras/:id/stream", requireValidID, streamLimit, strmshndlr.Stream)
	authed.GET("/cameras/:id/snapshot", requireValidID, streamLimit, strmshndlr.Snapshot)
	authed.GET("/zones/:id/cameras", requireValidID, camshndlr.GetZoneCameras)

	admins := authed.Group("", mw.Authorization(authsvc, principal.Admin))
	admins.GET("/streams", strmshndlr.GetActiveStreams)
	admins.POST("/url/parse", (&handler.URLParse{}).Parse)

	httpsrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 2 * time.Second,  // kills header-drip Slowloris
		ReadTimeout:       10 * time.Second, // full request read (incl. body)
		WriteTimeout:      0,                // streams are unbounded
		IdleTimeout:       60 * time.Second, // keep-alive cap
		MaxHeaderBytes:    1 << 20,          // 1MB cap
	}
	return &server{http: httpsrv, router: router, streams: streams}, nil
}

func (a *app) newUserSessions() (*service.UserSessionService, error) {
	return service.NewUserSessionService(service.UserSessionConfig{
		RedisAddr:     a.cfg.Redis.Addr,
		RedisPassword: a.cfg.Redis.Password,
		RedisDB:       a.cfg.Redis.SessionDB,
		Secret:        a.cfg.Session.Secret,
		MaxAge:        int(a.cfg.Session.MaxAge / time.Second),
		Secure:        !a.cfg.IsDev(),
	})
}

// newAnnotator returns nil (raw frames) unless detection is enabled.
func newAnnotator(log *zap.Logger, cfg config.DetectConfig) (stream.Annotator, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client, err := detect.NewClient(detect.ClientConfig{
		BaseURL:       cfg.URL,
		Timeout:       cfg.Timeout,
		MinConfidence: cfg.MinConfidence,
		APIKey:        cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}
	log.Info("frame annotation enabled", zap.String("detector", cfg.URL), zap.Strings("labels", cfg.Labels))
	return detect.NewAnnotator(log, client, detect.AnnotatorConfig{
		MinConfidence: cfg.MinConfidence,
		Labels:        cfg.Labels,
		Normalized:    cfg.Normalized,
		UploadQuality: cfg.UploadQuality,
	}), nil
}

// limitBody enforces a hard max request body.
// Protects against oversized or drip-fed request bodies.
func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
