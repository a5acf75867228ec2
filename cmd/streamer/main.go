package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"avatarcast/internal/core/services"
	httphandlers "avatarcast/internal/handlers/http"
	"avatarcast/internal/infrastructure/inference"
	"avatarcast/internal/infrastructure/ingestion"
	"avatarcast/internal/infrastructure/media"
	"avatarcast/internal/infrastructure/monitoring"
	"avatarcast/internal/infrastructure/reliability"
	"avatarcast/internal/infrastructure/repositories"
	signalhub "avatarcast/internal/infrastructure/signal"
	webrtcinfra "avatarcast/internal/infrastructure/webrtc"
	"avatarcast/pkg/config"
	"avatarcast/pkg/logger"
	"avatarcast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()
	if err != nil {
		log.Warnw("failed to load config, using defaults", "path", *configPath, "error", err)
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "avatarcast",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	metrics := monitoring.NewPrometheusCollector(nil)

	repoFactory := repositories.NewRepositoryFactory(cfg, log)
	repos := repoFactory.Repositories()

	// Event channel
	hub := signalhub.NewHub(cfg.Signal.SubmissionBuffer, metrics, log.Named("hub"))
	go hub.Run(ctx)

	wsServer := signalhub.NewWebSocketServer(hub, log.Named("ws"))
	wsServer.SetPingInterval(cfg.Signal.PingInterval)
	wsServer.SetPongTimeout(cfg.Signal.PongTimeout)
	wsServer.SetWriteTimeout(cfg.Signal.WriteTimeout)
	wsServer.SetSendTimeout(cfg.Signal.SendTimeout)
	wsServer.SetMaxMessageBytes(cfg.Signal.MaxMessageBytes)

	// Realtime transport
	transportCfg := webrtcinfra.Config{
		DefaultFPS:    cfg.WebRTC.DefaultFPS,
		QueueSeconds:  cfg.WebRTC.QueueSeconds,
		AudioEnabled:  cfg.WebRTC.AudioEnabled,
		SampleRate:    cfg.WebRTC.SampleRate,
		GatherTimeout: cfg.WebRTC.GatherTimeout,
	}
	transportCfg.PortRange.Min = cfg.WebRTC.PortRange.Min
	transportCfg.PortRange.Max = cfg.WebRTC.PortRange.Max
	for _, s := range cfg.WebRTC.ICEServers {
		transportCfg.ICEServers = append(transportCfg.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	encoderLog := log.Named("encoder")
	sessions, err := webrtcinfra.NewSessionManager(transportCfg,
		func(fps int) media.VideoEncoder {
			return media.NewFFmpegVP8Encoder(media.FFmpegVP8Config{
				Binary:      cfg.WebRTC.FFmpegPath,
				FPS:         fps,
				BitrateKbps: cfg.WebRTC.VideoBitrateKbps,
			}, encoderLog)
		},
		func() media.AudioEncoder { return media.PCMUEncoder{} },
		metrics, log.Named("transport"))
	if err != nil {
		log.Fatalw("failed to create session manager", "error", err)
	}

	// Inference
	remote := inference.NewRemoteEngine(cfg.Inference.Endpoint, cfg.Inference.BundleDir, cfg.Inference.RequestTimeout, log.Named("inference"))
	engine := reliability.NewInferenceGuard(remote, cfg.Inference.Breaker, cfg.Inference.Retry, log.Named("inference"))
	avatars := inference.NewAvatarCache(engine, cfg.Inference.AvatarCacheCap, metrics, log.Named("avatars"))
	producer := inference.NewProducer(engine, avatars, cfg.Inference.PushTimeout, metrics, log.Named("producer"))

	// Chat ingestion
	youtube := ingestion.NewYouTubeSource(cfg.Ingestion.YouTube.APIKey, cfg.Ingestion.YouTube.GracePeriod,
		cfg.Ingestion.YouTube.MinPollDelay, log.Named("youtube"))
	tiktok := ingestion.NewTikTokSource(cfg.Ingestion.TikTok.RelayURL, cfg.Ingestion.TikTok.GracePeriod, log.Named("tiktok"))
	chat := services.NewChatService(log.Named("chat"),
		ingestion.NewBridge(youtube, hub, cfg.Ingestion.BufferSize, cfg.Ingestion.JoinTimeout, metrics, log.Named("bridge")),
		ingestion.NewBridge(tiktok, hub, cfg.Ingestion.BufferSize, cfg.Ingestion.JoinTimeout, metrics, log.Named("bridge")),
	)

	renderer := media.NewFFmpegFileRenderer(cfg.WebRTC.FFmpegPath, log.Named("renderer"))
	orchestrator := services.NewStreamOrchestrator(sessions, producer, hub, repos, engine, engine, renderer,
		services.NewGenerationTracker(),
		services.OrchestratorConfig{
			DefaultFPS: cfg.WebRTC.DefaultFPS,
			BatchSize:  cfg.Inference.BatchSize,
			StaticDir:  cfg.Server.StaticDir,
			Retry:      cfg.Persistence.Retry,
		},
		metrics, log.Named("orchestrator"))
	comments := services.NewCommentService(repos.Comments, repos.Sessions, hub, cfg.Persistence.Retry, log.Named("comments"))

	// Readiness
	health := monitoring.NewHealthChecker()
	health.AddCheck("hub", func(ctx context.Context) (bool, error) {
		return hub.Running(), nil
	}, 10*time.Second, time.Second)
	if client := repoFactory.RedisClient(); client != nil {
		health.AddRedisCheck(client, 10*time.Second, 2*time.Second)
	}
	health.AddInferenceCheck(engine, 30*time.Second, 5*time.Second)
	health.AddProducerCheck(producer, 30*time.Second, time.Second)

	if err := os.MkdirAll(cfg.Server.StaticDir, 0o755); err != nil {
		log.Warnw("failed to create static dir", "dir", cfg.Server.StaticDir, "error", err)
	}

	var metricsHandler http.Handler
	if cfg.Monitoring.PrometheusEnabled {
		metricsHandler = promhttp.Handler()
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httphandlers.NewRouter(cfg, httphandlers.Handlers{
		WebRTC:   httphandlers.NewWebRTCHandler(orchestrator),
		Chat:     httphandlers.NewChatHandler(chat),
		Sessions: httphandlers.NewSessionHandler(orchestrator, comments),
		System:   httphandlers.NewSystemHandler(health, hub, sessions, metricsHandler, wsServer.HandleWebSocket, cfg.Server.StaticDir),
	}, zapLogger)

	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// Chat connect may hold a request for a platform grace period.
		WriteTimeout: max(cfg.Server.WriteTimeout, cfg.Ingestion.TikTok.GracePeriod+5*time.Second),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting avatarcast server", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		_ = srv.Close()
	}

	chat.Disconnect()
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		log.Warnw("generation workers did not stop in time", "error", err)
	}
	sessions.Shutdown()
	stop()

	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracer", "error", err)
	}

	log.Info("avatarcast server stopped")
}
