package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"github.com/amoralabs/amora-client/internal/api"
	"github.com/amoralabs/amora-client/internal/batch"
	"github.com/amoralabs/amora-client/internal/channels"
	"github.com/amoralabs/amora-client/internal/config"
	"github.com/amoralabs/amora-client/internal/obs"
	"github.com/amoralabs/amora-client/internal/presence"
	"github.com/amoralabs/amora-client/internal/push"
	"github.com/amoralabs/amora-client/internal/realtime"
	"github.com/amoralabs/amora-client/internal/repo"
	"github.com/amoralabs/amora-client/internal/storage"
	"github.com/amoralabs/amora-client/pkg/conn"
)

func main() {
	configPath := flag.String("config", "amora.json", "Path to JSON config")
	storagePath := flag.String("storage", "amora-storage.json", "Path to credential storage")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus listen address (empty=disabled)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logs.Errorf("config load failed: %v", err)
		os.Exit(1)
	}

	obs.Register()
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	if cfg.ProfileEnabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "amora-client",
			ServerAddress:   cfg.ProfileServer,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Warnf("pyroscope start failed: %v", err)
		} else {
			defer func() { _ = profiler.Stop() }()
		}
	}

	store, err := storage.NewFile(*storagePath)
	if err != nil {
		logs.Errorf("open storage: %v", err)
		os.Exit(1)
	}

	apiClient, err := api.New(api.Options{
		BaseURL:        cfg.APIBaseURL,
		Store:          store,
		Timeout:        cfg.RequestTimeout,
		UploadTimeout:  cfg.UploadTimeout,
		CacheTTL:       cfg.ResponseCacheTTL,
		MaxConcurrency: cfg.MaxConcurrency,
		OnSessionExpired: func() {
			logs.Warnf("session expired, sign-in required")
		},
	})
	if err != nil {
		logs.Errorf("build api client: %v", err)
		os.Exit(1)
	}

	cache, err := conn.New(conn.Option{Path: cfg.CachePath})
	if err != nil {
		logs.Errorf("open cache database: %v", err)
		os.Exit(1)
	}
	defer func() { _ = cache.Close() }()

	notifications, err := repo.NewNotificationRepo(cache)
	if err != nil {
		logs.Errorf("prepare notification repo: %v", err)
		os.Exit(1)
	}

	manager := channels.NewManager()
	go manager.Run(ctx)

	batcher := batch.NewManager(batchSender(apiClient), batch.DefaultConfig())

	rt, err := realtime.New(realtime.Options{
		AppKey:        cfg.AppKey,
		Cluster:       cfg.Cluster,
		AuthEndpoint:  cfg.AuthEndpoint,
		API:           apiClient,
		Store:         store,
		Channels:      manager,
		Repo:          notifications,
		Presenter:     push.NewLogPresenter(),
		Heartbeat:     cfg.Heartbeat,
		MaxReconnects: cfg.MaxReconnects,
		OutboundCap:   cfg.OutboundQueueCap,
	})
	if err != nil {
		logs.Errorf("build realtime client: %v", err)
		os.Exit(1)
	}

	online := presence.New(apiClient, rt, batcher, store)
	online.Start(ctx)

	if err := rt.Connect(ctx); err != nil {
		// Reconnection is handled internally; a failed first dial is not fatal.
		logs.Warnf("initial connect: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-sys.Shutdown():
	}

	logs.Info("shutting down")
	online.Stop()
	batcher.Close()
	rt.Disconnect()
}

// batchSender maps flushed batches onto their REST endpoints.
func batchSender(apiClient *api.Client) batch.Sender {
	paths := map[batch.Kind]string{
		batch.KindPresence:  "/api/v1/presence/batch",
		batch.KindRead:      "/api/v1/messages/read/batch",
		batch.KindTyping:    "/api/v1/chats/typing/batch",
		batch.KindHeartbeat: "/api/v1/presence/heartbeat",
	}
	return func(kind batch.Kind, signals []batch.Signal) error {
		path, ok := paths[kind]
		if !ok {
			return nil
		}
		entries := make([]map[string]any, 0, len(signals))
		for _, signal := range signals {
			entries = append(entries, map[string]any{
				"id":        signal.ID,
				"chat_id":   signal.ChatID,
				"user_id":   signal.UserID,
				"timestamp": signal.Timestamp.UnixMilli(),
				"payload":   signal.Payload,
			})
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := apiClient.Post(ctx, path, map[string]any{"signals": entries}, nil)
		return err
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logs.Infof("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logs.Warnf("metrics server: %v", err)
	}
}
