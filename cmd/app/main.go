package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"glassy-social/configs"
	"glassy-social/internal/activity"
	"glassy-social/internal/api"
	"glassy-social/internal/assetcache"
	"glassy-social/internal/auth"
	"glassy-social/internal/docstore"
	"glassy-social/internal/gateway"
	"glassy-social/internal/kafka"
	"glassy-social/internal/realtime"
	"glassy-social/internal/session"
	"glassy-social/internal/shared/db"
	"glassy-social/internal/shared/httpx"
	"glassy-social/internal/shared/jwt"
	"glassy-social/internal/shared/redisx"
	"glassy-social/internal/storage/s3"
	"glassy-social/internal/web"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"gorm.io/plugin/opentelemetry/tracing"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func initOTEL(ctx context.Context, env string) func(context.Context) error {
	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4318")),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		log.Fatalf("otel exporter: %v", err)
	}
	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(getEnv("OTEL_SERVICE_NAME", "glassy-social")),
		attribute.String("deployment.environment", env),
	))
	ratio := 1.0
	if s := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); s != "" {
		if f, e := strconv.ParseFloat(s, 64); e == nil && f >= 0 && f <= 1 {
			ratio = f
		}
	}
	tp := trace.NewTracerProvider(
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(ratio))),
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown
}

// inProcess hands activity events straight to the inbox when no broker is configured.
type inProcess struct{ inbox *activity.Inbox }

func (p *inProcess) Publish(ctx context.Context, ev activity.Event) error {
	return p.inbox.Handle(ctx, ev)
}

func openStore(cfg *configs.Config) (docstore.Store, func()) {
	if cfg.StoreDriver == "memory" {
		log.Printf("[store] using in-memory documents")
		return docstore.NewMemory(), func() {}
	}
	store, err := db.Open(cfg.DSN(), cfg.DBReplicas)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := store.Base.Use(tracing.NewPlugin()); err != nil {
		log.Printf("[db] tracing plugin: %v", err)
	}
	if cfg.AutoMigrate {
		if err := docstore.AutoMigrate(store); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}
	return docstore.NewGormStore(store), func() { _ = store.Close() }
}

func main() {
	cfg := configs.LoadConfig()
	log.Printf("config: %s", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := initOTEL(ctx, cfg.Env)
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(c)
	}()

	// Documents
	docs, closeStore := openStore(cfg)
	defer closeStore()

	// Redis is optional: without it signals, notifications and the asset
	// cache stay in process and the API runs without rate limits.
	var (
		rds     *redisx.Client
		limiter api.Limiter
		revoker auth.Revoker
		bus     realtime.Bus = realtime.NewLocalBus()
		notifs               = activity.NewMemoryRepository()
		assets               = assetcache.NewMemoryStorage()
	)
	if c := redisx.NewClient(cfg.RedisAddr()); c.Ping(ctx) == nil {
		rds = c
		defer rds.Close()
		rb := realtime.NewRedisBus(rds.R)
		go func() {
			if err := rb.Run(ctx); err != nil {
				log.Printf("[realtime] relay stopped: %v", err)
			}
		}()
		bus = rb
		limiter = rds
		revoker = auth.NewRedisRevoker(rds.R)
		notifs = activity.NewRedisRepository(rds.R)
		assets = assetcache.NewRedisStorage(rds.R)
	} else {
		log.Printf("[redis] %s unreachable, running single-process", cfg.RedisAddr())
		_ = c.Close()
	}

	// Blobs
	blobs, err := s3.New(s3.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
		Bucket:    cfg.MinioBucket,
		PublicURL: cfg.BlobPublicURL,
	})
	if err != nil {
		log.Fatalf("minio: %v", err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		log.Printf("[minio] bucket %s: %v (image uploads will fail)", cfg.MinioBucket, err)
	}

	// Auth
	provider := auth.NewProvider(docs, jwt.NewSigner(cfg.JWTSecret, cfg.JWTTTL), revoker)
	if cfg.GoogleEnabled() {
		provider = provider.WithGoogle(cfg.GoogleClientID, cfg.GoogleSecret, cfg.GoogleRedirect)
	}

	// Activity events travel over Kafka when brokers are set.
	notifSvc := activity.NewService(notifs)
	local := &inProcess{}
	var events gateway.Events = local
	var producer *kafka.Writer
	if cfg.KafkaBrokers != "" {
		producer = kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		events = activity.NewPublisher(producer)
	}

	gw := gateway.New(provider, docs, blobs, bus, events)
	hub := session.NewHub(session.Deps{
		Backend:   gw,
		Source:    docs,
		Bus:       bus,
		Federated: provider.FederatedEnabled(),
	}, cfg.SessionIdle)
	defer hub.CloseAll()

	inbox := activity.NewInbox(notifSvc, docs, hub)
	local.inbox = inbox
	if producer != nil {
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaTopic)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx, inbox.HandleMessage); err != nil {
				log.Printf("[kafka] consumer stopped: %v", err)
			}
		}()
	}

	go func() {
		if err := hub.RunSweeper(ctx, cfg.SessionSweep); err != nil {
			log.Printf("[session] sweeper: %v", err)
		}
	}()

	// Asset cache
	manifest, err := assetcache.LoadManifest(cfg.AssetManifest)
	if err != nil {
		log.Fatalf("asset manifest: %v", err)
	}
	network := assetcache.FromHandler(web.Static(manifest.Scope))
	if cfg.AssetOrigin != "" {
		network = assetcache.FromOrigin(&http.Client{Timeout: 10 * time.Second}, cfg.AssetOrigin)
	}
	worker := assetcache.NewWorker(manifest, assets, network)
	rep := worker.Install(ctx)
	log.Printf("[assets] %s installed %d assets, %d failed", manifest.CacheName(), len(rep.Cached), len(rep.Failed))
	if err := worker.Activate(ctx); err != nil {
		log.Fatalf("asset activate: %v", err)
	}

	// HTTP
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, map[string]any{"status": "ok", "sessions": hub.Len(), "assets": worker.State()}, http.StatusOK)
	})

	protect := httpx.AuthMiddleware(provider)
	api.New(gw, docs, limiter, cfg.RateLimit, cfg.RateLimitWindow).Register(mux, protect)

	nh := activity.NewHandler(notifSvc)
	mux.Handle("GET /api/notifications", protect(httpx.Wrap(nh.List)))
	mux.Handle("POST /api/notifications/{id}/read", protect(httpx.Wrap(nh.MarkRead)))

	web.NewServer(web.Options{
		Hub:           hub,
		Verifier:      provider,
		Federation:    provider,
		Worker:        worker,
		SessionSecret: cfg.SessionSecret,
		Secure:        cfg.Env == "production",
		CookieTTL:     cfg.JWTTTL,
		PushSecret:    cfg.PushSecret,
	}).Register(mux)

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
	}).Handler(mux)

	srv := &http.Server{
		Addr:              cfg.AppPort,
		Handler:           otelhttp.NewHandler(handler, "http.server"),
		ReadHeaderTimeout: 5 * time.Second,
		// event streams clear their own write deadline
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		log.Printf("glassy-social listening on %s", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.CloseAll()
	if err := srv.Shutdown(c); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
