package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maneesh/videodrop/internal/chunker"
	"github.com/maneesh/videodrop/internal/config"
	"github.com/maneesh/videodrop/internal/handlers"
	"github.com/maneesh/videodrop/internal/naming"
	"github.com/maneesh/videodrop/internal/storage"
	"github.com/maneesh/videodrop/internal/tracing"
)

func main() {
	log.Println("Starting videodrop service...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Service: %s, upload dir: %s, public dir: %s, naming: %s",
		cfg.ServiceName, cfg.UploadDir, cfg.PublicDir, cfg.NamingScheme)

	// Initialize OpenTelemetry tracing
	shutdownTracer, err := tracing.InitTracer(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	namer, err := naming.New(cfg.NamingScheme)
	if err != nil {
		log.Fatalf("Failed to initialize naming: %v", err)
	}

	chunkerInstance := chunker.NewChunker(cfg.GetChunkSizeBytes(), cfg.GetMaxUploadBytes())
	diskStore := storage.NewDiskStore(cfg.UploadDir, chunkerInstance)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	var sinks handlers.Sinks

	if cfg.MirrorEnabled() {
		log.Println("Connecting to MinIO...")
		minioClient, err := storage.NewMinioClient(
			startupCtx,
			cfg.MinIOEndpoint,
			cfg.MinIOAccessKey,
			cfg.MinIOSecretKey,
			cfg.MinIOBucketName,
			cfg.MinIOUseSSL,
		)
		if err != nil {
			log.Fatalf("Failed to initialize MinIO client: %v", err)
		}
		sinks.Mirror = minioClient
		log.Println("MinIO client initialized")
	}

	if cfg.CatalogEnabled() {
		log.Printf("Connecting to %s catalog...", cfg.DBDriver)
		catalog, err := storage.NewSQLCatalog(startupCtx, cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			log.Fatalf("Failed to initialize catalog: %v", err)
		}
		defer catalog.Close()
		sinks.Catalog = catalog
		log.Println("Catalog initialized")
	}

	if cfg.CacheEnabled() {
		log.Println("Connecting to Redis...")
		redisClient, err := storage.NewRedisClient(startupCtx, cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to initialize Redis client: %v", err)
		}
		defer redisClient.Close()
		sinks.Cache = redisClient
		log.Println("Redis client initialized")
	}

	if cfg.EventsEnabled() {
		publisher := storage.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		sinks.Publisher = publisher
		log.Printf("Publishing upload events to Kafka topic %s", cfg.KafkaTopic)
	}

	// Initialize handlers
	uploadHandler := handlers.NewUploadHandler(cfg.UploadField, cfg.GetMaxUploadBytes(), namer, diskStore, sinks)

	routes := handlers.Routes{
		PublicDir: cfg.PublicDir,
		Upload:    uploadHandler,
	}
	if sinks.Catalog != nil {
		routes.Metadata = handlers.NewMetadataHandler(sinks.Catalog, sinks.Cache)
	}

	// Create HTTP server. No read or write timeout: those would cap the
	// length of a video upload.
	srv := &http.Server{
		Addr:              cfg.GetListenAddr(),
		Handler:           handlers.NewRouter(routes),
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", srv.Addr, err)
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.GetPublicURL())
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
