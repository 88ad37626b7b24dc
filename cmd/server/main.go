package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/aws-educate-tw/tpet-pipeline/internal/api"
	"github.com/aws-educate-tw/tpet-pipeline/internal/auth"
	"github.com/aws-educate-tw/tpet-pipeline/internal/config"
	"github.com/aws-educate-tw/tpet-pipeline/internal/filesvc"
	"github.com/aws-educate-tw/tpet-pipeline/internal/pipeline"
	"github.com/aws-educate-tw/tpet-pipeline/internal/pkg/httpretry"
	"github.com/aws-educate-tw/tpet-pipeline/internal/pkg/logger"
	"github.com/aws-educate-tw/tpet-pipeline/internal/queue"
	"github.com/aws-educate-tw/tpet-pipeline/internal/repository/dynamo"
	"github.com/aws-educate-tw/tpet-pipeline/internal/repository/postgres"
	"github.com/aws-educate-tw/tpet-pipeline/internal/service/email"
	"github.com/aws-educate-tw/tpet-pipeline/internal/service/run"
	"github.com/aws-educate-tw/tpet-pipeline/internal/storage"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logger.DEBUG)
	}

	ctx := context.Background()

	// Database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("ping database: %v", err)
	}
	logger.Info("database connected")

	// Redis only feeds the health endpoints on the server side; the
	// worker holds the actual dedup guard.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	// AWS clients
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = &cfg.AWS.EndpointURL
			o.UsePathStyle = true
		}
	})
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = &cfg.AWS.EndpointURL
		}
	})
	dynamoClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = &cfg.AWS.EndpointURL
		}
	})

	objectStore := storage.NewObjectStore(s3Client, cfg.Storage.Bucket)

	// The validated queue feeds the worker. When a resume buffer is
	// configured the API enqueues there instead, and the worker's guard
	// forwards messages once the relational tier answers health checks.
	acceptURL := cfg.Queues.ValidatedURL
	if cfg.Queues.ResumeBufferURL != "" {
		acceptURL = cfg.Queues.ResumeBufferURL
	}
	acceptQ := queue.NewSQSQueue(sqsClient, acceptURL)

	// Services
	runService := run.NewService(postgres.NewRunRepo(db))
	emailService := email.NewService(postgres.NewEmailRepo(db))
	webhookStore := dynamo.NewWebhookStore(dynamoClient, cfg.Webhooks.DynamoDBTable)

	httpClient := httpretry.NewRetryClient(&http.Client{Timeout: cfg.FileService.Timeout()}, 3)
	filesClient := filesvc.NewClient(cfg.FileService.BaseURL, httpClient)

	validator := pipeline.NewValidator(filesClient, objectStore, runService, acceptQ)

	var authorizer *auth.Authorizer
	if cfg.Auth.Enabled {
		authorizer = auth.NewAuthorizer(auth.NewKeySet(cfg.Auth.JWKSURL, httpClient))
	} else {
		logger.Warn("token verification disabled")
	}

	health := api.NewHealthChecker(db, redisClient, s3Client, cfg.Storage.Bucket)
	server := api.NewServer(validator, runService, emailService, webhookStore, acceptQ, authorizer, health)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err.Error())
	}
	logger.Info("server stopped")
}

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	if profile := cfg.AWS.GetProfile(); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}
