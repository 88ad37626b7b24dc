package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/aws-educate-tw/tpet-pipeline/internal/certificate"
	"github.com/aws-educate-tw/tpet-pipeline/internal/config"
	"github.com/aws-educate-tw/tpet-pipeline/internal/dedup"
	"github.com/aws-educate-tw/tpet-pipeline/internal/filesvc"
	"github.com/aws-educate-tw/tpet-pipeline/internal/mail"
	"github.com/aws-educate-tw/tpet-pipeline/internal/pipeline"
	"github.com/aws-educate-tw/tpet-pipeline/internal/pkg/httpretry"
	"github.com/aws-educate-tw/tpet-pipeline/internal/pkg/logger"
	"github.com/aws-educate-tw/tpet-pipeline/internal/queue"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		log.Fatalf("ping database: %v", err)
	}
	cancelPing()
	logger.Info("database connected")

	// Dedup guard; nil disables it and the consumers fall back to the
	// stores' own idempotence.
	var guard *dedup.Guard
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		guard = dedup.NewGuard(redisClient, "tpet:delivery", cfg.Redis.DedupTTL())
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
	sesClient := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = &cfg.AWS.EndpointURL
		}
	})

	objectStore := storage.NewObjectStore(s3Client, cfg.Storage.Bucket)

	validatedQ := queue.NewSQSQueue(sqsClient, cfg.Queues.ValidatedURL)
	enrichedQ := queue.NewSQSQueue(sqsClient, cfg.Queues.EnrichedURL)
	sendQ := queue.NewSQSQueue(sqsClient, cfg.Queues.SendURL)

	// Services and external collaborators
	runService := run.NewService(postgres.NewRunRepo(db))
	emailService := email.NewService(postgres.NewEmailRepo(db))

	httpClient := httpretry.NewRetryClient(&http.Client{Timeout: cfg.FileService.Timeout()}, 3)
	filesClient := filesvc.NewClient(cfg.FileService.BaseURL, httpClient)
	identityClient := filesvc.NewIdentityClient(cfg.FileService.BaseURL, httpClient)

	var certs pipeline.CertGenerator
	if cfg.Storage.CertificateTemplateKey != "" {
		if err := certificate.InstallFonts(cfg.Storage.CacheDir); err != nil {
			logger.Warn("font installation failed, certificate text may fall back",
				"error", err.Error())
		}
		certs = certificate.NewGenerator(objectStore, cfg.Storage.CertificateTemplateKey, cfg.Storage.CacheDir)
	}

	// Stage handlers
	upserter := pipeline.NewUpserter(filesClient, identityClient, runService, enrichedQ)
	creator := pipeline.NewItemCreator(objectStore, emailService, sendQ)
	sender := pipeline.NewSender(filesClient, objectStore, emailService, runService,
		mail.NewSESTransport(sesClient), certs)

	consumers := []*pipeline.Consumer{
		pipeline.NewConsumer("run-upserter", validatedQ, upserter, guard, cfg.Pipeline.UpserterWorkers),
		pipeline.NewConsumer("item-creator", enrichedQ, creator, guard, cfg.Pipeline.ItemCreatorWorkers),
		pipeline.NewConsumer("email-sender", sendQ, sender, guard, cfg.Pipeline.SenderWorkers),
	}

	// The resume buffer holds messages accepted while the relational tier
	// sleeps; its consumer forwards them once health checks pass.
	if cfg.Queues.ResumeBufferURL != "" && cfg.Pipeline.ResumeHealthURL != "" {
		resumeQ := queue.NewSQSQueue(sqsClient, cfg.Queues.ResumeBufferURL)
		resume := pipeline.NewAutoResume(cfg.Pipeline.ResumeHealthURL, validatedQ)
		consumers = append(consumers, pipeline.NewConsumer("auto-resume", resumeQ, resume, guard, 1))
	}

	for _, c := range consumers {
		c.Start(ctx)
	}
	logger.Info("worker running", "consumers", len(consumers))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	for _, c := range consumers {
		c.Wait()
	}
	logger.Info("worker stopped")
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
