package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"docqa-be/internal/bootstrap"
	"docqa-be/internal/config"
	"docqa-be/internal/pkg/logger"
	"docqa-be/internal/server"
	"docqa-be/internal/tracer"
	"docqa-be/pkg/database"
	"docqa-be/pkg/events"

	pktNats "docqa-be/pkg/nats"

	"gorm.io/gorm"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	defer sysLogger.Sync()

	// 2. Initialize Tracer
	shutdownTracer := tracer.InitTracer(cfg.App.OtelEnabled, sysLogger)
	defer shutdownTracer(context.Background())

	// 3. Initialize Database (only pgvector and the history archive need it)
	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		var err error
		gormDB, err = database.Open(database.Options{
			DSN:           cfg.Database.Connection,
			MaxOpenConns:  cfg.Database.MaxOpenConns,
			MaxIdleConns:  cfg.Database.MaxIdleConns,
			SlowThreshold: cfg.Database.SlowQuery,
		}, sysLogger)
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
	}

	// 4. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(gormDB, cfg, sysLogger)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	defer container.Close()

	// 5. Start Background Services
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := container.ConsumerService.Consume(ctx); err != nil {
		sysLogger.Error("Main", "consumer service failed to start", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if container.NatsSubscriber != nil {
		err := container.NatsSubscriber.Subscribe(ctx,
			pktNats.Subject(events.TypeDocumentChanged),
			"search-cache-"+cfg.App.InstanceID,
			container.ConsumerService.HandleEvent,
		)
		if err != nil {
			sysLogger.Warn("Main", "NATS subscription failed, cross-replica invalidation disabled", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	// 6. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		<-ctx.Done()
		_ = srv.Shutdown()
	}()

	// 7. Run Server
	if err := srv.Run(); err != nil {
		sysLogger.Error("Main", "server stopped", map[string]interface{}{"error": err.Error()})
	}
}
