package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flybeeper/track-filter/internal/config"
	"github.com/flybeeper/track-filter/internal/filter"
	"github.com/flybeeper/track-filter/internal/handler"
	"github.com/flybeeper/track-filter/internal/models"
	"github.com/flybeeper/track-filter/internal/mqtt"
	"github.com/flybeeper/track-filter/internal/registry"
	"github.com/flybeeper/track-filter/internal/repository"
	"github.com/flybeeper/track-filter/pkg/pool"
	"github.com/flybeeper/track-filter/pkg/utils"
)

var (
	// Version устанавливается при сборке через ldflags
	Version = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.WithField("version", Version).Info("Starting track-filter gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis - хранилище последних принятых позиций
	redisRepo, err := repository.NewRedisRepository(&cfg.Redis, logger)
	if err != nil {
		logger.WithField("error", err).Fatal("Failed to initialize Redis repository")
	}
	defer redisRepo.Close()

	if err := redisRepo.Ping(ctx); err != nil {
		logger.WithField("error", err).Fatal("Failed to connect to Redis")
	}
	logger.Info("Connected to Redis")

	// Реестр устройств: MySQL, если настроен, иначе пустые наборы
	// атрибутов обхода
	var provider filter.SkipAttributeProvider
	if cfg.MySQL.DSN != "" {
		mysqlRegistry, err := registry.NewMySQLRegistry(&cfg.MySQL, logger)
		if err != nil {
			logger.WithField("error", err).Fatal("Failed to initialize device registry")
		}
		defer mysqlRegistry.Close()

		if err := mysqlRegistry.Ping(ctx); err != nil {
			logger.WithField("error", err).Warn("Failed to connect to MySQL, lookups will retry")
		} else {
			logger.Info("Connected to MySQL device registry")
		}
		provider = mysqlRegistry
	} else {
		logger.Info("MySQL DSN not set, skip-attribute sets default to empty")
		provider = registry.NewStaticRegistry(nil)
	}

	// Движок фильтрации позиций
	engine := filter.NewEngine(cfg.Filter, provider, logger)

	// HTTP сервер и WebSocket рассылка
	server := handler.NewServer(cfg, redisRepo, engine, logger)
	wsHandler := server.GetWebSocketHandler()

	// Конвейер: декодированная позиция -> движок фильтрации ->
	// хранение и рассылка принятых, молчаливый сброс отклоненных
	messageHandler := func(position *models.Position) error {
		if !engine.Filter(position) {
			// Отклоненная позиция больше никому не нужна
			pool.Global.PutPosition(position)
			return nil
		}

		if err := redisRepo.SavePosition(ctx, position); err != nil {
			return err
		}
		wsHandler.BroadcastPosition(position)
		return nil
	}

	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger, messageHandler)
	if err != nil {
		logger.WithField("error", err).Fatal("Failed to initialize MQTT client")
	}
	defer mqttClient.Disconnect()

	if err := mqttClient.Connect(); err != nil {
		logger.WithField("error", err).Fatal("Failed to connect to MQTT broker")
	}
	logger.Info("Connected to MQTT broker")

	go func() {
		if err := server.Start(); err != nil {
			logger.WithField("error", err).Fatal("Failed to start HTTP server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.WithField("signal", sig).Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithField("error", err).Error("HTTP server shutdown error")
	}

	logger.Info("Gateway stopped gracefully")
}
