// Точка входа File Relay — сервиса эфемерного обмена файлами по коду.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/JRobber66/FileBackend/internal/api/handlers"
	"github.com/JRobber66/FileBackend/internal/config"
	"github.com/JRobber66/FileBackend/internal/server"
	"github.com/JRobber66/FileBackend/internal/service"
	"github.com/JRobber66/FileBackend/internal/storage/blobstore"
	"github.com/JRobber66/FileBackend/internal/storage/registry"
)

func main() {
	// .env — удобство локального запуска; отсутствие файла не ошибка
	_ = godotenv.Load()

	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("File Relay запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
		slog.String("ttl", cfg.TTL.String()),
	)

	// --- Инициализация компонентов ---

	// 1. Файловое хранилище
	store, err := blobstore.New(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации blobstore", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. In-memory реестр записей
	reg := registry.New(logger)

	// 3. Админ-секрет процесса: генерируется при старте, живёт
	// только в памяти, публикуется один раз в лог
	adminSecret := service.NewAdminSecret()
	logger.Info("Админ-секрет сгенерирован", slog.String("admin_secret", adminSecret))

	// 4. Сервисы
	codes := service.NewCodeGenerator(reg)
	sweeper := service.NewSweeper(store, reg, cfg.TTL, time.Now, logger)
	uploadSvc := service.NewUploadService(codes, store, reg, cfg.TTL, cfg.MaxFileSize, time.Now, logger)
	retrieveSvc := service.NewRetrieveService(store, reg, sweeper, time.Now, logger)
	streamSvc := service.NewStreamService(store, reg, logger)
	adminSvc := service.NewAdminService(reg, adminSecret, logger)

	// 5. Стартовая очистка: реестр пуст, всё на диске — осиротевшее
	sweeper.PurgeOrphans()

	// 6. Handlers
	relayHandler := handlers.NewRelayHandler(uploadSvc, retrieveSvc, streamSvc, adminSvc, sweeper)
	healthHandler := handlers.NewHealthHandler(cfg.DataDir)

	// 7. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, relayHandler, healthHandler)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("File Relay остановлен")
}
