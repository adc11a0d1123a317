// service_test.go — общие помощники тестов сервисного слоя.
package service

import (
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JRobber66/FileBackend/internal/storage/blobstore"
	"github.com/JRobber66/FileBackend/internal/storage/registry"
)

// testTTL — TTL записей в тестах.
const testTTL = 24 * time.Hour

// testSecret — фиксированный админ-секрет для тестов (32 символа).
const testSecret = "0123456789abcdefghijklmnopqrstuv"

// testLogger возвращает логгер для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// fakeClock — симулированные часы для тестов истечения TTL.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fixture — собранный сервисный слой поверх временной директории.
type fixture struct {
	store    *blobstore.Store
	reg      *registry.Registry
	clock    *fakeClock
	sweeper  *Sweeper
	upload   *UploadService
	retrieve *RetrieveService
	stream   *StreamService
	admin    *AdminService
}

// newFixture собирает сервисы с симулированными часами.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания blobstore: %v", err)
	}

	logger := testLogger()
	reg := registry.New(logger)
	clock := newFakeClock()
	codes := NewCodeGenerator(reg)
	sweeper := NewSweeper(store, reg, testTTL, clock.Now, logger)

	return &fixture{
		store:    store,
		reg:      reg,
		clock:    clock,
		sweeper:  sweeper,
		upload:   NewUploadService(codes, store, reg, testTTL, 1<<20, clock.Now, logger),
		retrieve: NewRetrieveService(store, reg, sweeper, clock.Now, logger),
		stream:   NewStreamService(store, reg, logger),
		admin:    NewAdminService(reg, testSecret, logger),
	}
}

// namedFile — пара имя/содержимое для загрузки в тестах.
type namedFile struct {
	name    string
	content string
}

// uploadFiles загружает набор файлов и возвращает код доступа.
func (f *fixture) uploadFiles(t *testing.T, deleteAfter bool, files ...namedFile) string {
	t.Helper()

	params := UploadParams{DeleteAfter: deleteAfter}
	for _, nf := range files {
		params.Files = append(params.Files, UploadFile{
			Reader:   strings.NewReader(nf.content),
			Filename: nf.name,
			Size:     int64(len(nf.content)),
		})
	}

	result, uploadErr := f.upload.Upload(params)
	if uploadErr != nil {
		t.Fatalf("ошибка загрузки: %v", uploadErr)
	}
	return result.Code
}
