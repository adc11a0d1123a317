// admin.go — read-only административная проекция реестра.
//
// Доступ только по админ-секрету процесса: 32-символьная строка,
// сгенерированная при старте и живущая только в памяти. Несовпадение
// секрета → Unauthorized без какой-либо информации о записях.
package service

import (
	"crypto/subtle"
	"log/slog"
	"sort"
	"time"

	"github.com/JRobber66/FileBackend/internal/storage/registry"
)

// RecordSummary — строка админ-листинга.
type RecordSummary struct {
	Code        string `json:"code"`
	CreatedAt   string `json:"created_at"`
	ExpiresAt   string `json:"expires_at"`
	Downloads   int    `json:"downloads"`
	DeleteAfter bool   `json:"delete_after"`
	Files       int    `json:"files"`
}

// RecordLog — журнал скачиваний одной записи.
type RecordLog struct {
	Code      string   `json:"code"`
	Downloads []string `json:"downloads"`
}

// AdminService — административная проекция реестра.
type AdminService struct {
	reg    *registry.Registry
	secret string
	logger *slog.Logger
}

// NewAdminService создаёт административный сервис с указанным секретом.
func NewAdminService(reg *registry.Registry, secret string, logger *slog.Logger) *AdminService {
	return &AdminService{
		reg:    reg,
		secret: secret,
		logger: logger.With(slog.String("component", "admin_service")),
	}
}

// Authorize сравнивает предъявленный токен с админ-секретом
// за константное время.
func (s *AdminService) Authorize(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) == 1
}

// ListAll возвращает листинг всех живых записей, отсортированный
// по времени создания (новые первые). Срез реестра снимается под
// блокировкой, сериализация — снаружи.
func (s *AdminService) ListAll() []RecordSummary {
	records := s.reg.Snapshot()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	out := make([]RecordSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, RecordSummary{
			Code:        rec.Code,
			CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
			ExpiresAt:   rec.ExpiresAt.Format(time.RFC3339),
			Downloads:   len(rec.Downloads),
			DeleteAfter: rec.DeleteAfterDownload,
			Files:       len(rec.Files),
		})
	}
	return out
}

// Log возвращает журнал скачиваний записи.
// Возвращает nil, если запись не найдена.
func (s *AdminService) Log(code string) *RecordLog {
	rec := s.reg.Get(code)
	if rec == nil {
		return nil
	}

	downloads := make([]string, 0, len(rec.Downloads))
	for _, ts := range rec.Downloads {
		downloads = append(downloads, ts.Format(time.RFC3339))
	}
	return &RecordLog{Code: rec.Code, Downloads: downloads}
}
