// upload.go — сервис загрузки файлов.
//
// Порядок создания записи: сначала все blob-ы пишутся на диск,
// и только после успеха всех записей код регистрируется в реестре.
// При любой ошибке уже сохранённые blob-ы удаляются — реестр
// никогда не ссылается на отсутствующие файлы.
package service

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/JRobber66/FileBackend/internal/api/errors"
	"github.com/JRobber66/FileBackend/internal/api/middleware"
	"github.com/JRobber66/FileBackend/internal/domain/model"
	"github.com/JRobber66/FileBackend/internal/storage/blobstore"
	"github.com/JRobber66/FileBackend/internal/storage/registry"
)

// UploadFile — один файл из multipart-формы.
type UploadFile struct {
	// Reader — поток данных файла
	Reader io.Reader
	// Filename — оригинальное имя файла
	Filename string
	// Size — размер файла (из multipart header)
	Size int64
}

// UploadParams — параметры загрузки.
type UploadParams struct {
	// Files — файлы загрузки, минимум один
	Files []UploadFile
	// DeleteAfter — удалить запись после первого полного скачивания
	DeleteAfter bool
}

// UploadResult — результат загрузки.
type UploadResult struct {
	// Code — выданный код доступа
	Code string
	// Record — созданная запись
	Record *model.Record
}

// UploadError — ошибка загрузки с HTTP-кодом.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UploadService — сервис загрузки файлов.
type UploadService struct {
	codes       *CodeGenerator
	store       *blobstore.Store
	reg         *registry.Registry
	ttl         time.Duration
	maxFileSize int64
	now         func() time.Time
	logger      *slog.Logger
}

// NewUploadService создаёт сервис загрузки.
// now — источник времени; в тестах подменяется симулированными часами.
func NewUploadService(
	codes *CodeGenerator,
	store *blobstore.Store,
	reg *registry.Registry,
	ttl time.Duration,
	maxFileSize int64,
	now func() time.Time,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		codes:       codes,
		store:       store,
		reg:         reg,
		ttl:         ttl,
		maxFileSize: maxFileSize,
		now:         now,
		logger:      logger.With(slog.String("component", "upload_service")),
	}
}

// Upload сохраняет файлы и регистрирует новую запись.
//
// Поток:
//  1. Валидация: хотя бы один файл, размеры в пределах лимита
//  2. Генерация кода доступа
//  3. Сохранение всех blob-ов ({code}_{имя})
//  4. Регистрация записи в реестре
//
// При ошибке на шаге 3 сохранённые blob-ы удаляются (best effort).
func (s *UploadService) Upload(params UploadParams) (*UploadResult, *UploadError) {
	// 1. Валидация
	if len(params.Files) == 0 {
		return nil, &UploadError{
			StatusCode: 400,
			Code:       errors.CodeValidationError,
			Message:    "Не передано ни одного файла",
		}
	}
	for _, f := range params.Files {
		if s.maxFileSize > 0 && f.Size > s.maxFileSize {
			return nil, &UploadError{
				StatusCode: 413,
				Code:       errors.CodeFileTooLarge,
				Message:    fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", f.Size, s.maxFileSize),
			}
		}
	}

	// 2. Код доступа
	code, err := s.codes.Generate()
	if err != nil {
		s.logger.Error("Ошибка генерации кода", slog.String("error", err.Error()))
		return nil, &UploadError{
			StatusCode: 500,
			Code:       errors.CodeInternalError,
			Message:    "Не удалось сгенерировать код доступа",
		}
	}

	// 3. Сохраняем blob-ы; при ошибке откатываем уже сохранённые
	stored := make([]model.StoredFile, 0, len(params.Files))
	rollback := func() {
		for _, sf := range stored {
			_ = s.store.Delete(sf.StoragePath)
		}
	}

	for _, f := range params.Files {
		result, saveErr := s.store.Save(code, f.Filename, f.Reader)
		if saveErr != nil {
			rollback()
			s.logger.Error("Ошибка сохранения файла",
				slog.String("code", code),
				slog.String("filename", f.Filename),
				slog.String("error", saveErr.Error()),
			)
			return nil, &UploadError{
				StatusCode: 500,
				Code:       errors.CodeInternalError,
				Message:    "Ошибка сохранения файла на диск",
			}
		}
		stored = append(stored, model.StoredFile{
			StoragePath: result.StoragePath,
			DisplayName: result.DisplayName,
		})
	}

	// 4. Регистрируем запись — только после успеха всех записей на диск
	now := s.now()
	rec := &model.Record{
		Code:                code,
		Files:               stored,
		CreatedAt:           now.UTC(),
		ExpiresAt:           now.UTC().Add(s.ttl),
		CreatedUnixNano:     now.UnixNano(),
		DeleteAfterDownload: params.DeleteAfter,
	}
	s.reg.Put(rec)

	middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()
	middleware.RecordsTotal.Set(float64(s.reg.Count()))

	s.logger.Info("Запись создана",
		slog.String("code", code),
		slog.Int("files", len(stored)),
		slog.Bool("delete_after", params.DeleteAfter),
		slog.Time("expires_at", rec.ExpiresAt),
	)

	return &UploadResult{Code: code, Record: rec}, nil
}
