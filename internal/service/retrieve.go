// retrieve.go — сервис выдачи записей: одиночный файл или zip-бандл.
//
// Бандл пересобирается на каждый запрос (удаление перед сборкой):
// кэширование потребовало бы инвалидации при удалении записи, а
// устаревший архив нарушил бы соответствие содержимому записи.
package service

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/JRobber66/FileBackend/internal/api/errors"
	"github.com/JRobber66/FileBackend/internal/api/middleware"
	"github.com/JRobber66/FileBackend/internal/domain/model"
	"github.com/JRobber66/FileBackend/internal/storage/blobstore"
	"github.com/JRobber66/FileBackend/internal/storage/registry"
)

// RetrieveResult — подготовленная к отдаче выдача записи.
// File — уже открытый дескриптор: запись могла быть удалена сразу
// после открытия (deleteAfterDownload), unlink на POSIX не мешает
// дочитать открытый файл.
type RetrieveResult struct {
	// File — открытый файл (одиночный blob или свежесобранный zip).
	// Вызывающий код обязан закрыть.
	File *os.File
	// Filename — имя для Content-Disposition
	Filename string
	// ContentType — MIME-тип выдачи
	ContentType string
	// Size — размер выдачи в байтах
	Size int64
}

// RetrieveError — ошибка выдачи с HTTP-кодом.
type RetrieveError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RetrieveError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// RetrieveService — сервис выдачи записей.
type RetrieveService struct {
	store   *blobstore.Store
	reg     *registry.Registry
	sweeper *Sweeper
	now     func() time.Time
	logger  *slog.Logger
}

// NewRetrieveService создаёт сервис выдачи.
func NewRetrieveService(
	store *blobstore.Store,
	reg *registry.Registry,
	sweeper *Sweeper,
	now func() time.Time,
	logger *slog.Logger,
) *RetrieveService {
	return &RetrieveService{
		store:   store,
		reg:     reg,
		sweeper: sweeper,
		now:     now,
		logger:  logger.With(slog.String("component", "retrieve_service")),
	}
}

// Retrieve выдаёт запись по коду: одиночный файл под оригинальным
// именем или zip-бандл {code}.zip для многофайловой записи.
// Добавляет одну отметку в журнал скачиваний; если запись помечена
// deleteAfterDownload — удаляет её каноническим путём после открытия
// дескриптора выдачи.
func (s *RetrieveService) Retrieve(code string) (*RetrieveResult, *RetrieveError) {
	rec := s.reg.Get(code)
	if rec == nil {
		return nil, &RetrieveError{
			StatusCode: 404,
			Code:       errors.CodeNotFound,
			Message:    fmt.Sprintf("Код %s не найден", code),
		}
	}

	var result *RetrieveResult
	if len(rec.Files) == 1 {
		f := rec.Files[0]
		file, err := s.store.Open(f.StoragePath)
		if err != nil {
			s.logger.Error("Blob не найден на диске",
				slog.String("code", code),
				slog.String("storage_path", f.StoragePath),
				slog.String("error", err.Error()),
			)
			return nil, &RetrieveError{
				StatusCode: 404,
				Code:       errors.CodeNotFound,
				Message:    fmt.Sprintf("Код %s не найден", code),
			}
		}

		stat, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, &RetrieveError{
				StatusCode: 500,
				Code:       errors.CodeInternalError,
				Message:    "Ошибка чтения файла",
			}
		}

		result = &RetrieveResult{
			File:        file,
			Filename:    f.DisplayName,
			ContentType: ContentTypeFor(f.DisplayName),
			Size:        stat.Size(),
		}
	} else {
		bundle, buildErr := s.buildBundle(rec.Code, rec.Files)
		if buildErr != nil {
			return nil, buildErr
		}
		result = bundle
	}

	s.reg.AppendDownload(code, s.now().UTC())

	if rec.DeleteAfterDownload {
		s.sweeper.Delete(code)
		s.logger.Info("Одноразовая запись удалена после выдачи",
			slog.String("code", code),
		)
	}

	middleware.OperationsTotal.WithLabelValues("retrieve", "success").Inc()

	s.logger.Debug("Запись выдана",
		slog.String("code", code),
		slog.String("filename", result.Filename),
		slog.Int64("size", result.Size),
	)

	return result, nil
}

// buildBundle собирает zip-архив записи во временный артефакт
// {code}.zip. Существующий артефакт от предыдущего запроса
// удаляется перед сборкой.
func (s *RetrieveService) buildBundle(code string, files []model.StoredFile) (*RetrieveResult, *RetrieveError) {
	bundlePath := s.store.BundlePath(code)
	_ = os.Remove(bundlePath)

	out, err := os.Create(bundlePath)
	if err != nil {
		s.logger.Error("Ошибка создания zip-артефакта",
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
		return nil, &RetrieveError{
			StatusCode: 500,
			Code:       errors.CodeInternalError,
			Message:    "Ошибка сборки архива",
		}
	}

	zw := zip.NewWriter(out)
	for _, f := range files {
		w, zerr := zw.Create(f.DisplayName)
		if zerr == nil {
			zerr = copyBlob(w, s.store, f.StoragePath)
		}
		if zerr != nil {
			zw.Close()
			out.Close()
			_ = os.Remove(bundlePath)
			s.logger.Error("Ошибка записи файла в архив",
				slog.String("code", code),
				slog.String("storage_path", f.StoragePath),
				slog.String("error", zerr.Error()),
			)
			return nil, &RetrieveError{
				StatusCode: 500,
				Code:       errors.CodeInternalError,
				Message:    "Ошибка сборки архива",
			}
		}
	}

	if err := zw.Close(); err != nil {
		out.Close()
		_ = os.Remove(bundlePath)
		return nil, &RetrieveError{
			StatusCode: 500,
			Code:       errors.CodeInternalError,
			Message:    "Ошибка сборки архива",
		}
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(bundlePath)
		return nil, &RetrieveError{
			StatusCode: 500,
			Code:       errors.CodeInternalError,
			Message:    "Ошибка сборки архива",
		}
	}

	// Переоткрываем артефакт для чтения
	file, err := os.Open(bundlePath)
	if err != nil {
		return nil, &RetrieveError{
			StatusCode: 500,
			Code:       errors.CodeInternalError,
			Message:    "Ошибка чтения архива",
		}
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, &RetrieveError{
			StatusCode: 500,
			Code:       errors.CodeInternalError,
			Message:    "Ошибка чтения архива",
		}
	}

	return &RetrieveResult{
		File:        file,
		Filename:    code + ".zip",
		ContentType: "application/zip",
		Size:        stat.Size(),
	}, nil
}

// copyBlob копирует содержимое blob-а в writer архива.
func copyBlob(w io.Writer, store *blobstore.Store, storagePath string) error {
	f, err := store.Open(storagePath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// mediaTypes — медиа-расширения, отсутствующие во встроенной таблице
// пакета mime. Системные mime.types на минимальных образах могут
// отсутствовать, а классификация /meta от них зависит.
var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
}

// ContentTypeFor определяет MIME-тип по расширению отображаемого имени.
// Неизвестное расширение — application/octet-stream.
func ContentTypeFor(displayName string) string {
	ext := strings.ToLower(filepath.Ext(displayName))
	if ct, ok := mediaTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// IsVideo/IsAudio/IsImage — классификация файла по MIME-типу
// для метаданных записи (/meta).
func IsVideo(contentType string) bool { return strings.HasPrefix(contentType, "video/") }
func IsAudio(contentType string) bool { return strings.HasPrefix(contentType, "audio/") }
func IsImage(contentType string) bool { return strings.HasPrefix(contentType, "image/") }
