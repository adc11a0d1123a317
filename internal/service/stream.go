// stream.go — сервис потоковой отдачи одного файла записи
// с поддержкой byte-range запросов.
//
// Потоковая отдача не считается скачиванием: она не пишет в журнал
// и не срабатывает на deleteAfterDownload — перемотка плеера не
// должна сжигать одноразовую запись.
package service

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/JRobber66/FileBackend/internal/api/errors"
	"github.com/JRobber66/FileBackend/internal/api/middleware"
	"github.com/JRobber66/FileBackend/internal/storage/blobstore"
	"github.com/JRobber66/FileBackend/internal/storage/registry"
)

// StreamError — ошибка потоковой отдачи с HTTP-кодом.
type StreamError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StreamService — сервис потоковой отдачи файлов.
type StreamService struct {
	store  *blobstore.Store
	reg    *registry.Registry
	logger *slog.Logger
}

// NewStreamService создаёт сервис потоковой отдачи.
func NewStreamService(store *blobstore.Store, reg *registry.Registry, logger *slog.Logger) *StreamService {
	return &StreamService{
		store:  store,
		reg:    reg,
		logger: logger.With(slog.String("component", "stream_service")),
	}
}

// Serve отдаёт файл записи по индексу.
// Без заголовка Range — весь файл, 200. С заголовком
// Range: bytes=start-end — ровно запрошенный срез, 206, заголовки
// Content-Range/Accept-Ranges/Content-Length. Некорректный заголовок
// деградирует до полной отдачи, а не до ошибки.
func (s *StreamService) Serve(w http.ResponseWriter, r *http.Request, code string, index int) *StreamError {
	rec := s.reg.Get(code)
	if rec == nil {
		return s.notFound(code)
	}
	if index < 0 || index >= len(rec.Files) {
		return s.notFound(code)
	}

	f := rec.Files[index]
	file, err := s.store.Open(f.StoragePath)
	if err != nil {
		s.logger.Error("Blob не найден на диске",
			slog.String("code", code),
			slog.String("storage_path", f.StoragePath),
			slog.String("error", err.Error()),
		)
		return s.notFound(code)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return &StreamError{
			StatusCode: 500,
			Code:       errors.CodeInternalError,
			Message:    "Ошибка чтения файла",
		}
	}
	size := stat.Size()

	contentType := ContentTypeFor(f.DisplayName)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", f.DisplayName))
	w.Header().Set("Accept-Ranges", "bytes")

	start, end, ok := parseRange(r.Header.Get("Range"), size)
	if !ok {
		// Полная отдача: Range отсутствует или не распарсился
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, file); err != nil {
			s.logger.Debug("Поток прерван клиентом",
				slog.String("code", code),
				slog.String("error", err.Error()),
			)
		}
		middleware.OperationsTotal.WithLabelValues("stream", "success").Inc()
		return nil
	}

	length := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)

	if _, err := file.Seek(start, io.SeekStart); err != nil {
		return nil // заголовки уже отправлены, прерываем отдачу
	}
	if _, err := io.CopyN(w, file, length); err != nil {
		s.logger.Debug("Поток прерван клиентом",
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
	}

	middleware.OperationsTotal.WithLabelValues("stream", "success").Inc()
	return nil
}

func (s *StreamService) notFound(code string) *StreamError {
	return &StreamError{
		StatusCode: 404,
		Code:       errors.CodeNotFound,
		Message:    fmt.Sprintf("Код %s не найден", code),
	}
}

// parseRange разбирает заголовок Range: bytes=start-end.
// start обязателен, end опционален (по умолчанию последний байт).
// Границы прижимаются к размеру файла: end не больше size-1.
// Возвращает ok=false, если заголовок отсутствует, не разбирается
// или срез пуст (start за концом файла) — вызывающий код отдаёт
// полный файл.
func parseRange(header string, size int64) (start, end int64, ok bool) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return 0, 0, false
	}

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false
	}

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}

	end = size - 1
	if trimmed := strings.TrimSpace(endStr); trimmed != "" {
		end, err = strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return 0, 0, false
		}
	}
	if end > size-1 {
		end = size - 1
	}
	if start > end {
		return 0, 0, false
	}
	return start, end, true
}
