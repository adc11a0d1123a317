// relay.go — HTTP handlers File Relay.
// Upload, Retrieve, Meta, Stream, Log.
//
// Каждый handler, обращающийся к реестру, сначала запускает проход
// очистки (opportunistic sweeping): фонового тикера нет, просроченные
// записи вычищаются на входе очередного запроса.
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JRobber66/FileBackend/internal/api/errors"
	"github.com/JRobber66/FileBackend/internal/service"
)

// multipartMemoryLimit — буфер парсинга multipart-формы (32 MB),
// остальное уходит во временные файлы.
const multipartMemoryLimit = 32 << 20

// RelayHandler — обработчик endpoints времени жизни записей.
type RelayHandler struct {
	uploadSvc   *service.UploadService
	retrieveSvc *service.RetrieveService
	streamSvc   *service.StreamService
	adminSvc    *service.AdminService
	sweeper     *service.Sweeper
}

// NewRelayHandler создаёт обработчик endpoints File Relay.
func NewRelayHandler(
	uploadSvc *service.UploadService,
	retrieveSvc *service.RetrieveService,
	streamSvc *service.StreamService,
	adminSvc *service.AdminService,
	sweeper *service.Sweeper,
) *RelayHandler {
	return &RelayHandler{
		uploadSvc:   uploadSvc,
		retrieveSvc: retrieveSvc,
		streamSvc:   streamSvc,
		adminSvc:    adminSvc,
		sweeper:     sweeper,
	}
}

// Upload обрабатывает POST /upload.
// Multipart form: files (один или несколько), delete_after ("true"/отсутствует).
// Ответ: {"code": "..."}.
func (h *RelayHandler) Upload(w http.ResponseWriter, r *http.Request) {
	h.sweeper.Sweep()

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		errors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	var files []service.UploadFile
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			f, err := header.Open()
			if err != nil {
				errors.InternalError(w, "Ошибка чтения загруженного файла")
				return
			}
			defer f.Close()
			files = append(files, service.UploadFile{
				Reader:   f,
				Filename: header.Filename,
				Size:     header.Size,
			})
		}
	}

	deleteAfter := r.FormValue("delete_after") == "true"

	result, uploadErr := h.uploadSvc.Upload(service.UploadParams{
		Files:       files,
		DeleteAfter: deleteAfter,
	})
	if uploadErr != nil {
		errors.WriteError(w, uploadErr.StatusCode, uploadErr.Code, uploadErr.Message)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"code": result.Code})
}

// Retrieve обрабатывает GET /retrieve/{code}.
// Одиночный файл отдаётся под оригинальным именем, многофайловая
// запись — свежесобранным zip-бандлом. Предъявление админ-секрета
// вместо кода возвращает полный админ-листинг (пересечение пространств
// кодов и секретов пренебрежимо).
func (h *RelayHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	h.sweeper.Sweep()

	code := chi.URLParam(r, "code")

	if h.adminSvc.Authorize(code) {
		writeJSON(w, http.StatusOK, h.adminSvc.ListAll())
		return
	}

	result, retrieveErr := h.retrieveSvc.Retrieve(code)
	if retrieveErr != nil {
		errors.WriteError(w, retrieveErr.StatusCode, retrieveErr.Code, retrieveErr.Message)
		return
	}
	defer result.File.Close()

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.FormatInt(result.Size, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, result.File)
}

// Meta обрабатывает GET /meta/{code}.
// JSON-описание записи: метки времени, флаг одноразовости, файлы.
func (h *RelayHandler) Meta(w http.ResponseWriter, r *http.Request) {
	h.sweeper.Sweep()

	code := chi.URLParam(r, "code")

	meta, metaErr := h.retrieveSvc.Describe(code)
	if metaErr != nil {
		errors.WriteError(w, metaErr.StatusCode, metaErr.Code, metaErr.Message)
		return
	}

	writeJSON(w, http.StatusOK, meta)
}

// Stream обрабатывает GET /stream/{code}/{index}.
// Inline-отдача одного файла записи с поддержкой byte-range.
// Не пишет в журнал скачиваний и не сжигает одноразовые записи.
func (h *RelayHandler) Stream(w http.ResponseWriter, r *http.Request) {
	h.sweeper.Sweep()

	code := chi.URLParam(r, "code")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		errors.NotFound(w, fmt.Sprintf("Код %s не найден", code))
		return
	}

	if streamErr := h.streamSvc.Serve(w, r, code, index); streamErr != nil {
		errors.WriteError(w, streamErr.StatusCode, streamErr.Code, streamErr.Message)
	}
}

// Log обрабатывает GET /log/{code}?admin={secret}.
// Журнал скачиваний одной записи; проверка секрета выполняется до
// любых обращений к реестру, чтобы не раскрывать существование кодов.
func (h *RelayHandler) Log(w http.ResponseWriter, r *http.Request) {
	if !h.adminSvc.Authorize(r.URL.Query().Get("admin")) {
		errors.Unauthorized(w, "Неверный админ-секрет")
		return
	}

	h.sweeper.Sweep()

	code := chi.URLParam(r, "code")
	log := h.adminSvc.Log(code)
	if log == nil {
		errors.NotFound(w, fmt.Sprintf("Код %s не найден", code))
		return
	}

	writeJSON(w, http.StatusOK, log)
}

// writeJSON сериализует ответ в JSON со статусом.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
