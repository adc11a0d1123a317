// meta.go — описание записи для клиента (/meta/{code}).
package service

import (
	"fmt"
	"time"

	"github.com/JRobber66/FileBackend/internal/api/errors"
)

// FileMeta — описание одного файла записи.
type FileMeta struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Mime      string `json:"mime"`
	IsVideo   bool   `json:"is_video"`
	IsAudio   bool   `json:"is_audio"`
	IsImage   bool   `json:"is_image"`
	StreamURL string `json:"stream_url"`
}

// RecordMeta — JSON-описание записи.
type RecordMeta struct {
	Code        string     `json:"code"`
	CreatedAt   string     `json:"created_at"`
	ExpiresAt   string     `json:"expires_at"`
	DeleteAfter bool       `json:"delete_after"`
	Files       []FileMeta `json:"files"`
}

// Describe возвращает описание записи: метки времени, флаг
// одноразовости и перечень файлов с индексами, размерами, MIME-типами
// и ссылками на потоковую отдачу.
func (s *RetrieveService) Describe(code string) (*RecordMeta, *RetrieveError) {
	rec := s.reg.Get(code)
	if rec == nil {
		return nil, &RetrieveError{
			StatusCode: 404,
			Code:       errors.CodeNotFound,
			Message:    fmt.Sprintf("Код %s не найден", code),
		}
	}

	meta := &RecordMeta{
		Code:        rec.Code,
		CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
		ExpiresAt:   rec.ExpiresAt.Format(time.RFC3339),
		DeleteAfter: rec.DeleteAfterDownload,
		Files:       make([]FileMeta, 0, len(rec.Files)),
	}

	for i, f := range rec.Files {
		size, err := s.store.Size(f.StoragePath)
		if err != nil {
			// Blob исчез (гонка с удалением) — размер 0, запись не ломаем
			size = 0
		}
		ct := ContentTypeFor(f.DisplayName)
		meta.Files = append(meta.Files, FileMeta{
			Index:     i,
			Name:      f.DisplayName,
			Size:      size,
			Mime:      ct,
			IsVideo:   IsVideo(ct),
			IsAudio:   IsAudio(ct),
			IsImage:   IsImage(ct),
			StreamURL: fmt.Sprintf("/stream/%s/%d", rec.Code, i),
		})
	}

	return meta, nil
}
