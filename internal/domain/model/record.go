// Пакет model — доменные модели File Relay.
// Record — запись о наборе загруженных файлов, выданная под кодом доступа.
// Живёт только в памяти (in-memory реестр), на диск не сохраняется.
package model

import (
	"time"
)

// StoredFile — описание одного сохранённого файла внутри записи.
// Порядок файлов в записи фиксируется при создании и определяет
// индексы для потоковой отдачи (/stream/{code}/{index}).
type StoredFile struct {
	// StoragePath — имя файла на диске (относительно FR_DATA_DIR).
	// Формат: {code}_{sanitizedName}. Не возвращается в API.
	StoragePath string

	// DisplayName — оригинальное (санитизированное) имя файла.
	// Используется в Content-Disposition и внутри zip-архива.
	DisplayName string
}

// Record — запись реестра: набор файлов, выданный под кодом доступа.
// Владелец записи — реестр (registry); все поля кроме Downloads
// неизменяемы после создания.
type Record struct {
	// Code — код доступа, уникален среди живых записей
	Code string

	// Files — упорядоченный набор файлов записи, непустой
	Files []StoredFile

	// CreatedAt — время создания (UTC), для отображения
	CreatedAt time.Time

	// ExpiresAt — CreatedAt + TTL, вычисляется один раз при создании
	ExpiresAt time.Time

	// CreatedUnixNano — момент создания в наносекундах epoch.
	// Используется для сравнения TTL, отвязан от отображаемых меток.
	CreatedUnixNano int64

	// Downloads — журнал полных скачиваний (append-only).
	// Потоковая отдача (/stream) сюда не попадает.
	Downloads []time.Time

	// DeleteAfterDownload — удалить запись после первого полного скачивания
	DeleteAfterDownload bool
}

// IsExpired возвращает true, если с момента создания прошло больше ttl.
func (r *Record) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.UnixNano()-r.CreatedUnixNano > int64(ttl)
}

// Clone возвращает глубокую копию записи. Реестр отдаёт наружу только
// копии, чтобы исключить data race при изменении журнала скачиваний.
func (r *Record) Clone() *Record {
	copied := *r
	copied.Files = make([]StoredFile, len(r.Files))
	copy(copied.Files, r.Files)
	copied.Downloads = make([]time.Time, len(r.Downloads))
	copy(copied.Downloads, r.Downloads)
	return &copied
}
