// Пакет registry — потокобезопасный in-memory реестр записей,
// отображение код доступа → Record.
//
// Единственная разделяемая изменяемая структура сервиса. Все операции —
// короткие манипуляции с map под одним мьютексом, без I/O под блокировкой.
//
// Не персистентный: при рестарте процесса все коды теряются,
// осиротевшие blob-ы вычищаются стартовой очисткой sweeper-а.
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/JRobber66/FileBackend/internal/domain/model"
)

// Registry — потокобезопасный реестр записей.
// Использует sync.RWMutex для конкурентного чтения и
// эксклюзивной записи.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*model.Record // code → record
	logger  *slog.Logger
}

// New создаёт пустой реестр.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		records: make(map[string]*model.Record),
		logger:  logger.With(slog.String("component", "registry")),
	}
}

// Put добавляет запись в реестр. Запись с существующим кодом
// перезаписывается (генератор кодов гарантирует, что до этого не доходит).
func (r *Registry) Put(rec *model.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Храним копию, чтобы избежать data race при внешних изменениях
	r.records[rec.Code] = rec.Clone()
}

// Get возвращает копию записи по коду.
// Возвращает nil, если запись не найдена.
func (r *Registry) Get(code string) *model.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[code]
	if !ok {
		return nil
	}
	return rec.Clone()
}

// Contains проверяет, занят ли код живой записью.
func (r *Registry) Contains(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[code]
	return ok
}

// Remove удаляет запись из реестра по коду.
// Возвращает true, если запись была найдена и удалена.
// Повторное удаление — no-op (идемпотентность пути удаления).
func (r *Registry) Remove(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[code]; !ok {
		return false
	}
	delete(r.records, code)
	return true
}

// AppendDownload добавляет отметку о полном скачивании в журнал записи.
// Возвращает false, если запись уже удалена (гонка с удалением —
// отметка в этом случае теряется, что допустимо).
func (r *Registry) AppendDownload(code string, ts time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[code]
	if !ok {
		return false
	}
	rec.Downloads = append(rec.Downloads, ts)
	return true
}

// Snapshot возвращает согласованный срез всех записей (копии).
// Итерация и копирование выполняются под блокировкой, сериализация
// JSON — уже снаружи.
func (r *Registry) Snapshot() []*model.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Clone())
	}
	return out
}

// Count возвращает текущее количество живых записей.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
