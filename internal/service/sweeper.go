// sweeper.go — сервис очистки просроченных записей.
//
// Sweep вызывается синхронно в начале каждого запроса, который
// обращается к реестру: фонового тикера нет, поэтому запись может
// пережить свой TTL максимум до следующего входящего запроса.
// Delete — канонический путь удаления записи: сначала реестр (под
// блокировкой), затем best-effort удаление blob-ов и zip-артефакта.
package service

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JRobber66/FileBackend/internal/api/middleware"
	"github.com/JRobber66/FileBackend/internal/storage/blobstore"
	"github.com/JRobber66/FileBackend/internal/storage/registry"
)

// Prometheus метрики очистки
var (
	// sweepRunsTotal — количество проходов очистки.
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fr_sweep_runs_total",
		Help: "Общее количество проходов очистки просроченных записей",
	})

	// sweepExpiredTotal — количество записей, удалённых по TTL.
	sweepExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fr_sweep_expired_total",
		Help: "Общее количество записей, удалённых по истечении TTL",
	})
)

// Sweeper — сервис удаления записей: по TTL и по флагу
// deleteAfterDownload (через Delete).
type Sweeper struct {
	store  *blobstore.Store
	reg    *registry.Registry
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewSweeper создаёт сервис очистки.
// now — источник времени; в тестах подменяется симулированными часами.
func NewSweeper(
	store *blobstore.Store,
	reg *registry.Registry,
	ttl time.Duration,
	now func() time.Time,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		store:  store,
		reg:    reg,
		ttl:    ttl,
		now:    now,
		logger: logger.With(slog.String("component", "sweeper")),
	}
}

// Sweep удаляет все записи, пережившие TTL. Возвращает количество
// удалённых записей. Срез реестра снимается под блокировкой,
// удаление blob-ов выполняется уже без неё.
func (s *Sweeper) Sweep() int {
	sweepRunsTotal.Inc()

	now := s.now()
	count := 0
	for _, rec := range s.reg.Snapshot() {
		if !rec.IsExpired(now, s.ttl) {
			continue
		}
		s.Delete(rec.Code)
		sweepExpiredTotal.Inc()
		s.logger.Info("Запись удалена по TTL",
			slog.String("code", rec.Code),
			slog.Time("created_at", rec.CreatedAt),
		)
		count++
	}
	return count
}

// Delete удаляет запись по каноническому пути: сначала запись
// исключается из реестра (под блокировкой), затем удаляются её blob-ы
// и zip-артефакт. Конкурентный читатель, уже получивший пути записи,
// дочитает уже открытые файлы — это принятое best-effort окно.
//
// Идемпотентен: повторное удаление того же кода — no-op.
// Ошибки удаления файлов логируются и проглатываются: неудавшаяся
// очистка не должна ломать исход основного запроса.
func (s *Sweeper) Delete(code string) {
	rec := s.reg.Get(code)
	if rec == nil {
		return
	}
	if !s.reg.Remove(code) {
		return
	}

	for _, f := range rec.Files {
		if err := s.store.Delete(f.StoragePath); err != nil {
			s.logger.Warn("Не удалось удалить blob",
				slog.String("code", code),
				slog.String("storage_path", f.StoragePath),
				slog.String("error", err.Error()),
			)
		}
	}

	// Zip-артефакт мог и не создаваться — отсутствие не ошибка
	if err := os.Remove(s.store.BundlePath(code)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Не удалось удалить zip-артефакт",
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
	}

	middleware.RecordsTotal.Set(float64(s.reg.Count()))
}

// PurgeOrphans удаляет из директории данных файлы, не принадлежащие
// ни одной живой записи. Вызывается один раз при старте: реестр
// живёт только в памяти, поэтому всё, что осталось на диске от
// предыдущего запуска, недостижимо.
func (s *Sweeper) PurgeOrphans() int {
	entries, err := s.store.Entries()
	if err != nil {
		s.logger.Warn("Не удалось просканировать директорию данных",
			slog.String("error", err.Error()),
		)
		return 0
	}

	count := 0
	for _, name := range entries {
		if s.reg.Contains(ownerCode(name)) {
			continue
		}
		if err := s.store.Delete(name); err != nil {
			s.logger.Warn("Не удалось удалить осиротевший файл",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		count++
	}

	if count > 0 {
		s.logger.Info("Осиротевшие файлы удалены", slog.Int("count", count))
	}
	return count
}

// ownerCode извлекает код доступа из имени файла на диске:
// {code}_{имя} для blob-ов, {code}.zip для артефактов.
func ownerCode(name string) string {
	if strings.HasSuffix(name, ".zip") {
		return strings.TrimSuffix(name, ".zip")
	}
	if i := strings.Index(name, "_"); i != -1 {
		return name[:i]
	}
	return name
}
