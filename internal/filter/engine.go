package filter

import (
	"sync/atomic"
	"time"

	"github.com/flybeeper/track-filter/internal/metrics"
	"github.com/flybeeper/track-filter/internal/models"
	"github.com/flybeeper/track-filter/pkg/utils"
)

// SkipAttributeProvider отдает набор ключей атрибутов устройства, при
// наличии любого из которых позиция принимается в обход всех правил.
// Реализация (реестр устройств) сама отвечает за кеширование; движок
// результат не кеширует. Пустой набор - обход не применяется.
type SkipAttributeProvider interface {
	SkipAttributes(deviceID string) []string
}

// ruleSnapshot неизменяемый снимок конфигурации с собранной цепочкой
// правил. Заменяется целиком через атомарный указатель, поэтому
// горячий путь читает конфигурацию без блокировок.
type ruleSnapshot struct {
	cfg   *Config
	rules []PositionRule
}

// Stats счётчики решений движка
type Stats struct {
	Processed      uint64 `json:"processed"`
	Accepted       uint64 `json:"accepted"`
	Rejected       uint64 `json:"rejected"`
	ForcedAccepts  uint64 `json:"forced_accepts"`
	BypassAccepts  uint64 `json:"bypass_accepts"`
	TrackedDevices int    `json:"tracked_devices"`
}

// Engine движок фильтрации позиций: применяет цепочку правил качества
// к каждой входящей позиции и решает, принять её или молча отбросить.
// Поддерживает состояние по устройствам (последняя принятая позиция и
// счётчик отклонений) и политику переопределения: эскалацию по skip
// limit и обход по атрибутам.
//
// Движок не выполняет I/O и не возвращает ошибок: каждый вызов
// завершается решением.
type Engine struct {
	snapshot atomic.Pointer[ruleSnapshot]
	store    *StateStore
	provider SkipAttributeProvider
	logger   *utils.Logger

	// подменяется в тестах
	now func() time.Time

	processed uint64
	accepted  uint64
	rejected  uint64
	forced    uint64
	bypassed  uint64
}

// NewEngine создает движок фильтрации. provider может быть nil - тогда
// обход по атрибутам не применяется даже при включенном флаге.
func NewEngine(cfg *Config, provider SkipAttributeProvider, logger *utils.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	e := &Engine{
		store:    NewStateStore(),
		provider: provider,
		logger:   logger.WithField("component", "filter"),
		now:      time.Now,
	}
	e.snapshot.Store(&ruleSnapshot{cfg: cfg, rules: buildRules(cfg)})
	return e
}

// UpdateConfig атомарно заменяет снимок конфигурации. Выполняется
// редко; запущенные вызовы Filter дорабатывают со старым снимком.
func (e *Engine) UpdateConfig(cfg *Config) {
	e.snapshot.Store(&ruleSnapshot{cfg: cfg, rules: buildRules(cfg)})
	e.logger.WithField("enable", cfg.Enable).Info("Filter configuration updated")
}

// Config возвращает текущий снимок конфигурации
func (e *Engine) Config() *Config {
	return e.snapshot.Load().cfg
}

// Store открывает доступ к состояниям устройств только для чтения
// (REST-слой показывает их в статистике)
func (e *Engine) Store() *StateStore {
	return e.store
}

// Filter принимает решение по одной позиции. true - позиция принята и
// должна уйти в хранение и рассылку; false - позицию нужно молча
// отбросить. Принятая позиция дополняется атрибутами distance и
// totalDistance, вычисленными от предыдущей принятой позиции.
//
// Вызовы для одного устройства линеаризуются его мьютексом; вызовы для
// разных устройств не конкурируют.
func (e *Engine) Filter(position *models.Position) bool {
	start := time.Now()
	defer func() {
		metrics.FilterDecisionDuration.Observe(time.Since(start).Seconds())
	}()

	atomic.AddUint64(&e.processed, 1)
	metrics.FilterPositionsTotal.Inc()

	snap := e.snapshot.Load()
	st := e.store.acquire(position.DeviceID)

	st.mu.Lock()
	defer st.mu.Unlock()

	if !snap.cfg.Enable {
		// Позиция принимается без изменений: при выключенной
		// фильтрации движок не выводит даже производные атрибуты
		atomic.AddUint64(&e.accepted, 1)
		metrics.FilterAcceptedTotal.Inc()
		st.last = position
		return true
	}

	if snap.cfg.SkipAttributesEnable && e.hasSkipAttribute(position) {
		atomic.AddUint64(&e.bypassed, 1)
		metrics.FilterBypassTotal.Inc()
		st.skipCount = 0
		e.accept(st, position)
		return true
	}

	now := e.now()
	for _, rule := range snap.rules {
		if !rule.Reject(position, st.last, now) {
			continue
		}

		st.skipCount++
		if snap.cfg.SkipLimit > 0 && st.skipCount > snap.cfg.SkipLimit {
			// Устройство слишком долго молчит из-за фильтрации -
			// пропускаем одну позицию, чтобы оно осталось живым
			atomic.AddUint64(&e.forced, 1)
			metrics.FilterForcedAccepts.Inc()
			e.logger.WithFields(map[string]interface{}{
				"device_id":  position.DeviceID,
				"rule":       rule.Name(),
				"skip_count": st.skipCount,
			}).Warn("Skip limit exceeded, force-accepting position")

			st.skipCount = 0
			e.accept(st, position)
			return true
		}

		atomic.AddUint64(&e.rejected, 1)
		metrics.FilterRejectedTotal.WithLabelValues(rule.Name()).Inc()
		e.logger.WithFields(map[string]interface{}{
			"device_id":  position.DeviceID,
			"rule":       rule.Name(),
			"skip_count": st.skipCount,
		}).Debug("Position rejected")
		return false
	}

	st.skipCount = 0
	e.accept(st, position)
	return true
}

// accept фиксирует принятие: выводит атрибуты пройденного расстояния и
// обновляет последнюю принятую позицию устройства. Вызывается под
// мьютексом устройства.
func (e *Engine) accept(st *deviceState, position *models.Position) {
	atomic.AddUint64(&e.accepted, 1)
	metrics.FilterAcceptedTotal.Inc()

	if st.last != nil {
		distance := position.DistanceTo(st.last)
		position.SetAttribute(models.AttrDistance, distance)
		position.SetAttribute(models.AttrTotalDistance,
			st.last.FloatAttribute(models.AttrTotalDistance)+distance)
	} else {
		position.SetAttribute(models.AttrDistance, 0.0)
		position.SetAttribute(models.AttrTotalDistance, 0.0)
	}

	st.last = position
}

// hasSkipAttribute проверяет, несёт ли позиция атрибут из набора
// обхода её устройства
func (e *Engine) hasSkipAttribute(position *models.Position) bool {
	if e.provider == nil || len(position.Attributes) == 0 {
		return false
	}
	for _, key := range e.provider.SkipAttributes(position.DeviceID) {
		if position.HasAttribute(key) {
			return true
		}
	}
	return false
}

// Stats возвращает снимок счётчиков движка
func (e *Engine) Stats() Stats {
	return Stats{
		Processed:      atomic.LoadUint64(&e.processed),
		Accepted:       atomic.LoadUint64(&e.accepted),
		Rejected:       atomic.LoadUint64(&e.rejected),
		ForcedAccepts:  atomic.LoadUint64(&e.forced),
		BypassAccepts:  atomic.LoadUint64(&e.bypassed),
		TrackedDevices: e.store.Len(),
	}
}
