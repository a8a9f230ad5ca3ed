package filter

import (
	"sync"
	"sync/atomic"

	"github.com/flybeeper/track-filter/internal/metrics"
	"github.com/flybeeper/track-filter/internal/models"
)

// deviceState состояние фильтрации одного устройства: последняя
// принятая позиция и счётчик подряд идущих отклонений. Мьютекс на
// каждое устройство линеаризует read-modify-write его собственного
// состояния, не блокируя другие устройства.
type deviceState struct {
	mu        sync.Mutex
	last      *models.Position
	skipCount int
}

// StateStore хранит состояние фильтрации по идентификаторам устройств.
// Записи создаются лениво при первом появлении устройства и живут до
// завершения процесса; рост ограничен населением устройств.
type StateStore struct {
	states sync.Map // deviceID -> *deviceState
	count  atomic.Int64
}

// NewStateStore создает пустое хранилище состояний
func NewStateStore() *StateStore {
	return &StateStore{}
}

// acquire возвращает состояние устройства, создавая его атомарно при
// первом появлении: гонка двух первых пакетов одного устройства даёт
// ровно одну запись
func (s *StateStore) acquire(deviceID string) *deviceState {
	if st, ok := s.states.Load(deviceID); ok {
		return st.(*deviceState)
	}

	st, loaded := s.states.LoadOrStore(deviceID, &deviceState{})
	if !loaded {
		s.count.Add(1)
		metrics.FilterActiveDevices.Inc()
	}
	return st.(*deviceState)
}

// LastPosition возвращает последнюю принятую позицию устройства
func (s *StateStore) LastPosition(deviceID string) (*models.Position, bool) {
	v, ok := s.states.Load(deviceID)
	if !ok {
		return nil, false
	}
	st := v.(*deviceState)

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.last == nil {
		return nil, false
	}
	return st.last, true
}

// SkipCount возвращает текущий счётчик отклонений устройства
func (s *StateStore) SkipCount(deviceID string) int {
	v, ok := s.states.Load(deviceID)
	if !ok {
		return 0
	}
	st := v.(*deviceState)

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.skipCount
}

// Len возвращает количество устройств с состоянием
func (s *StateStore) Len() int {
	return int(s.count.Load())
}
