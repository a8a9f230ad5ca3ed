package registry

import (
	"sync"
)

// StaticRegistry реестр с фиксированными наборами атрибутов обхода.
// Используется в развертываниях без MySQL и в тестах; по умолчанию
// все наборы пусты. Реализует filter.SkipAttributeProvider.
type StaticRegistry struct {
	mu    sync.RWMutex
	attrs map[string][]string
}

// NewStaticRegistry создает реестр с заданными наборами (может быть nil)
func NewStaticRegistry(attrs map[string][]string) *StaticRegistry {
	if attrs == nil {
		attrs = make(map[string][]string)
	}
	return &StaticRegistry{attrs: attrs}
}

// SkipAttributes возвращает набор атрибутов обхода устройства
func (r *StaticRegistry) SkipAttributes(deviceID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.attrs[deviceID]
}

// SetSkipAttributes задает набор атрибутов обхода устройства
func (r *StaticRegistry) SetSkipAttributes(deviceID string, attrs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attrs[deviceID] = attrs
}
