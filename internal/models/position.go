package models

import (
	"time"
)

// Ключи атрибутов позиции, известные шлюзу. Декодеры протоколов могут
// добавлять произвольные ключи - здесь перечислены те, на которые
// опирается конвейер фильтрации и хранение.
const (
	AttrAlarm         = "alarm"         // тревога от устройства
	AttrResult        = "result"        // результат выполнения команды
	AttrApproximate   = "approximate"   // фикс по вышкам/Wi-Fi, не спутниковый
	AttrIgnition      = "ignition"      // состояние зажигания
	AttrEvent         = "event"         // код события протокола
	AttrDistance      = "distance"      // метры от предыдущей принятой позиции
	AttrTotalDistance = "totalDistance" // накопленный пробег в метрах
)

// Position представляет одну телеметрическую выборку от устройства:
// декодированный GPS-фикс с атрибутами протокола
type Position struct {
	DeviceID string `json:"device_id"`

	// Время фикса, присвоенное устройством или шлюзом
	Time time.Time `json:"time"`

	// Флаг валидности фикса из исходного протокола
	Valid bool `json:"valid"`

	Position GeoPoint `json:"position"`

	Speed  float64 `json:"speed"`  // км/ч
	Course float64 `json:"course"` // градусы

	// Свободные атрибуты протокола (тревоги, зажигание, уровень топлива...)
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// HasAttribute сообщает, присутствует ли атрибут с данным ключом
func (p *Position) HasAttribute(key string) bool {
	_, ok := p.Attributes[key]
	return ok
}

// SetAttribute устанавливает атрибут, создавая мапу при необходимости
func (p *Position) SetAttribute(key string, value interface{}) {
	if p.Attributes == nil {
		p.Attributes = make(map[string]interface{})
	}
	p.Attributes[key] = value
}

// BoolAttribute возвращает булев атрибут, false если атрибут
// отсутствует или имеет другой тип
func (p *Position) BoolAttribute(key string) bool {
	if v, ok := p.Attributes[key].(bool); ok {
		return v
	}
	return false
}

// FloatAttribute возвращает числовой атрибут или 0
func (p *Position) FloatAttribute(key string) float64 {
	switch v := p.Attributes[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// DistanceTo вычисляет расстояние до другой позиции в метрах
func (p *Position) DistanceTo(other *Position) float64 {
	return p.Position.DistanceTo(other.Position)
}

// Reset очищает позицию для переиспользования через пул объектов
func (p *Position) Reset() {
	p.DeviceID = ""
	p.Time = time.Time{}
	p.Valid = false
	p.Position = GeoPoint{}
	p.Speed = 0
	p.Course = 0
	p.Attributes = nil
}
