package filter

import (
	"time"
)

// Config содержит настройки движка фильтрации позиций. Снимок
// конфигурации неизменяем после создания: движок читает его через
// атомарный указатель, горячая замена выполняется через UpdateConfig.
//
// Нулевое значение порога означает, что соответствующее правило выключено.
type Config struct {
	// Enable главный выключатель фильтрации. При false каждая позиция
	// принимается без оценки правил.
	Enable bool `json:"enable"`

	// FilterInvalid отклонять позиции с невалидным фиксом
	FilterInvalid bool `json:"filter_invalid"`

	// FilterZero отклонять позиции с нулевыми координатами (0,0)
	FilterZero bool `json:"filter_zero"`

	// FilterDuplicate отклонять позиции с повторяющейся временной меткой
	// (ретрансмиссия протокола)
	FilterDuplicate bool `json:"filter_duplicate"`

	// FilterFuture отклонять позиции с временем дальше now+FilterFuture
	// (уход часов устройства). 0 - правило выключено.
	FilterFuture time.Duration `json:"filter_future"`

	// FilterApproximate отклонять приблизительные фиксы (по вышкам/Wi-Fi)
	FilterApproximate bool `json:"filter_approximate"`

	// FilterStatic отклонять GPS-дрожание неподвижного устройства:
	// скорость около нуля и смещение меньше StaticDistance
	FilterStatic bool `json:"filter_static"`

	// StaticSpeedMax порог скорости для правила Static, км/ч
	StaticSpeedMax float64 `json:"static_speed_max"`

	// StaticDistance порог шумового смещения для правила Static, метры
	StaticDistance float64 `json:"static_distance"`

	// FilterDistance отклонять позиции ближе заданного расстояния от
	// последней принятой, метры. 0 - правило выключено.
	FilterDistance float64 `json:"filter_distance"`

	// FilterMaxSpeed отклонять позиции, неявная скорость до которых
	// (расстояние/время от последней принятой) превышает порог, км/ч.
	// 0 - правило выключено.
	FilterMaxSpeed float64 `json:"filter_max_speed"`

	// SkipLimit после скольких подряд отклонений следующая позиция
	// принимается принудительно, чтобы устройство не пропало с карты
	// навсегда. 0 - эскалация выключена.
	SkipLimit int `json:"skip_limit"`

	// SkipAttributesEnable включает обход фильтрации по атрибутам:
	// позиция с любым атрибутом из набора устройства принимается
	// безусловно (тревоги и ответы на команды терять нельзя)
	SkipAttributesEnable bool `json:"skip_attributes_enable"`
}

// DefaultConfig возвращает конфигурацию фильтрации по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Enable:               true,
		FilterInvalid:        true,
		FilterZero:           true,
		FilterDuplicate:      true,
		FilterFuture:         5 * time.Minute,
		FilterApproximate:    false,
		FilterStatic:         false,
		StaticSpeedMax:       1.0, // км/ч, ниже - устройство считается неподвижным
		StaticDistance:       10,  // метров GPS-шума на стоянке
		FilterDistance:       0,
		FilterMaxSpeed:       0,
		SkipLimit:            0,
		SkipAttributesEnable: false,
	}
}
