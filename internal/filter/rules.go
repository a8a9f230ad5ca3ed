package filter

import (
	"time"

	"github.com/flybeeper/track-filter/internal/models"
)

// PositionRule одно правило качества. Reject отвечает на вопрос
// "нужно ли отклонить позицию" по входящей позиции, последней принятой
// позиции устройства (nil, если её ещё нет) и текущему времени.
// Правила не имеют состояния и не выполняют I/O.
type PositionRule interface {
	Name() string
	Reject(position, last *models.Position, now time.Time) bool
}

// buildRules собирает упорядоченную цепочку включенных правил.
// Порядок фиксирован: дешёвые проверки самой позиции идут раньше
// правил, требующих расчёта расстояния. Первое сработавшее правило
// завершает оценку.
func buildRules(cfg *Config) []PositionRule {
	rules := make([]PositionRule, 0, 8)

	if cfg.FilterInvalid {
		rules = append(rules, invalidRule{})
	}
	if cfg.FilterZero {
		rules = append(rules, zeroRule{})
	}
	if cfg.FilterDuplicate {
		rules = append(rules, duplicateRule{})
	}
	if cfg.FilterFuture > 0 {
		rules = append(rules, futureRule{tolerance: cfg.FilterFuture})
	}
	if cfg.FilterApproximate {
		rules = append(rules, approximateRule{})
	}
	if cfg.FilterStatic {
		rules = append(rules, staticRule{
			speedMax: cfg.StaticSpeedMax,
			distance: cfg.StaticDistance,
		})
	}
	if cfg.FilterDistance > 0 {
		rules = append(rules, distanceRule{minDistance: cfg.FilterDistance})
	}
	if cfg.FilterMaxSpeed > 0 {
		rules = append(rules, maxSpeedRule{maxSpeed: cfg.FilterMaxSpeed})
	}

	return rules
}

// invalidRule отклоняет позиции без валидного фикса
type invalidRule struct{}

func (invalidRule) Name() string { return "invalid" }

func (invalidRule) Reject(position, last *models.Position, now time.Time) bool {
	return !position.Valid
}

// zeroRule отклоняет нулевые координаты (0,0) - заглушку невалидного
// фикса у многих протоколов
type zeroRule struct{}

func (zeroRule) Name() string { return "zero" }

func (zeroRule) Reject(position, last *models.Position, now time.Time) bool {
	return position.Position.IsZero()
}

// duplicateRule отклоняет повтор той же временной метки - устройство
// ретранслировало уже принятый пакет
type duplicateRule struct{}

func (duplicateRule) Name() string { return "duplicate" }

func (duplicateRule) Reject(position, last *models.Position, now time.Time) bool {
	return last != nil && position.Time.Equal(last.Time)
}

// futureRule отклоняет позиции из будущего: уход часов устройства или
// повреждённая метка времени
type futureRule struct {
	tolerance time.Duration
}

func (futureRule) Name() string { return "future" }

func (r futureRule) Reject(position, last *models.Position, now time.Time) bool {
	return position.Time.After(now.Add(r.tolerance))
}

// approximateRule отклоняет приблизительные фиксы (вышки сотовой связи,
// Wi-Fi), точность которых хуже спутниковой
type approximateRule struct{}

func (approximateRule) Name() string { return "approximate" }

func (approximateRule) Reject(position, last *models.Position, now time.Time) bool {
	return position.BoolAttribute(models.AttrApproximate)
}

// staticRule отклоняет GPS-дрожание неподвижного устройства: скорость
// около нуля и смещение в пределах шумового порога
type staticRule struct {
	speedMax float64 // км/ч
	distance float64 // метры
}

func (staticRule) Name() string { return "static" }

func (r staticRule) Reject(position, last *models.Position, now time.Time) bool {
	if last == nil {
		return false
	}
	return position.Speed <= r.speedMax && position.DistanceTo(last) < r.distance
}

// distanceRule отклоняет позиции ближе минимального расстояния от
// последней принятой - подавление субметрового шума на стоянке
type distanceRule struct {
	minDistance float64 // метры
}

func (distanceRule) Name() string { return "distance" }

func (r distanceRule) Reject(position, last *models.Position, now time.Time) bool {
	return last != nil && position.DistanceTo(last) < r.minDistance
}

// maxSpeedRule отклоняет GPS-телепортации: неявная скорость от
// последней принятой позиции превышает физический максимум
type maxSpeedRule struct {
	maxSpeed float64 // км/ч
}

func (maxSpeedRule) Name() string { return "maxSpeed" }

func (r maxSpeedRule) Reject(position, last *models.Position, now time.Time) bool {
	if last == nil {
		return false
	}

	elapsed := position.Time.Sub(last.Time)
	if elapsed <= 0 {
		// Неположительный интервал между двумя выборками сам по себе
		// аномален - считаем телепортацией
		return true
	}

	distanceKm := position.DistanceTo(last) / 1000
	impliedSpeed := distanceKm / elapsed.Hours()
	return impliedSpeed > r.maxSpeed
}
