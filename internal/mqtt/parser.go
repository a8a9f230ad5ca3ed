package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/flybeeper/track-filter/internal/models"
	"github.com/flybeeper/track-filter/pkg/pool"
	"github.com/flybeeper/track-filter/pkg/utils"
)

// positionEnvelope JSON-конверт декодированной позиции, публикуемый
// протокольными шлюзами в tf/positions/{gateway}
type positionEnvelope struct {
	DeviceID   string                 `json:"device_id"`
	Time       time.Time              `json:"time"`
	Valid      bool                   `json:"valid"`
	Latitude   float64                `json:"lat"`
	Longitude  float64                `json:"lon"`
	Altitude   float64                `json:"alt"`
	Speed      float64                `json:"speed"`  // км/ч
	Course     float64                `json:"course"` // градусы
	Attributes map[string]interface{} `json:"attributes"`
}

// Parser разбирает конверты позиций из MQTT сообщений
type Parser struct {
	logger *utils.Logger
}

// NewParser создает новый парсер
func NewParser(logger *utils.Logger) *Parser {
	return &Parser{logger: logger.WithField("component", "parser")}
}

// Parse разбирает payload в позицию. Структурные проблемы payload -
// ошибка парсера; качество самого фикса (невалидность, нулевые
// координаты) оценивает движок фильтрации, а не парсер.
// Позиция берется из пула объектов.
func (p *Parser) Parse(payload []byte) (*models.Position, error) {
	var envelope positionEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("malformed position envelope: %w", err)
	}

	if envelope.DeviceID == "" {
		return nil, fmt.Errorf("position envelope without device_id")
	}
	if envelope.Time.IsZero() {
		return nil, fmt.Errorf("position envelope without time")
	}

	point := models.GeoPoint{
		Latitude:  envelope.Latitude,
		Longitude: envelope.Longitude,
		Altitude:  envelope.Altitude,
	}
	if err := point.Validate(); err != nil {
		return nil, fmt.Errorf("position envelope with bad coordinates: %w", err)
	}
	if envelope.Speed < 0 {
		return nil, fmt.Errorf("position envelope with negative speed: %f", envelope.Speed)
	}

	position := pool.Global.GetPosition()
	position.DeviceID = envelope.DeviceID
	position.Time = envelope.Time
	position.Valid = envelope.Valid
	position.Position = point
	position.Speed = envelope.Speed
	position.Course = envelope.Course
	position.Attributes = envelope.Attributes

	return position, nil
}
