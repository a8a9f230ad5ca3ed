package repository

import (
	"context"

	"github.com/flybeeper/track-filter/internal/models"
)

// Repository хранит последние принятые позиции устройств для live
// потребителей (карта, REST, WebSocket)
type Repository interface {
	// SavePosition сохраняет принятую позицию как последнюю для
	// устройства и добавляет её в трек
	SavePosition(ctx context.Context, position *models.Position) error

	// GetLatest возвращает последнюю сохраненную позицию устройства
	GetLatest(ctx context.Context, deviceID string) (*models.Position, error)

	// GetNearby возвращает последние позиции устройств в радиусе
	// radiusKm от точки
	GetNearby(ctx context.Context, center models.GeoPoint, radiusKm float64) ([]*models.Position, error)

	// GetTrack возвращает последние точки трека устройства
	GetTrack(ctx context.Context, deviceID string, limit int) ([]*models.Position, error)

	Ping(ctx context.Context) error
	Close() error
}

// ErrNotFound возвращается, когда у устройства нет сохраненной позиции
type ErrNotFound struct {
	DeviceID string
}

func (e *ErrNotFound) Error() string {
	return "no position stored for device " + e.DeviceID
}
