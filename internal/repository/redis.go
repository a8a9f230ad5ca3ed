package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/flybeeper/track-filter/internal/config"
	"github.com/flybeeper/track-filter/internal/metrics"
	"github.com/flybeeper/track-filter/internal/models"
	"github.com/flybeeper/track-filter/pkg/utils"
)

const (
	// Ключи и префиксы
	PositionsGeoKey = "positions:geo" // GEO индекс последних позиций
	PositionPrefix  = "position:"     // position:{deviceId} - последняя позиция
	TrackPrefix     = "track:"        // track:{deviceId} - список точек трека
	UpdatesPrefix   = "updates:"      // updates:{geohash} - канал региональных обновлений

	// TTL последней позиции: устройство, молчащее дольше, пропадает
	// из live выдачи
	PositionTTL = 12 * time.Hour

	// Точность geohash для каналов региональных обновлений
	UpdatesGeohashPrecision = 5

	// Максимум точек в хранимом треке
	MaxTrackPoints = 999
)

// RedisRepository репозиторий последних позиций поверх Redis
type RedisRepository struct {
	client *redis.Client
	logger *utils.Logger
}

// NewRedisRepository создает новый Redis репозиторий
func NewRedisRepository(cfg *config.RedisConfig, logger *utils.Logger) (*RedisRepository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	return &RedisRepository{
		client: redis.NewClient(opts),
		logger: logger.WithField("component", "redis"),
	}, nil
}

// Ping проверяет соединение с Redis
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close закрывает соединение с Redis
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// SavePosition сохраняет принятую позицию: последняя позиция с TTL,
// GEO индекс, трек и публикация в региональный канал - одним pipeline
func (r *RedisRepository) SavePosition(ctx context.Context, position *models.Position) error {
	start := time.Now()
	defer func() {
		metrics.RedisOperationDuration.WithLabelValues("save_position").
			Observe(time.Since(start).Seconds())
	}()

	data, err := json.Marshal(position)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, PositionPrefix+position.DeviceID, data, PositionTTL)
	pipe.GeoAdd(ctx, PositionsGeoKey, &redis.GeoLocation{
		Name:      position.DeviceID,
		Latitude:  position.Position.Latitude,
		Longitude: position.Position.Longitude,
	})
	trackKey := TrackPrefix + position.DeviceID
	pipe.LPush(ctx, trackKey, data)
	pipe.LTrim(ctx, trackKey, 0, MaxTrackPoints-1)
	pipe.Expire(ctx, trackKey, PositionTTL)
	pipe.Publish(ctx, UpdatesPrefix+position.Position.Geohash(UpdatesGeohashPrecision), data)

	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RedisOperationErrors.WithLabelValues("save_position").Inc()
		return fmt.Errorf("failed to save position for %s: %w", position.DeviceID, err)
	}
	return nil
}

// GetLatest возвращает последнюю сохраненную позицию устройства
func (r *RedisRepository) GetLatest(ctx context.Context, deviceID string) (*models.Position, error) {
	data, err := r.client.Get(ctx, PositionPrefix+deviceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &ErrNotFound{DeviceID: deviceID}
	}
	if err != nil {
		metrics.RedisOperationErrors.WithLabelValues("get_latest").Inc()
		return nil, fmt.Errorf("failed to get position for %s: %w", deviceID, err)
	}

	var position models.Position
	if err := json.Unmarshal(data, &position); err != nil {
		return nil, fmt.Errorf("failed to unmarshal position for %s: %w", deviceID, err)
	}
	return &position, nil
}

// GetNearby возвращает последние позиции устройств в радиусе radiusKm
func (r *RedisRepository) GetNearby(ctx context.Context, center models.GeoPoint, radiusKm float64) ([]*models.Position, error) {
	start := time.Now()
	defer func() {
		metrics.RedisOperationDuration.WithLabelValues("get_nearby").
			Observe(time.Since(start).Seconds())
	}()

	locations, err := r.client.GeoSearchLocation(ctx, PositionsGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Latitude:   center.Latitude,
			Longitude:  center.Longitude,
			Radius:     radiusKm,
			RadiusUnit: "km",
		},
	}).Result()
	if err != nil {
		metrics.RedisOperationErrors.WithLabelValues("get_nearby").Inc()
		return nil, fmt.Errorf("failed to search positions: %w", err)
	}

	positions := make([]*models.Position, 0, len(locations))
	for _, loc := range locations {
		position, err := r.GetLatest(ctx, loc.Name)
		if err != nil {
			// Позиция могла истечь между GEO поиском и чтением
			var notFound *ErrNotFound
			if errors.As(err, &notFound) {
				continue
			}
			return nil, err
		}
		positions = append(positions, position)
	}
	return positions, nil
}

// GetTrack возвращает последние limit точек трека устройства
// (в порядке от новых к старым)
func (r *RedisRepository) GetTrack(ctx context.Context, deviceID string, limit int) ([]*models.Position, error) {
	if limit <= 0 || limit > MaxTrackPoints {
		limit = MaxTrackPoints
	}

	entries, err := r.client.LRange(ctx, TrackPrefix+deviceID, 0, int64(limit-1)).Result()
	if err != nil {
		metrics.RedisOperationErrors.WithLabelValues("get_track").Inc()
		return nil, fmt.Errorf("failed to get track for %s: %w", deviceID, err)
	}

	track := make([]*models.Position, 0, len(entries))
	for _, entry := range entries {
		var position models.Position
		if err := json.Unmarshal([]byte(entry), &position); err != nil {
			r.logger.WithFields(map[string]interface{}{
				"device_id": deviceID,
				"error":     err,
			}).Warn("Skipping corrupted track point")
			continue
		}
		track = append(track, &position)
	}
	return track, nil
}
