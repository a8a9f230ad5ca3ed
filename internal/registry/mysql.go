package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/flybeeper/track-filter/internal/config"
	"github.com/flybeeper/track-filter/internal/metrics"
	"github.com/flybeeper/track-filter/pkg/utils"
)

// skipAttributesKey ключ в JSON-атрибутах устройства со списком
// атрибутов обхода фильтрации (через запятую)
const skipAttributesKey = "filter.skipAttributes"

const lookupTimeout = 2 * time.Second

// cacheEntry кешированный набор атрибутов обхода устройства.
// Отрицательные результаты тоже кешируются, чтобы неизвестные
// устройства не долбили MySQL на каждую позицию.
type cacheEntry struct {
	attrs     []string
	expiresAt time.Time
}

// MySQLRegistry реестр устройств поверх MySQL: отдает персональные
// наборы атрибутов обхода фильтрации с кешированием в памяти.
// Реализует filter.SkipAttributeProvider.
type MySQLRegistry struct {
	db     *sql.DB
	logger *utils.Logger
	ttl    time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewMySQLRegistry создает реестр устройств
func NewMySQLRegistry(cfg *config.MySQLConfig, logger *utils.Logger) (*MySQLRegistry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mysql config cannot be nil")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mysql DSN is required")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	return &MySQLRegistry{
		db:     db,
		logger: logger.WithField("component", "registry"),
		ttl:    cfg.CacheTTL,
		cache:  make(map[string]cacheEntry),
	}, nil
}

// Ping проверяет соединение с MySQL
func (r *MySQLRegistry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close закрывает соединение с MySQL
func (r *MySQLRegistry) Close() error {
	return r.db.Close()
}

// SkipAttributes возвращает набор атрибутов обхода для устройства.
// Ошибки поиска не пробрасываются: движок фильтрации не должен падать
// из-за недоступного реестра, поэтому при ошибке возвращается пустой
// набор и запись кешируется до истечения TTL.
func (r *MySQLRegistry) SkipAttributes(deviceID string) []string {
	r.mu.RLock()
	entry, ok := r.cache[deviceID]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		metrics.RegistryLookups.WithLabelValues("hit").Inc()
		return entry.attrs
	}

	attrs, err := r.lookup(deviceID)
	if err != nil {
		metrics.RegistryLookups.WithLabelValues("error").Inc()
		r.logger.WithFields(map[string]interface{}{
			"device_id": deviceID,
			"error":     err,
		}).Warn("Device attribute lookup failed")
		attrs = nil
	} else {
		metrics.RegistryLookups.WithLabelValues("miss").Inc()
	}

	r.mu.Lock()
	r.cache[deviceID] = cacheEntry{attrs: attrs, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return attrs
}

// Invalidate сбрасывает кеш устройства (например, после изменения его
// настроек во внешней админке)
func (r *MySQLRegistry) Invalidate(deviceID string) {
	r.mu.Lock()
	delete(r.cache, deviceID)
	r.mu.Unlock()
}

func (r *MySQLRegistry) lookup(deviceID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	var rawAttributes sql.NullString
	err := r.db.QueryRowContext(ctx,
		"SELECT attributes FROM devices WHERE uniqueid = ?", deviceID,
	).Scan(&rawAttributes)
	if err == sql.ErrNoRows {
		// Неизвестное устройство - фильтруется по общим правилам
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query device %s: %w", deviceID, err)
	}

	if !rawAttributes.Valid || rawAttributes.String == "" {
		return nil, nil
	}

	var attributes map[string]interface{}
	if err := json.Unmarshal([]byte(rawAttributes.String), &attributes); err != nil {
		return nil, fmt.Errorf("failed to parse attributes of device %s: %w", deviceID, err)
	}

	raw, ok := attributes[skipAttributesKey].(string)
	if !ok || raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	attrs := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			attrs = append(attrs, trimmed)
		}
	}
	return attrs, nil
}
