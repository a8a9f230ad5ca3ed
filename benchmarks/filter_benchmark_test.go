package benchmarks

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flybeeper/track-filter/internal/filter"
	"github.com/flybeeper/track-filter/internal/models"
	"github.com/flybeeper/track-filter/pkg/utils"
)

func benchConfig() *filter.Config {
	return &filter.Config{
		Enable:          true,
		FilterInvalid:   true,
		FilterZero:      true,
		FilterDuplicate: true,
		FilterFuture:    5 * time.Minute,
		FilterDistance:  10,
		FilterMaxSpeed:  500,
		SkipLimit:       10,
	}
}

func benchPosition(deviceID string, at time.Time, lat float64) *models.Position {
	return &models.Position{
		DeviceID: deviceID,
		Time:     at,
		Valid:    true,
		Position: models.GeoPoint{Latitude: lat, Longitude: 8.0},
		Speed:    60,
		Course:   0,
	}
}

// BenchmarkEngineAccept горячий путь: движущееся устройство, все
// позиции принимаются
func BenchmarkEngineAccept(b *testing.B) {
	engine := filter.NewEngine(benchConfig(), nil, utils.NewLogger("error", "text"))

	at := time.Now().Add(-time.Duration(b.N) * time.Second)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Каждая позиция на ~111 м севернее предыдущей
		engine.Filter(benchPosition("bench-dev", at.Add(time.Duration(i)*time.Second),
			46.0+float64(i)*0.001))
	}
}

// BenchmarkEngineReject путь отклонения: невалидные фиксы
func BenchmarkEngineReject(b *testing.B) {
	cfg := benchConfig()
	cfg.SkipLimit = 0
	engine := filter.NewEngine(cfg, nil, utils.NewLogger("error", "text"))

	p := benchPosition("bench-dev", time.Now(), 46.0)
	p.Valid = false
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Filter(p)
	}
}

// BenchmarkEngineParallelDevices пропускная способность при
// независимых устройствах: блокировки не должны конкурировать
func BenchmarkEngineParallelDevices(b *testing.B) {
	engine := filter.NewEngine(benchConfig(), nil, utils.NewLogger("error", "text"))

	var counter int64
	b.RunParallel(func(pb *testing.PB) {
		deviceID := fmt.Sprintf("bench-dev-%d", atomic.AddInt64(&counter, 1))
		i := 0
		at := time.Now().Add(-24 * time.Hour)
		for pb.Next() {
			engine.Filter(benchPosition(deviceID, at.Add(time.Duration(i)*time.Second),
				46.0+float64(i%10000)*0.001))
			i++
		}
	})
}
