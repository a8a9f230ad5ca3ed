package filter

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flybeeper/track-filter/internal/models"
	"github.com/flybeeper/track-filter/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider статичный набор атрибутов обхода для тестов
type fakeProvider struct {
	attrs map[string][]string
}

func (p *fakeProvider) SkipAttributes(deviceID string) []string {
	return p.attrs[deviceID]
}

func testLogger() *utils.Logger {
	return utils.NewLogger("error", "text")
}

func testPosition(deviceID string, at time.Time, valid bool, speed float64) *models.Position {
	return &models.Position{
		DeviceID: deviceID,
		Time:     at,
		Valid:    valid,
		Position: models.GeoPoint{Latitude: 10, Longitude: 10, Altitude: 10},
		Speed:    speed,
		Course:   10,
	}
}

func TestEngine_DisabledFiltering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enable = false
	engine := NewEngine(cfg, nil, testLogger())

	// При выключенном главном выключателе принимается всё, включая
	// откровенно мусорные позиции, и позиция не изменяется
	p := testPosition("dev-1", time.Unix(0, 0), false, 0)
	p.Position = models.GeoPoint{}

	require.True(t, engine.Filter(p))
	assert.Nil(t, p.Attributes, "disabled filtering must not mutate the position")

	p2 := testPosition("dev-1", time.Unix(0, 0), false, 0)
	assert.True(t, engine.Filter(p2))
}

func TestEngine_RuleIsolation(t *testing.T) {
	// Каждое правило проверяется в изоляции: все остальные выключены
	base := func() *Config {
		return &Config{Enable: true}
	}

	t.Run("Invalid", func(t *testing.T) {
		cfg := base()
		cfg.FilterInvalid = true
		engine := NewEngine(cfg, nil, testLogger())

		assert.False(t, engine.Filter(testPosition("d", time.Now(), false, 10)))
		assert.True(t, engine.Filter(testPosition("d", time.Now(), true, 10)))
	})

	t.Run("Zero", func(t *testing.T) {
		cfg := base()
		cfg.FilterZero = true
		engine := NewEngine(cfg, nil, testLogger())

		p := testPosition("d", time.Now(), true, 10)
		p.Position = models.GeoPoint{}
		assert.False(t, engine.Filter(p))
		assert.True(t, engine.Filter(testPosition("d", time.Now(), true, 10)))
	})

	t.Run("Duplicate", func(t *testing.T) {
		cfg := base()
		cfg.FilterDuplicate = true
		engine := NewEngine(cfg, nil, testLogger())

		at := time.Now()
		// Первая позиция принимается: lastPosition ещё нет
		assert.True(t, engine.Filter(testPosition("d", at, true, 10)))
		// Повтор той же метки времени отклоняется
		assert.False(t, engine.Filter(testPosition("d", at, true, 10)))
		// Новая метка времени снова принимается
		assert.True(t, engine.Filter(testPosition("d", at.Add(time.Second), true, 10)))
	})

	t.Run("Future", func(t *testing.T) {
		cfg := base()
		cfg.FilterFuture = 5 * time.Minute
		engine := NewEngine(cfg, nil, testLogger())

		now := time.Now()
		engine.now = func() time.Time { return now }

		assert.False(t, engine.Filter(testPosition("d", now.Add(time.Hour), true, 10)))
		assert.True(t, engine.Filter(testPosition("d", now.Add(time.Minute), true, 10)))
	})

	t.Run("Approximate", func(t *testing.T) {
		cfg := base()
		cfg.FilterApproximate = true
		engine := NewEngine(cfg, nil, testLogger())

		p := testPosition("d", time.Now(), true, 10)
		p.SetAttribute(models.AttrApproximate, true)
		assert.False(t, engine.Filter(p))
		assert.True(t, engine.Filter(testPosition("d", time.Now(), true, 10)))
	})

	t.Run("Static", func(t *testing.T) {
		cfg := base()
		cfg.FilterStatic = true
		cfg.StaticSpeedMax = 1.0
		cfg.StaticDistance = 10
		engine := NewEngine(cfg, nil, testLogger())

		at := time.Now()
		require.True(t, engine.Filter(testPosition("d", at, true, 0)))

		// Нулевая скорость и смещение в пределах шума - дрожание GPS
		jitter := testPosition("d", at.Add(10*time.Second), true, 0)
		jitter.Position.Latitude += 0.00001 // ~1 метр
		assert.False(t, engine.Filter(jitter))

		// Та же точка, но устройство движется - принимается
		moving := testPosition("d", at.Add(20*time.Second), true, 15)
		moving.Position.Latitude += 0.00001
		assert.True(t, engine.Filter(moving))
	})

	t.Run("Distance", func(t *testing.T) {
		cfg := base()
		cfg.FilterDistance = 10
		engine := NewEngine(cfg, nil, testLogger())

		at := time.Now()
		require.True(t, engine.Filter(testPosition("d", at, true, 10)))

		// Смещение ~1 метр - меньше порога 10 м
		near := testPosition("d", at.Add(10*time.Second), true, 10)
		near.Position.Latitude += 0.00001
		assert.False(t, engine.Filter(near))

		// Смещение ~111 метров - больше порога
		far := testPosition("d", at.Add(20*time.Second), true, 10)
		far.Position.Latitude += 0.001
		assert.True(t, engine.Filter(far))
	})

	t.Run("MaxSpeed", func(t *testing.T) {
		cfg := base()
		cfg.FilterMaxSpeed = 500
		engine := NewEngine(cfg, nil, testLogger())

		at := time.Now()
		require.True(t, engine.Filter(testPosition("d", at, true, 10)))

		// ~111 км за секунду - телепортация
		teleport := testPosition("d", at.Add(time.Second), true, 10)
		teleport.Position.Latitude += 1.0
		assert.False(t, engine.Filter(teleport))

		// ~1.1 км за минуту (~67 км/ч) - нормальное движение
		drive := testPosition("d", at.Add(time.Minute), true, 60)
		drive.Position.Latitude += 0.01
		assert.True(t, engine.Filter(drive))
	})

	t.Run("MaxSpeedNonPositiveElapsed", func(t *testing.T) {
		cfg := base()
		cfg.FilterMaxSpeed = 500
		engine := NewEngine(cfg, nil, testLogger())

		at := time.Now()
		require.True(t, engine.Filter(testPosition("d", at, true, 10)))

		// Метка времени раньше последней принятой - аномалия, отклоняется
		backwards := testPosition("d", at.Add(-time.Minute), true, 10)
		backwards.Position.Latitude += 0.001
		assert.False(t, engine.Filter(backwards))
	})
}

func TestEngine_BypassPrecedence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SkipAttributesEnable = true
	provider := &fakeProvider{attrs: map[string][]string{
		"dev-1": {models.AttrAlarm, models.AttrResult},
	}}
	engine := NewEngine(cfg, provider, testLogger())

	// Позиция провалила бы каждое правило: невалидная, нулевые
	// координаты - но несёт тревогу и принимается безусловно
	p := testPosition("dev-1", time.Now(), false, 0)
	p.Position = models.GeoPoint{}
	p.SetAttribute(models.AttrAlarm, "sos")

	assert.True(t, engine.Filter(p))

	// У другого устройства набор обхода пуст - та же позиция отклоняется
	p2 := testPosition("dev-2", time.Now(), false, 0)
	p2.SetAttribute(models.AttrAlarm, "sos")
	assert.False(t, engine.Filter(p2))
}

func TestEngine_SkipLimitEscalation(t *testing.T) {
	const limit = 3

	cfg := &Config{Enable: true, FilterInvalid: true, SkipLimit: limit}
	engine := NewEngine(cfg, nil, testLogger())

	// N подряд отклонений, (N+1)-я позиция принимается принудительно
	for i := 0; i < limit; i++ {
		assert.False(t, engine.Filter(testPosition("dev-1", time.Now(), false, 0)),
			"rejection %d must not escalate yet", i+1)
	}
	assert.True(t, engine.Filter(testPosition("dev-1", time.Now(), false, 0)))

	// После принудительного принятия счётчик сброшен - цикл повторяется
	assert.Equal(t, 0, engine.Store().SkipCount("dev-1"))
	for i := 0; i < limit; i++ {
		assert.False(t, engine.Filter(testPosition("dev-1", time.Now(), false, 0)))
	}
	assert.True(t, engine.Filter(testPosition("dev-1", time.Now(), false, 0)))
}

func TestEngine_SkipLimitDisabled(t *testing.T) {
	cfg := &Config{Enable: true, FilterInvalid: true}
	engine := NewEngine(cfg, nil, testLogger())

	// Без skip limit отклонения никогда не эскалируют
	for i := 0; i < 100; i++ {
		assert.False(t, engine.Filter(testPosition("dev-1", time.Now(), false, 0)))
	}
}

func TestEngine_PerDeviceIsolation(t *testing.T) {
	cfg := &Config{Enable: true, FilterInvalid: true, SkipLimit: 5}
	engine := NewEngine(cfg, nil, testLogger())

	// Накапливаем отклонения у устройства A
	for i := 0; i < 4; i++ {
		require.False(t, engine.Filter(testPosition("dev-a", time.Now(), false, 0)))
	}
	require.Equal(t, 4, engine.Store().SkipCount("dev-a"))

	// Трафик устройства B не влияет на счётчик A
	for i := 0; i < 50; i++ {
		engine.Filter(testPosition("dev-b", time.Now(), i%2 == 0, 0))
	}
	assert.Equal(t, 4, engine.Store().SkipCount("dev-a"))
}

func TestEngine_DistanceAttributes(t *testing.T) {
	cfg := &Config{Enable: true}
	engine := NewEngine(cfg, nil, testLogger())

	at := time.Now()
	first := testPosition("d", at, true, 10)
	require.True(t, engine.Filter(first))
	assert.Equal(t, 0.0, first.FloatAttribute(models.AttrTotalDistance))

	// ~111 метров к северу
	second := testPosition("d", at.Add(time.Minute), true, 10)
	second.Position.Latitude += 0.001
	require.True(t, engine.Filter(second))
	assert.InDelta(t, 111.2, second.FloatAttribute(models.AttrDistance), 1)
	assert.InDelta(t, 111.2, second.FloatAttribute(models.AttrTotalDistance), 1)

	// Ещё ~111 метров - пробег накапливается
	third := testPosition("d", at.Add(2*time.Minute), true, 10)
	third.Position.Latitude += 0.002
	require.True(t, engine.Filter(third))
	assert.InDelta(t, 222.4, third.FloatAttribute(models.AttrTotalDistance), 2)
}

func TestEngine_ConcreteScenario(t *testing.T) {
	// Полная конфигурация боевого развертывания
	cfg := &Config{
		Enable:               true,
		FilterInvalid:        true,
		FilterZero:           true,
		FilterDuplicate:      true,
		FilterFuture:         300 * time.Second,
		FilterApproximate:    true,
		FilterStatic:         true,
		StaticSpeedMax:       1.0,
		StaticDistance:       10,
		FilterDistance:       10,
		FilterMaxSpeed:       500,
		SkipLimit:            10,
		SkipAttributesEnable: true,
	}
	provider := &fakeProvider{attrs: map[string][]string{
		"353451044508750": {models.AttrAlarm, models.AttrResult},
	}}
	engine := NewEngine(cfg, provider, testLogger())

	now := time.Now()
	engine.now = func() time.Time { return now }

	// (a) валидная позиция с движением - принимается
	assert.True(t, engine.Filter(testPosition("353451044508750", now, true, 10)))

	// (b) метка времени далеко в будущем - отклоняется
	assert.False(t, engine.Filter(
		testPosition("353451044508750", now.Add(1000000*time.Hour), true, 10)))

	// (c) невалидный фикс - отклоняется
	assert.False(t, engine.Filter(
		testPosition("353451044508750", now.Add(time.Minute), false, 10)))

	// (d) тревога с нулевой скоростью - принимается несмотря на
	// статический и дистанционный фильтры
	alarm := testPosition("353451044508750", now.Add(2*time.Minute), true, 0)
	alarm.SetAttribute(models.AttrAlarm, "general")
	assert.True(t, engine.Filter(alarm))
}

func TestEngine_UpdateConfig(t *testing.T) {
	cfg := &Config{Enable: true, FilterInvalid: true}
	engine := NewEngine(cfg, nil, testLogger())

	require.False(t, engine.Filter(testPosition("d", time.Now(), false, 0)))

	// Горячее отключение фильтрации
	engine.UpdateConfig(&Config{Enable: false})
	assert.True(t, engine.Filter(testPosition("d", time.Now(), false, 0)))
	assert.False(t, engine.Config().Enable)
}

func TestEngine_Stats(t *testing.T) {
	cfg := &Config{Enable: true, FilterInvalid: true}
	engine := NewEngine(cfg, nil, testLogger())

	engine.Filter(testPosition("d1", time.Now(), true, 10))
	engine.Filter(testPosition("d1", time.Now(), false, 10))
	engine.Filter(testPosition("d2", time.Now(), true, 10))

	stats := engine.Stats()
	assert.Equal(t, uint64(3), stats.Processed)
	assert.Equal(t, uint64(2), stats.Accepted)
	assert.Equal(t, uint64(1), stats.Rejected)
	assert.Equal(t, 2, stats.TrackedDevices)
}

func TestEngine_ConcurrentSameDevice(t *testing.T) {
	// Параллельные отклонения одного устройства не должны терять
	// инкременты skipCount
	const workers = 8
	const perWorker = 50

	cfg := &Config{Enable: true, FilterInvalid: true}
	engine := NewEngine(cfg, nil, testLogger())

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				engine.Filter(testPosition("dev-shared", time.Now(), false, 0))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, engine.Store().SkipCount("dev-shared"))
	assert.Equal(t, uint64(workers*perWorker), engine.Stats().Rejected)
}

func TestEngine_ConcurrentDistinctDevices(t *testing.T) {
	// Первое появление устройства создаёт ровно одно состояние даже
	// при одновременном приходе с нескольких горутин
	const devices = 20
	const workers = 4

	cfg := &Config{Enable: true}
	engine := NewEngine(cfg, nil, testLogger())

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := 0; d < devices; d++ {
				engine.Filter(testPosition(fmt.Sprintf("dev-%d", d), time.Now(), true, 10))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, devices, engine.Store().Len())
}
