package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticRegistry(t *testing.T) {
	reg := NewStaticRegistry(map[string][]string{
		"dev-1": {"alarm", "result"},
	})

	t.Run("KnownDevice", func(t *testing.T) {
		assert.Equal(t, []string{"alarm", "result"}, reg.SkipAttributes("dev-1"))
	})

	t.Run("UnknownDeviceDefaultsToEmpty", func(t *testing.T) {
		assert.Empty(t, reg.SkipAttributes("dev-2"))
	})

	t.Run("SetSkipAttributes", func(t *testing.T) {
		reg.SetSkipAttributes("dev-2", []string{"alarm"})
		assert.Equal(t, []string{"alarm"}, reg.SkipAttributes("dev-2"))
	})

	t.Run("NilMap", func(t *testing.T) {
		empty := NewStaticRegistry(nil)
		assert.Empty(t, empty.SkipAttributes("dev-1"))
	})
}

func TestStaticRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewStaticRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.SetSkipAttributes("dev", []string{"alarm"})
				reg.SkipAttributes("dev")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"alarm"}, reg.SkipAttributes("dev"))
}
