package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPosition_Attributes(t *testing.T) {
	p := &Position{DeviceID: "353451044508750"}

	t.Run("SetOnNilMap", func(t *testing.T) {
		p.SetAttribute(AttrAlarm, "sos")
		assert.True(t, p.HasAttribute(AttrAlarm))
	})

	t.Run("BoolAttribute", func(t *testing.T) {
		p.SetAttribute(AttrApproximate, true)
		assert.True(t, p.BoolAttribute(AttrApproximate))
		assert.False(t, p.BoolAttribute(AttrIgnition))

		// Не-булево значение не считается true
		p.SetAttribute("odometer", 1500)
		assert.False(t, p.BoolAttribute("odometer"))
	})

	t.Run("FloatAttribute", func(t *testing.T) {
		p.SetAttribute(AttrTotalDistance, 1234.5)
		assert.Equal(t, 1234.5, p.FloatAttribute(AttrTotalDistance))
		p.SetAttribute("ticks", 42)
		assert.Equal(t, 42.0, p.FloatAttribute("ticks"))
		assert.Equal(t, 0.0, p.FloatAttribute("missing"))
	})
}

func TestPosition_Reset(t *testing.T) {
	p := &Position{
		DeviceID: "861693030000001",
		Time:     time.Now(),
		Valid:    true,
		Position: GeoPoint{Latitude: 46.0, Longitude: 8.0},
		Speed:    55,
		Course:   180,
	}
	p.SetAttribute(AttrAlarm, "overspeed")

	p.Reset()

	assert.Empty(t, p.DeviceID)
	assert.True(t, p.Time.IsZero())
	assert.False(t, p.Valid)
	assert.True(t, p.Position.IsZero())
	assert.Nil(t, p.Attributes)
}
