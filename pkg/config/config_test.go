package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg := FromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 30, cfg.Scheduler.SlotMinutes)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.TimeLimit)
	assert.Equal(t, int64(2000000), cfg.Scheduler.MaxNodes)
	assert.Equal(t, 1, cfg.Scheduler.Workers)
	assert.Equal(t, 1, cfg.Scheduler.MinProctors)
	assert.True(t, cfg.Scheduler.EnforceAvailability)
	assert.True(t, cfg.Scheduler.EnforceCapacity)
	assert.Equal(t, 2, cfg.Batch.Workers)
}

func TestFromViperOverridesAndFallbacks(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("SCHEDULER_SLOT_MINUTES", 0)
	v.Set("SCHEDULER_TIME_LIMIT", "not-a-duration")
	v.Set("SCHEDULER_WORKERS", 4)
	v.Set("SCHEDULER_ENFORCE_AVAILABILITY", false)

	cfg := FromViper(v)
	assert.Equal(t, 30, cfg.Scheduler.SlotMinutes)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.TimeLimit)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.False(t, cfg.Scheduler.EnforceAvailability)
}
