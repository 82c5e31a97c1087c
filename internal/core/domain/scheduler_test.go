package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSchedule() *ScheduledSync {
	return &ScheduledSync{
		ID:            "nightly-pages",
		Name:          "Nightly pages",
		SourceSiteID:  "main",
		TargetSiteIDs: []string{"blog"},
		Selector:      ContentSelector{Kind: KindPage, All: true},
		Interval:      24 * time.Hour,
		Enabled:       true,
	}
}

func TestScheduledSync_Due(t *testing.T) {
	now := time.Now()

	s := validSchedule()
	assert.True(t, s.Due(now), "zero NextRun is due immediately")

	s.NextRun = now.Add(time.Minute)
	assert.False(t, s.Due(now))

	s.NextRun = now
	assert.True(t, s.Due(now))

	s.Enabled = false
	assert.False(t, s.Due(now))
}

func TestScheduledSync_Validate(t *testing.T) {
	assert.NoError(t, validSchedule().Validate())

	noInterval := validSchedule()
	noInterval.Interval = 0
	assert.ErrorIs(t, noInterval.Validate(), ErrInvalidInput)

	noTargets := validSchedule()
	noTargets.TargetSiteIDs = nil
	assert.ErrorIs(t, noTargets.Validate(), ErrInvalidInput)

	var nilSchedule *ScheduledSync
	assert.ErrorIs(t, nilSchedule.Validate(), ErrInvalidInput)
}

func TestDefaultSchedulerConfig(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, time.Minute, cfg.Tick)
	assert.Equal(t, 100, cfg.HistoryLimit)
}
