package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
)

func TestDefault_IsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, model.RulesetBattleStage, c.RulesetType())
	assert.Equal(t, model.RaceTypeCourse, c.RaceTypeValue())
	assert.Equal(t, rating.DefaultParams(), c.RatingParams())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		errors int
		msg    string
	}{
		{
			name: "car ratings out of range",
			modify: func(c *Config) {
				c.CarPerformanceRatings = map[string]int{"a": 0, "b": 1001, "c": 500}
			},
			errors: 1,
			msg: "car performance ratings must be between 1 and 1000: " +
				"car 'a' has performance rating 0, car 'b' has performance rating 1001",
		},
		{
			name:   "outrun time too long",
			modify: func(c *Config) { c.CourseOutrunTime = 61 },
			errors: 1,
			msg:    "courseOutrunTime must be between 1 and 60 seconds",
		},
		{
			name: "no race type enabled",
			modify: func(c *Config) {
				c.EnableCourseRace = false
			},
			// the configured race type is disabled as well
			errors: 2,
		},
		{
			name: "outrun not enabled",
			modify: func(c *Config) {
				c.RaceType = "Outrun"
			},
			errors: 1,
			msg:    "race type Outrun is not enabled",
		},
		{
			name:   "postgres needs url",
			modify: func(c *Config) { c.LocalDBMode = false },
			errors: 1,
		},
		{
			name: "everything wrong",
			modify: func(c *Config) {
				c.MaxRatingGain = 0
				c.ProvisionalRaces = -1
				c.MaxRatingGainProv = 0
				c.OutrunLeadTimeout = 0
				c.OutrunLeadDistance = 0
				c.Ruleset = "chess"
				c.RaceType = "drag"
			},
			errors: 7,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			DB = ""
			c := Default()
			tt.modify(&c)
			err := c.Validate()
			require.Error(t, err)
			errs := multierr.Errors(err)
			assert.Len(t, errs, tt.errors)
			if tt.msg != "" {
				assert.EqualError(t, errs[0], tt.msg)
			}
		})
	}
}

func TestRaceSettings(t *testing.T) {
	c := Default()
	c.CourseOutrunTime = 2.5
	c.RollingStart = true
	s := c.RaceSettings()
	assert.Equal(t, 2500*time.Millisecond, s.OutrunTime)
	assert.Equal(t, 120*time.Second, s.OutrunLeadTimeout)
	assert.InDelta(t, 750.0, s.OutrunLeadDistance, 0)
	assert.True(t, s.RollingStart)
	assert.True(t, s.UseTrackFinish)
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	d, err = ParseDuration("5s", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	d, err = ParseDuration("soon", time.Minute)
	require.ErrorIs(t, err, ErrInvalidDuration)
	assert.Equal(t, time.Minute, d)
}
