package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/pkg/race"
	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
)

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	DB                string // connection string for the database
	LocalDBFile       string // path to the sqlite file used in local db mode
	WaitForServices   string // duration to wait for other services to be ready
	LogLevel          string // sets the log level (zap log level values)
	SQLLogLevel       string // sets the log level for sql subsystem
	LogFormat         string // text vs json
	LogFilter         string // zapfilter rules
	EnableTelemetry   bool   // enable telemetry
	TelemetryEndpoint string // endpoint for telemetry
	ProfilingPort     int    // port for profiling
	ServerAddr        string // listen addr for the http server (api and game clients)
	NatsURL           string // URL of the NATS server, announcements are disabled if empty
	NatsSubject       string // subject for match announcements
	CourseFile        string // path to the course definitions
	TrackName         string // full track name as reported by the game server
	CourseName        string // course to use, defaults to the first course of the track
	MinClientVersion  string // oldest supported client version (semver)
)

// Config holds the gameplay settings. Names follow the settings of the
// game server plugin.
//
//nolint:lll // readablity
type Config struct {
	CarPerformanceRatings map[string]int `mapstructure:"carPerformanceRatings"` // 1..1000 per car model
	MaxRatingGain         int            `mapstructure:"maxRatingGain"`
	ProvisionalRaces      int            `mapstructure:"provisionalRaces"`       // matches during which a player is provisional
	MaxRatingGainProv     int            `mapstructure:"maxRatingGainProvisional"`
	RollingStart          bool           `mapstructure:"rollingStart"`
	CourseOutrunTime      float64        `mapstructure:"courseOutrunTime"`   // seconds, 1..60
	LocalDBMode           bool           `mapstructure:"localDbMode"`        // use sqlite instead of postgres
	UseTrackFinish        bool           `mapstructure:"useTrackFinish"`     // use the finish line of the track
	Ruleset               string         `mapstructure:"ruleset"`            // BattleStage or CatAndMouse
	RaceType              string         `mapstructure:"raceType"`           // Course or Outrun
	DiscreteMode          bool           `mapstructure:"discreteMode"`       // only show the HUD when necessary
	OutrunLeadTimeout     int            `mapstructure:"outrunLeadTimeout"`  // seconds
	OutrunLeadDistance    int            `mapstructure:"outrunLeadDistance"` // meters
	EnableOutrunRace      bool           `mapstructure:"enableOutrunRace"`
	EnableCourseRace      bool           `mapstructure:"enableCourseRace"`
}

func Default() Config {
	return Config{
		CarPerformanceRatings: map[string]int{
			"ks_mazda_miata": 125,
			"ks_toyota_ae86": 131,
		},
		MaxRatingGain:      32,
		ProvisionalRaces:   20,
		MaxRatingGainProv:  50,
		CourseOutrunTime:   1.5,
		LocalDBMode:        true,
		UseTrackFinish:     true,
		Ruleset:            model.RulesetBattleStage.String(),
		RaceType:           model.RaceTypeCourse.String(),
		OutrunLeadTimeout:  120,
		OutrunLeadDistance: 750,
		EnableCourseRace:   true,
	}
}

// Validate reports all invalid settings at once.
func (c *Config) Validate() error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}
	invalid := []string{}
	for car, v := range c.CarPerformanceRatings {
		if v < 1 || v > 1000 {
			invalid = append(invalid, fmt.Sprintf("car '%s' has performance rating %d", car, v))
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		add("car performance ratings must be between 1 and 1000: %s",
			strings.Join(invalid, ", "))
	}
	if c.MaxRatingGain <= 0 {
		add("maxRatingGain must be a positive integer")
	}
	if c.ProvisionalRaces <= 0 {
		add("provisionalRaces must be a positive integer")
	}
	if c.MaxRatingGainProv <= 0 {
		add("maxRatingGainProvisional must be a positive integer")
	}
	if c.CourseOutrunTime < 1 || c.CourseOutrunTime > 60 {
		add("courseOutrunTime must be between 1 and 60 seconds")
	}
	if !c.LocalDBMode && DB == "" {
		add("a postgres connection string must be provided when localDbMode is false")
	}
	if c.OutrunLeadTimeout <= 0 {
		add("outrunLeadTimeout must be a positive integer (in seconds)")
	}
	if c.OutrunLeadDistance <= 0 {
		add("outrunLeadDistance must be a positive integer (in meters)")
	}
	if !c.EnableCourseRace && !c.EnableOutrunRace {
		add("at least one of enableCourseRace or enableOutrunRace must be true")
	}
	if _, err := model.ParseRulesetType(c.Ruleset); err != nil {
		errs = multierr.Append(errs, err)
	}
	if rt, err := model.ParseRaceType(c.RaceType); err != nil {
		errs = multierr.Append(errs, err)
	} else if !c.raceTypeEnabled(rt) {
		add("race type %s is not enabled", rt)
	}
	return errs
}

func (c *Config) raceTypeEnabled(rt model.RaceType) bool {
	switch rt {
	case model.RaceTypeCourse:
		return c.EnableCourseRace
	case model.RaceTypeOutrun:
		return c.EnableOutrunRace
	}
	return false
}

// RulesetType must only be used on a validated config.
func (c *Config) RulesetType() model.RulesetType {
	ret, _ := model.ParseRulesetType(c.Ruleset)
	return ret
}

// RaceTypeValue must only be used on a validated config.
func (c *Config) RaceTypeValue() model.RaceType {
	ret, _ := model.ParseRaceType(c.RaceType)
	return ret
}

func (c *Config) RatingParams() rating.Params {
	return rating.Params{
		StandardGain:         c.MaxRatingGain,
		ProvisionalGain:      c.MaxRatingGainProv,
		ProvisionalThreshold: c.ProvisionalRaces,
	}
}

func (c *Config) CarRatings() rating.CarRatings {
	return rating.CarRatings(c.CarPerformanceRatings)
}

func (c *Config) RaceSettings() race.Settings {
	return race.Settings{
		RollingStart:       c.RollingStart,
		UseTrackFinish:     c.UseTrackFinish,
		OutrunTime:         time.Duration(c.CourseOutrunTime * float64(time.Second)),
		OutrunLeadDistance: float64(c.OutrunLeadDistance),
		OutrunLeadTimeout:  time.Duration(c.OutrunLeadTimeout) * time.Second,
	}
}

var ErrInvalidDuration = errors.New("invalid duration")

// ParseDuration parses d and falls back to def for empty input.
func ParseDuration(d string, def time.Duration) (time.Duration, error) {
	if d == "" {
		return def, nil
	}
	ret, err := time.ParseDuration(d)
	if err != nil {
		return def, fmt.Errorf("%w: %s", ErrInvalidDuration, d)
	}
	return ret, nil
}
