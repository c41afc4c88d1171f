package race

import (
	"context"
	"fmt"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
)

// Type decides how a started race ends. Implementations must return once
// the race is aborted.
type Type interface {
	Run(ctx context.Context, r *Race) model.Outcome
}

// NewType returns a fresh race type for a single race.
func NewType(t model.RaceType) (Type, error) {
	switch t {
	case model.RaceTypeCourse:
		return &CourseRace{}, nil
	case model.RaceTypeOutrun:
		return &OutrunRace{}, nil
	}
	return nil, fmt.Errorf("unsupported race type %s", t)
}
