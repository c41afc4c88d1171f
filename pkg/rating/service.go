package rating

import (
	"context"
	"errors"
	"fmt"

	"github.com/mpapenbr/touge-service-manager-go/log"
)

var ErrPlayerNotFound = errors.New("player not found")

// Record is the persisted rating state of a player.
type Record struct {
	PlayerID       string
	Name           string
	Rating         int
	RacesCompleted int
}

// Store is the persistence contract consumed by the rating service.
type Store interface {
	GetPlayerRating(ctx context.Context, playerID string) (Record, error)
	// UpdatePlayerRating stores the new rating and counts one more completed match.
	UpdatePlayerRating(ctx context.Context, playerID string, rating int) error
}

// Player identifies one side of a match.
type Player struct {
	ID       string
	CarModel string
}

type Service struct {
	store  Store
	params Params
	cars   CarRatings
	log    *log.Logger
}

type Option func(*Service)

func WithParams(p Params) Option {
	return func(s *Service) {
		s.params = p
	}
}

func WithCarRatings(c CarRatings) Option {
	return func(s *Service) {
		s.cars = c
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

func NewService(store Store, opts ...Option) *Service {
	ret := &Service{
		store:  store,
		params: DefaultParams(),
		cars:   CarRatings{},
		log:    log.Default().Named("rating"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (s *Service) Store() Store {
	return s.store
}

// ApplyMatch updates both players. Both new ratings are computed from the
// ratings before the match.
//
//nolint:whitespace // can't make both editor and linter happy
func (s *Service) ApplyMatch(ctx context.Context, winner, loser Player) (
	newWinner, newLoser int, err error,
) {
	w, err := s.store.GetPlayerRating(ctx, winner.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("load winner %s: %w", winner.ID, err)
	}
	l, err := s.store.GetPlayerRating(ctx, loser.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("load loser %s: %w", loser.ID, err)
	}
	winnerCar := s.cars.Of(winner.CarModel)
	loserCar := s.cars.Of(loser.CarModel)

	newWinner = UpdateRating(s.params, w.Rating, l.Rating, winnerCar, loserCar,
		true, w.RacesCompleted)
	newLoser = UpdateRating(s.params, l.Rating, w.Rating, loserCar, winnerCar,
		false, l.RacesCompleted)

	s.log.Debug("rating update",
		log.String("winner", winner.ID),
		log.Int("winnerOld", w.Rating),
		log.Int("winnerNew", newWinner),
		log.String("loser", loser.ID),
		log.Int("loserOld", l.Rating),
		log.Int("loserNew", newLoser))

	if err = s.store.UpdatePlayerRating(ctx, winner.ID, newWinner); err != nil {
		return 0, 0, fmt.Errorf("update winner %s: %w", winner.ID, err)
	}
	if err = s.store.UpdatePlayerRating(ctx, loser.ID, newLoser); err != nil {
		return 0, 0, fmt.Errorf("update loser %s: %w", loser.ID, err)
	}
	return newWinner, newLoser, nil
}
