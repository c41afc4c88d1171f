// Package lobby handles invitations between competitors and routes client
// requests to the session a competitor takes part in.
package lobby

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/mpapenbr/touge-service-manager-go/log"
	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
	"github.com/mpapenbr/touge-service-manager-go/pkg/race"
	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
	"github.com/mpapenbr/touge-service-manager-go/pkg/session"
)

const (
	DefaultInviteTimeout = 10 * time.Second
	// squared distance in which a car counts as nearby
	nearbySq = 30 * 30
)

var (
	ErrInSession         = errors.New("already in an active session")
	ErrPendingInvite     = errors.New("pending session invite")
	ErrSelfInvite        = errors.New("cannot invite yourself")
	ErrOpponentInSession = errors.New("opponent is in a session")
	ErrOpponentPending   = errors.New("opponent has a pending invite")
	ErrNoCarNearby       = errors.New("no car nearby")
	ErrUnknownCompetitor = errors.New("unknown competitor")
)

// Messenger delivers lobby messages to a competitor.
type Messenger interface {
	Notify(c model.Competitor, msg string, countdown bool)
	Chat(c model.Competitor, msg string)
	Invite(to, from model.Competitor, rating int)
}

// NearbyPlayer is an entry of the nearby players list.
type NearbyPlayer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	InSession bool   `json:"inSession"`
	Rating    int    `json:"rating"`
}

type Lobby struct {
	manager *session.Manager
	roster  race.Roster
	msg     Messenger
	ratings rating.Store
	timeout time.Duration
	log     *log.Logger

	mu      sync.Mutex
	current map[string]*session.Session
}

type Option func(*Lobby)

func WithRoster(r race.Roster) Option {
	return func(l *Lobby) {
		l.roster = r
	}
}

func WithMessenger(m Messenger) Option {
	return func(l *Lobby) {
		l.msg = m
	}
}

func WithRatingStore(s rating.Store) Option {
	return func(l *Lobby) {
		l.ratings = s
	}
}

func WithInviteTimeout(d time.Duration) Option {
	return func(l *Lobby) {
		l.timeout = d
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Lobby) {
		l.log = logger
	}
}

func New(manager *session.Manager, opts ...Option) *Lobby {
	ret := &Lobby{
		manager: manager,
		timeout: DefaultInviteTimeout,
		log:     log.Default().Named("lobby"),
		current: map[string]*session.Session{},
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.msg == nil {
		ret.msg = discardMessenger{}
	}
	return ret
}

// Session returns the session c is invited to or takes part in.
func (l *Lobby) Session(c model.Competitor) *session.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current[c.ID()]
}

func (l *Lobby) InSession(c model.Competitor) bool {
	return l.Session(c) != nil
}

// Challenge invites challenged to a session with challenger. The invite is
// withdrawn if it is not accepted within the invite timeout.
//
//nolint:whitespace // can't make both editor and linter happy
func (l *Lobby) Challenge(
	ctx context.Context,
	challenger, challenged model.Competitor,
) error {
	s, err := l.reserve(challenger, challenged)
	if err != nil {
		l.msg.Notify(challenger, replyFor(err), false)
		return err
	}
	l.log.Info("challenge sent",
		log.String("challenger", challenger.Name()),
		log.String("challenged", challenged.Name()))

	l.msg.Chat(challenger,
		fmt.Sprintf("You have challenged %s to a touge session.", challenged.Name()))
	l.msg.Invite(challenged, challenger, l.ratingOf(ctx, challenger))
	time.AfterFunc(l.timeout, func() { l.expire(s) })
	return nil
}

// ChallengeNearby challenges the closest car within reach of c.
func (l *Lobby) ChallengeNearby(ctx context.Context, c model.Competitor) error {
	other := l.FindNearby(c)
	if other == nil {
		l.msg.Notify(c, "No car nearby!", false)
		return ErrNoCarNearby
	}
	if err := l.Challenge(ctx, c, other); err != nil {
		return err
	}
	l.msg.Notify(c, "Invite sent!", false)
	return nil
}

// ChallengeByID challenges the connected competitor with the given id.
//
//nolint:whitespace // can't make both editor and linter happy
func (l *Lobby) ChallengeByID(
	ctx context.Context, c model.Competitor, id string,
) error {
	other, ok := lo.Find(l.connected(), func(x model.Competitor) bool {
		return x.ID() == id
	})
	if !ok {
		l.msg.Notify(c, "There was an issue sending the invite.", false)
		return fmt.Errorf("%w: %s", ErrUnknownCompetitor, id)
	}
	if err := l.Challenge(ctx, c, other); err != nil {
		return err
	}
	l.msg.Notify(c, "Invite sent!", false)
	return nil
}

// Accept starts the session c was invited to. Only the challenged competitor
// may accept a pending invite. ctx bounds the lifetime of the session.
func (l *Lobby) Accept(ctx context.Context, c model.Competitor) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.current[c.ID()]
	if s == nil || s.IsActive() || s.Challenger().ID() == c.ID() {
		return false
	}
	return s.Start(ctx)
}

// Forfeit gives up the running race of c.
func (l *Lobby) Forfeit(c model.Competitor) {
	if s := l.Session(c); s != nil && s.IsActive() {
		s.Forfeit(c)
	}
}

// LapCompleted forwards a client side finish of c.
func (l *Lobby) LapCompleted(c model.Competitor) {
	if s := l.Session(c); s != nil && s.IsActive() {
		s.LapCompleted(c)
	}
}

// Release withdraws a pending invite of c. Running sessions end on their own
// once c is gone.
func (l *Lobby) Release(c model.Competitor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s := l.current[c.ID()]; s != nil && !s.IsActive() {
		l.clear(s)
	}
}

// FindNearby returns the closest connected car within reach of c or nil.
func (l *Lobby) FindNearby(c model.Competitor) model.Competitor {
	pos := c.Status().Position
	cars := lo.Filter(l.others(c), func(x model.Competitor, _ int) bool {
		return model.DistanceSquared(x.Status().Position, pos) < nearbySq
	})
	if len(cars) == 0 {
		return nil
	}
	return byDistance(cars, pos)[0]
}

// Nearby lists up to n connected cars ordered by distance to c.
//
//nolint:whitespace // can't make both editor and linter happy
func (l *Lobby) Nearby(
	ctx context.Context, c model.Competitor, n int,
) []NearbyPlayer {
	cars := byDistance(l.others(c), c.Status().Position)
	if len(cars) > n {
		cars = cars[:n]
	}
	return lo.Map(cars, func(x model.Competitor, _ int) NearbyPlayer {
		return NearbyPlayer{
			ID:        x.ID(),
			Name:      x.Name(),
			InSession: l.InSession(x),
			Rating:    l.ratingOf(ctx, x),
		}
	})
}

//nolint:whitespace // can't make both editor and linter happy
func (l *Lobby) reserve(
	challenger, challenged model.Competitor,
) (*session.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s := l.current[challenger.ID()]; s != nil {
		if s.IsActive() {
			return nil, ErrInSession
		}
		return nil, ErrPendingInvite
	}
	if challenger.ID() == challenged.ID() {
		return nil, ErrSelfInvite
	}
	if s := l.current[challenged.ID()]; s != nil {
		if s.IsActive() {
			return nil, ErrOpponentInSession
		}
		return nil, ErrOpponentPending
	}
	s, err := l.manager.NewSession(challenger, challenged, session.OnFinish(l.release))
	if err != nil {
		return nil, err
	}
	l.current[challenger.ID()] = s
	l.current[challenged.ID()] = s
	return s, nil
}

func (l *Lobby) expire(s *session.Session) {
	l.mu.Lock()
	if s.IsActive() || l.current[s.Challenger().ID()] != s {
		l.mu.Unlock()
		return
	}
	l.clear(s)
	l.mu.Unlock()
	l.log.Debug("invite expired", log.String("session", s.ID().String()))
	l.msg.Notify(s.Challenger(), "Invite was not accepted in time.", false)
}

func (l *Lobby) release(s *session.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clear(s)
}

// clear must be called with l.mu held
func (l *Lobby) clear(s *session.Session) {
	for _, c := range []model.Competitor{s.Challenger(), s.Challenged()} {
		if l.current[c.ID()] == s {
			delete(l.current, c.ID())
		}
	}
}

func (l *Lobby) connected() []model.Competitor {
	if l.roster == nil {
		return nil
	}
	return lo.Filter(l.roster.Competitors(), func(x model.Competitor, _ int) bool {
		return x.Connected()
	})
}

func (l *Lobby) others(c model.Competitor) []model.Competitor {
	return lo.Reject(l.connected(), func(x model.Competitor, _ int) bool {
		return x.ID() == c.ID()
	})
}

func (l *Lobby) ratingOf(ctx context.Context, c model.Competitor) int {
	if l.ratings == nil {
		return rating.InitialRating
	}
	rec, err := l.ratings.GetPlayerRating(ctx, c.ID())
	if err != nil {
		if !errors.Is(err, rating.ErrPlayerNotFound) {
			l.log.Warn("could not read rating",
				log.String("player", c.ID()), log.ErrorField(err))
		}
		return rating.InitialRating
	}
	return rec.Rating
}

func byDistance(cars []model.Competitor, pos model.Vec3) []model.Competitor {
	ret := slices.Clone(cars)
	slices.SortStableFunc(ret, func(a, b model.Competitor) int {
		return cmp.Compare(
			model.DistanceSquared(a.Status().Position, pos),
			model.DistanceSquared(b.Status().Position, pos))
	})
	return ret
}

func replyFor(err error) string {
	switch {
	case errors.Is(err, ErrInSession):
		return "You are already in an active touge session."
	case errors.Is(err, ErrPendingInvite):
		return "You have a pending session invite."
	case errors.Is(err, ErrSelfInvite):
		return "You cannot invite yourself to a session."
	case errors.Is(err, ErrOpponentInSession):
		return "This car is already in a touge session."
	case errors.Is(err, ErrOpponentPending):
		return "This car has a pending touge session invite."
	default:
		return "There was an issue sending the invite."
	}
}

type discardMessenger struct{}

func (discardMessenger) Notify(model.Competitor, string, bool)          {}
func (discardMessenger) Chat(model.Competitor, string)                  {}
func (discardMessenger) Invite(model.Competitor, model.Competitor, int) {}
