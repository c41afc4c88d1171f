// Package await contains the small synchronisation helpers used by races and
// sessions: a set-once signal and a "first ready of N" wait.
package await

import (
	"context"
	"reflect"
	"sync"
	"time"
)

// Signal carries a value that can be set exactly once. Later calls to Set are
// ignored; a set signal never resets.
type Signal[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
}

func NewSignal[T any]() *Signal[T] {
	return &Signal[T]{done: make(chan struct{})}
}

// Set stores v and closes Done. Returns true if this call set the signal.
func (s *Signal[T]) Set(v T) bool {
	set := false
	s.once.Do(func() {
		s.val = v
		close(s.done)
		set = true
	})
	return set
}

func (s *Signal[T]) Done() <-chan struct{} {
	return s.done
}

func (s *Signal[T]) IsSet() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Value returns the stored value and whether the signal was set.
func (s *Signal[T]) Value() (T, bool) {
	if !s.IsSet() {
		var zero T
		return zero, false
	}
	return s.val, true
}

// First blocks until one of chans is ready (closed or sends) and returns its
// index. If ctx is done first, -1 and the context error are returned.
// nil channels are never selected.
func First(ctx context.Context, chans ...<-chan struct{}) (int, error) {
	cases := make([]reflect.SelectCase, 0, len(chans)+1)
	for _, ch := range chans {
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(ch),
		})
	}
	cases = append(cases, reflect.SelectCase{
		Dir:  reflect.SelectRecv,
		Chan: reflect.ValueOf(ctx.Done()),
	})
	idx, _, _ := reflect.Select(cases)
	if idx == len(chans) {
		return -1, ctx.Err()
	}
	return idx, nil
}

// Sleep waits for d unless abort or ctx fires first.
// Returns false if the wait was interrupted.
func Sleep(ctx context.Context, d time.Duration, abort <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-abort:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	// abort wins if both are ready
	select {
	case <-abort:
		return false
	default:
		return true
	}
}
