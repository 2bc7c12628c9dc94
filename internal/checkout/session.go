package checkout

import (
	"context"
	"sync"

	apperrors "cinepay/internal/errors"
	"cinepay/internal/external"
)

// Session owns the state of one checkout and lets only one step run at a
// time. A step requested while another is in flight fails with
// errors.ErrStepInFlight instead of queueing, so a double submit never
// reaches the backend twice.
type Session struct {
	coord *Coordinator

	busy sync.Mutex

	mu    sync.RWMutex
	state State
}

func NewSession(coord *Coordinator) *Session {
	return &Session{coord: coord}
}

// State returns the current snapshot
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Do runs one step function against the current state and stores its result
func (s *Session) Do(step func(State) (State, error)) (State, error) {
	if !s.busy.TryLock() {
		return s.State(), apperrors.ErrStepInFlight
	}
	defer s.busy.Unlock()

	next, err := step(s.State())

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	return next, err
}

func (s *Session) Start(ctx context.Context) (State, error) {
	return s.Do(func(State) (State, error) { return s.coord.Start(ctx) })
}

func (s *Session) ChooseMovie(movieID string) (State, error) {
	return s.Do(func(st State) (State, error) { return s.coord.ChooseMovie(st, movieID) })
}

func (s *Session) ProceedToSeats(ctx context.Context) (State, error) {
	return s.Do(func(st State) (State, error) { return s.coord.ProceedToSeats(ctx, st) })
}

func (s *Session) ToggleSeat(seatID string) (State, error) {
	return s.Do(func(st State) (State, error) { return s.coord.ToggleSeat(st, seatID) })
}

func (s *Session) Reserve(ctx context.Context, email string) (State, error) {
	return s.Do(func(st State) (State, error) { return s.coord.Reserve(ctx, st, email) })
}

func (s *Session) Pay(ctx context.Context, card external.Card) (State, error) {
	return s.Do(func(st State) (State, error) { return s.coord.Pay(ctx, st, card) })
}

func (s *Session) Back(ctx context.Context) (State, error) {
	return s.Do(func(st State) (State, error) { return s.coord.Back(ctx, st) })
}
