package checkout

import (
	"slices"

	"cinepay/internal/models"
)

type Step int

const (
	StepSelectMovie Step = iota
	StepSelectSeats
	StepPayment
	StepConfirmed
)

func (s Step) String() string {
	switch s {
	case StepSelectMovie:
		return "select_movie"
	case StepSelectSeats:
		return "select_seats"
	case StepPayment:
		return "payment"
	case StepConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Confirmation is what the customer sees once payment went through
type Confirmation struct {
	Reservation models.Reservation
	Total       models.Money
	QRBase64    string
	QRURL       string
}

// State is one immutable snapshot of a checkout session. Step functions on
// Coordinator take a State and return a new one; a State is never changed
// in place, so a stale copy can't be advanced by accident.
type State struct {
	step         Step
	movies       []models.Movie
	movie        *models.Movie
	seats        []models.Seat
	selected     []string
	email        string
	reservation  *models.Reservation
	reservedFor  []string
	attempts     []models.PaymentAttempt
	confirmation *Confirmation
	notice       string
}

func (s State) Step() Step { return s.step }

func (s State) Movies() []models.Movie { return slices.Clone(s.movies) }

// Movie returns the selected movie, if any
func (s State) Movie() (models.Movie, bool) {
	if s.movie == nil {
		return models.Movie{}, false
	}
	return *s.movie, true
}

// Seats returns the last seat snapshot fetched from the backend
func (s State) Seats() []models.Seat { return slices.Clone(s.seats) }

func (s State) SelectedSeats() []string { return slices.Clone(s.selected) }

func (s State) IsSelected(seatID string) bool { return slices.Contains(s.selected, seatID) }

// Total is recomputed from the selected movie and seats on every call
func (s State) Total() models.Money {
	if s.movie == nil {
		return 0
	}
	return s.movie.Price.Times(len(s.selected))
}

func (s State) Email() string { return s.email }

// Reservation returns the reservation handle held by this session
func (s State) Reservation() (models.Reservation, bool) {
	if s.reservation == nil {
		return models.Reservation{}, false
	}
	r := *s.reservation
	r.Seats = slices.Clone(r.Seats)
	return r, true
}

// Attempts lists every pay call made in this session, oldest first
func (s State) Attempts() []models.PaymentAttempt { return slices.Clone(s.attempts) }

func (s State) Confirmation() (Confirmation, bool) {
	if s.confirmation == nil {
		return Confirmation{}, false
	}
	return *s.confirmation, true
}

// Notice is the user-facing message of the last failed step; it does not
// change the step
func (s State) Notice() string { return s.notice }

// Selectable reports whether seatID can be picked: it must belong to the
// current snapshot and be free or held by our own reservation
func (s State) Selectable(seatID string) bool {
	seat, ok := s.seat(seatID)
	if !ok {
		return false
	}
	if !seat.Reserved {
		return true
	}
	return s.reservation != nil && seat.ReservedBy != "" && seat.ReservedBy == s.reservation.ID
}

func (s State) seat(seatID string) (models.Seat, bool) {
	for _, seat := range s.seats {
		if seat.ID == seatID {
			return seat, true
		}
	}
	return models.Seat{}, false
}

// reservationMatches reports whether the held reservation still covers the
// current selection
func (s State) reservationMatches() bool {
	if s.reservation == nil || len(s.reservedFor) != len(s.selected) {
		return false
	}
	for _, id := range s.selected {
		if !slices.Contains(s.reservedFor, id) {
			return false
		}
	}
	return true
}

// clone copies every slice so the result can be modified freely
func (s State) clone() State {
	next := s
	next.movies = slices.Clone(s.movies)
	next.seats = slices.Clone(s.seats)
	next.selected = slices.Clone(s.selected)
	next.reservedFor = slices.Clone(s.reservedFor)
	next.attempts = slices.Clone(s.attempts)
	next.notice = ""
	return next
}

func (s State) withNotice(err error) State {
	next := s.clone()
	next.notice = noticeFor(err)
	return next
}
