// Package testutil provides an in-memory booking backend for tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"cinepay/internal/models"
	"cinepay/internal/ticket"
)

// Backend speaks the booking backend REST contract over an httptest server.
// Seats held by an unpaid reservation can be taken over by a new
// reservation of the same customer, which cancels the old one.
type Backend struct {
	Server *httptest.Server

	// ServeQR makes /pay return qr_base64 like the reference backend
	ServeQR bool

	mu           sync.Mutex
	movies       []models.Movie
	seats        map[string][]models.Seat
	reservations map[string]*models.Reservation
	nextID       int
	calls        map[string]int
	failures     map[string]failure
	patches      []models.ReservationStatusUpdate
}

type failure struct {
	status int
	detail string
}

// NewBackend starts a backend that is closed when the test ends
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &Backend{
		seats:        make(map[string][]models.Seat),
		reservations: make(map[string]*models.Reservation),
		calls:        make(map[string]int),
		failures:     make(map[string]failure),
	}

	router := gin.New()
	router.Use(b.count)
	router.GET("/movies", b.listMovies)
	router.GET("/movies/:id/seats", b.listSeats)
	router.POST("/reserve", b.reserve)
	router.POST("/pay", b.pay)
	router.GET("/reservation/:id", b.getReservation)
	router.PATCH("/reservation/:id", b.patchReservation)

	b.Server = httptest.NewServer(router)
	t.Cleanup(b.Server.Close)
	return b
}

func (b *Backend) URL() string { return b.Server.URL }

// AddMovie registers a movie with the given free seats, e.g. "A1", "A2"
func (b *Backend) AddMovie(movie models.Movie, seatIDs ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.movies = append(b.movies, movie)
	seats := make([]models.Seat, 0, len(seatIDs))
	for _, id := range seatIDs {
		var number int
		_, _ = fmt.Sscanf(id[1:], "%d", &number)
		seats = append(seats, models.Seat{ID: id, Row: id[:1], Number: number})
	}
	b.seats[movie.ID] = seats
}

// Take marks a seat as held by someone else, simulating a concurrent customer
func (b *Backend) Take(movieID, seatID, holder string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.seats[movieID] {
		if b.seats[movieID][i].ID == seatID {
			b.seats[movieID][i].Reserved = true
			b.seats[movieID][i].ReservedBy = holder
		}
	}
}

// FailNext makes the next request to route ("POST /reserve") fail with status
func (b *Backend) FailNext(route string, status int, detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = failure{status: status, detail: detail}
}

// Calls returns how many requests hit route, e.g. "POST /pay"
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// Reservation returns a copy of a stored reservation
func (b *Backend) Reservation(id string) (models.Reservation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.reservations[id]
	if !ok {
		return models.Reservation{}, false
	}
	out := *r
	out.Seats = slices.Clone(r.Seats)
	return out, true
}

// Patches returns every status update pushed to the backend
func (b *Backend) Patches() []models.ReservationStatusUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.patches)
}

func (b *Backend) count(c *gin.Context) {
	route := c.Request.Method + " " + c.FullPath()
	b.mu.Lock()
	b.calls[route]++
	f, fail := b.failures[route]
	delete(b.failures, route)
	b.mu.Unlock()

	if fail {
		c.AbortWithStatusJSON(f.status, gin.H{"detail": f.detail})
		return
	}
	c.Next()
}

func (b *Backend) listMovies(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c.JSON(http.StatusOK, b.movies)
}

func (b *Backend) listSeats(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	seats, ok := b.seats[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "movie not found"})
		return
	}
	c.JSON(http.StatusOK, seats)
}

func (b *Backend) reserve(c *gin.Context) {
	var req models.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	seats, ok := b.seats[req.MovieID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "movie not found"})
		return
	}
	for _, id := range req.Seats {
		i := slices.IndexFunc(seats, func(s models.Seat) bool { return s.ID == id })
		if i < 0 || (seats[i].Reserved && !b.transferable(seats[i], req.Email)) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("seat %s is not available", id)})
			return
		}
	}

	b.nextID++
	reservation := &models.Reservation{
		ID:      fmt.Sprintf("R%d", b.nextID),
		MovieID: req.MovieID,
		Seats:   slices.Clone(req.Seats),
		Email:   req.Email,
		Status:  models.ReservationPending,
	}
	for i := range seats {
		if slices.Contains(req.Seats, seats[i].ID) {
			if old, ok := b.reservations[seats[i].ReservedBy]; ok && old.ID != reservation.ID {
				b.release(old)
			}
			seats[i].Reserved = true
			seats[i].ReservedBy = reservation.ID
		}
	}
	b.reservations[reservation.ID] = reservation
	c.JSON(http.StatusOK, reservation)
}

func (b *Backend) transferable(seat models.Seat, email string) bool {
	holder, ok := b.reservations[seat.ReservedBy]
	return ok && !holder.Paid && holder.Email == email
}

func (b *Backend) release(r *models.Reservation) {
	r.Status = models.ReservationCancelled
	for i := range b.seats[r.MovieID] {
		if b.seats[r.MovieID][i].ReservedBy == r.ID {
			b.seats[r.MovieID][i].Reserved = false
			b.seats[r.MovieID][i].ReservedBy = ""
		}
	}
}

func (b *Backend) pay(c *gin.Context) {
	var req models.PayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	reservation, ok := b.reservations[req.ReservationID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "reservation not found"})
		return
	}
	if reservation.Paid {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "reservation already paid"})
		return
	}
	reservation.Paid = true

	resp := models.PayResponse{
		Success:       true,
		ReservationID: reservation.ID,
		QRURL:         ticket.URL(b.Server.URL, reservation.ID),
	}
	if b.ServeQR {
		qr, err := ticket.Base64(b.Server.URL, reservation.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		resp.QRBase64 = qr
	}
	c.JSON(http.StatusOK, resp)
}

func (b *Backend) getReservation(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	reservation, ok := b.reservations[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "reservation not found"})
		return
	}
	c.JSON(http.StatusOK, reservation)
}

func (b *Backend) patchReservation(c *gin.Context) {
	var update models.ReservationStatusUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	reservation, ok := b.reservations[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "reservation not found"})
		return
	}
	b.patches = append(b.patches, update)
	reservation.Status = update.Status
	if update.TransactionID != "" {
		reservation.TransactionID = update.TransactionID
	}
	if update.ConfirmationCode != "" {
		reservation.ConfirmationCode = update.ConfirmationCode
	}
	if update.Status == models.ReservationPaid {
		reservation.Paid = true
	}
	c.JSON(http.StatusOK, reservation)
}
