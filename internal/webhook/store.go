package webhook

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "cinepay/internal/errors"
)

// LogStatus is the terminal state recorded for a delivery
type LogStatus string

const (
	LogProcessed LogStatus = "processed"
	LogFailed    LogStatus = "failed"
)

// LogEntry is one immutable audit record. A replay never edits its source
// entry; it appends a new one pointing back through ReplayOf.
type LogEntry struct {
	ID            string          `json:"id"`
	DeliveryID    string          `json:"delivery_id,omitempty"`
	EventType     string          `json:"event_type"`
	TransactionID string          `json:"transaction_id,omitempty"`
	ReservationID string          `json:"reservation_id,omitempty"`
	Status        LogStatus       `json:"status"`
	Signature     string          `json:"-"`
	Body          []byte          `json:"-"`
	Payload       json.RawMessage `json:"payload"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	Attempt       int             `json:"attempt"`
	ReplayOf      string          `json:"replay_of,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// SetBody stores the raw delivery body; Payload is its JSON view, or a JSON
// string when the body is not valid JSON
func (e *LogEntry) SetBody(body []byte) {
	e.Body = slices.Clone(body)
	if json.Valid(body) {
		e.Payload = json.RawMessage(e.Body)
		return
	}
	quoted, _ := json.Marshal(string(body))
	e.Payload = quoted
}

type OutcomeState string

const (
	OutcomePending OutcomeState = "pending"
	OutcomeApplied OutcomeState = "applied"
)

// Outcome is the effect of one (transaction, event type) pair. It is
// created before the backend is touched and marked applied afterwards, so
// a crashed or replayed delivery reuses the same confirmation code.
type Outcome struct {
	TransactionID    string       `json:"transaction_id"`
	EventType        string       `json:"event_type"`
	ReservationID    string       `json:"reservation_id"`
	ConfirmationCode string       `json:"confirmation_code,omitempty"`
	State            OutcomeState `json:"state"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Store persists the audit log and the per-transaction outcomes
type Store interface {
	// Append assigns ID and CreatedAt when empty
	Append(ctx context.Context, entry *LogEntry) error
	// Get returns errors.ErrNotFound for an unknown id
	Get(ctx context.Context, id string) (*LogEntry, error)
	// List returns entries newest first and the total count
	List(ctx context.Context, limit, offset int) ([]LogEntry, int, error)
	// ListFailed returns failed entries that were not replayed yet and have
	// fewer than maxAttempts attempts, oldest first
	ListFailed(ctx context.Context, maxAttempts, limit int) ([]LogEntry, error)

	// ReserveOutcome stores o unless an outcome for the same transaction and
	// event type exists; it returns whichever outcome is stored
	ReserveOutcome(ctx context.Context, o Outcome) (Outcome, error)
	// FindOutcome returns nil when there is none
	FindOutcome(ctx context.Context, transactionID, eventType string) (*Outcome, error)
	MarkApplied(ctx context.Context, transactionID, eventType string) error
}

// MemoryStore is a Store for tests and single-instance deployments
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []LogEntry
	byID     map[string]int
	outcomes map[string]Outcome
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]int),
		outcomes: make(map[string]Outcome),
		now:      time.Now,
	}
}

func outcomeKey(transactionID, eventType string) string {
	return transactionID + "|" + eventType
}

func (s *MemoryStore) Append(_ context.Context, entry *LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	stored := *entry
	stored.Body = slices.Clone(entry.Body)
	stored.Payload = slices.Clone(entry.Payload)
	stored.Result = slices.Clone(entry.Result)
	s.byID[stored.ID] = len(s.entries)
	s.entries = append(s.entries, stored)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	entry := s.entries[i]
	return &entry, nil
}

func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]LogEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	total := len(s.entries)
	out := make([]LogEntry, 0, limit)
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, total, nil
}

func (s *MemoryStore) ListFailed(_ context.Context, maxAttempts, limit int) ([]LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	replayed := make(map[string]bool)
	for _, e := range s.entries {
		if e.ReplayOf != "" {
			replayed[e.ReplayOf] = true
		}
	}

	var out []LogEntry
	for _, e := range s.entries {
		if e.Status != LogFailed || replayed[e.ID] {
			continue
		}
		if maxAttempts > 0 && e.Attempt >= maxAttempts {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ReserveOutcome(_ context.Context, o Outcome) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := outcomeKey(o.TransactionID, o.EventType)
	if existing, ok := s.outcomes[key]; ok {
		return existing, nil
	}
	now := s.now()
	o.State = OutcomePending
	o.CreatedAt, o.UpdatedAt = now, now
	s.outcomes[key] = o
	return o, nil
}

func (s *MemoryStore) FindOutcome(_ context.Context, transactionID, eventType string) (*Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.outcomes[outcomeKey(transactionID, eventType)]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *MemoryStore) MarkApplied(_ context.Context, transactionID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := outcomeKey(transactionID, eventType)
	o, ok := s.outcomes[key]
	if !ok {
		return apperrors.ErrNotFound
	}
	o.State = OutcomeApplied
	o.UpdatedAt = s.now()
	s.outcomes[key] = o
	return nil
}
