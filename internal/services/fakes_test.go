package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"medical-office-server/internal/models"
	"medical-office-server/internal/repository"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sequenceGenerator struct {
	mu sync.Mutex
	n  int
}

func (g *sequenceGenerator) NewTokenValue() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("tok-%03d", g.n), nil
}

type failingGenerator struct{ err error }

func (g failingGenerator) NewTokenValue() (string, error) {
	return "", g.err
}

type recordingRecorder struct {
	mu     sync.Mutex
	events []RevocationEvent
}

func (r *recordingRecorder) Record(_ context.Context, event RevocationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingRecorder) kinds() []RevocationEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]RevocationEventKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// memoryTokenStore mimics the repository: optimistic versions on revoke,
// all-or-nothing Apply, and context errors surfaced like a driver would.
type memoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]models.RefreshToken

	findErr  error
	applyErr error
	// beforeApply runs outside the lock ahead of every Apply. A non-nil
	// return is handed back to the caller instead of applying.
	beforeApply func(writes []models.RefreshTokenWrite) error
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{tokens: map[string]models.RefreshToken{}}
}

func (s *memoryTokenStore) FindByValue(ctx context.Context, value string) (*models.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	t, ok := s.tokens[value]
	if !ok {
		return nil, repository.ErrRefreshTokenNotFound
	}
	return &t, nil
}

func (s *memoryTokenStore) ListByOwner(ctx context.Context, ownerID string) ([]models.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RefreshToken
	for _, t := range s.tokens {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].TokenValue > out[j].TokenValue
		}
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out, nil
}

func (s *memoryTokenStore) Apply(ctx context.Context, writes []models.RefreshTokenWrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.beforeApply != nil {
		if err := s.beforeApply(writes); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}

	for _, w := range writes {
		switch w.Op {
		case models.WriteRevoke:
			stored, ok := s.tokens[w.Token.TokenValue]
			if !ok || stored.Version != w.Token.Version {
				return repository.ErrStaleRefreshToken
			}
		case models.WriteInsert:
			if _, ok := s.tokens[w.Token.TokenValue]; ok {
				return repository.ErrDuplicateKey
			}
		}
	}

	for _, w := range writes {
		switch w.Op {
		case models.WriteRevoke:
			stored := s.tokens[w.Token.TokenValue]
			stored.RevokedAt = w.Token.RevokedAt
			stored.RevokedByIP = w.Token.RevokedByIP
			stored.RevocationReason = w.Token.RevocationReason
			if w.Token.ReplacedByTokenValue != "" {
				stored.ReplacedByTokenValue = w.Token.ReplacedByTokenValue
			}
			stored.Version++
			s.tokens[w.Token.TokenValue] = stored
		case models.WriteInsert:
			s.tokens[w.Token.TokenValue] = w.Token
		}
	}
	return nil
}

func (s *memoryTokenStore) get(value string) models.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[value]
}

func (s *memoryTokenStore) put(t models.RefreshToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.TokenValue] = t
}

func (s *memoryTokenStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func (s *memoryTokenStore) all() []models.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RefreshToken, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, t)
	}
	return out
}

type memoryUserStore struct {
	users map[string]*models.User
	err   error
}

func newMemoryUserStore(users ...*models.User) *memoryUserStore {
	s := &memoryUserStore{users: map[string]*models.User{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memoryUserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (s *memoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

type memoryAppointmentStore struct {
	mu           sync.Mutex
	appointments map[string]models.Appointment
	seq          int
}

func newMemoryAppointmentStore(appointments ...models.Appointment) *memoryAppointmentStore {
	s := &memoryAppointmentStore{appointments: map[string]models.Appointment{}}
	for _, a := range appointments {
		s.appointments[a.ID] = a
	}
	return s
}

func (s *memoryAppointmentStore) Create(_ context.Context, appointment *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	appointment.ID = fmt.Sprintf("appt-%d", s.seq)
	s.appointments[appointment.ID] = *appointment
	return nil
}

func (s *memoryAppointmentStore) FindByID(_ context.Context, id string) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, repository.ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *memoryAppointmentStore) ListForActor(_ context.Context, actor models.Actor) ([]models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Appointment
	for _, a := range s.appointments {
		if actor.IsAdmin() || a.Involves(actor) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memoryAppointmentStore) Update(
	_ context.Context,
	id string,
	mutate func(models.Appointment) (models.Appointment, error),
) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.appointments[id]
	if !ok {
		return nil, repository.ErrAppointmentNotFound
	}
	updated, err := mutate(current)
	if err != nil {
		return nil, err
	}
	s.appointments[id] = updated
	return &updated, nil
}

func (s *memoryAppointmentStore) get(id string) models.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appointments[id]
}
