package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prohmpiriya/tourismhub-booking/internal/domain"
)

// MemoryStore implements Store in memory. Units of work are serialized by a
// mutex and run against a copy of the state that replaces the original only
// on success, so a failed unit of work leaves nothing behind.
// This is useful for testing and development.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState

	// BeforeCommit, when set, runs after fn succeeds and may veto the commit
	BeforeCommit func() error
}

type memoryState struct {
	activities map[string]*domain.Activity
	bookings   map[string]*domain.Booking
	payments   map[string]*domain.Payment // transactionID -> payment
	events     map[string]*domain.WebhookEventRecord
	conflicts  map[string]*domain.ReconciliationConflict
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memoryState{
		activities: make(map[string]*domain.Activity),
		bookings:   make(map[string]*domain.Booking),
		payments:   make(map[string]*domain.Payment),
		events:     make(map[string]*domain.WebhookEventRecord),
		conflicts:  make(map[string]*domain.ReconciliationConflict),
	}}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		activities: make(map[string]*domain.Activity, len(s.activities)),
		bookings:   make(map[string]*domain.Booking, len(s.bookings)),
		payments:   make(map[string]*domain.Payment, len(s.payments)),
		events:     make(map[string]*domain.WebhookEventRecord, len(s.events)),
		conflicts:  make(map[string]*domain.ReconciliationConflict, len(s.conflicts)),
	}
	for k, v := range s.activities {
		a := *v
		c.activities[k] = &a
	}
	for k, v := range s.bookings {
		c.bookings[k] = v.Clone()
	}
	for k, v := range s.payments {
		p := *v
		c.payments[k] = &p
	}
	for k, v := range s.events {
		e := *v
		c.events[k] = &e
	}
	for k, v := range s.conflicts {
		cf := *v
		c.conflicts[k] = &cf
	}
	return c
}

// WithinTx runs fn against a private copy of the state and publishes it on success
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(ctx, memoryRepositories(func() (*memoryState, func()) { return work, func() {} })); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.BeforeCommit != nil {
		if err := s.BeforeCommit(); err != nil {
			return err
		}
	}

	s.state = work
	return nil
}

// Repositories returns repositories that each lock the store per call
func (s *MemoryStore) Repositories() *Repositories {
	return memoryRepositories(func() (*memoryState, func()) {
		s.mu.Lock()
		return s.state, s.mu.Unlock
	})
}

// PutActivity seeds an activity
func (s *MemoryStore) PutActivity(a *domain.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *a
	s.state.activities[a.ID] = &c
}

// Activity returns a snapshot of an activity, or nil
func (s *MemoryStore) Activity(id string) *domain.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.activities[id]
	if !ok {
		return nil
	}
	c := *a
	return &c
}

// Booking returns a snapshot of a booking, or nil
func (s *MemoryStore) Booking(id string) *domain.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.state.bookings[id]
	if !ok {
		return nil
	}
	return b.Clone()
}

// PaymentsForBooking returns all payments of a booking
func (s *MemoryStore) PaymentsForBooking(bookingID string) []*domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Payment
	for _, p := range s.state.payments {
		if p.BookingID == bookingID {
			c := *p
			out = append(out, &c)
		}
	}
	return out
}

// Conflicts returns all reconciliation conflicts ordered by creation time
func (s *MemoryStore) Conflicts() []*domain.ReconciliationConflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.ReconciliationConflict, 0, len(s.state.conflicts))
	for _, c := range s.state.conflicts {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type acquireFunc func() (*memoryState, func())

func memoryRepositories(acquire acquireFunc) *Repositories {
	return &Repositories{
		Activities:    &memoryActivityRepository{acquire: acquire},
		Bookings:      &memoryBookingRepository{acquire: acquire},
		Payments:      &memoryPaymentRepository{acquire: acquire},
		WebhookEvents: &memoryWebhookEventRepository{acquire: acquire},
		Conflicts:     &memoryConflictRepository{acquire: acquire},
	}
}

type memoryActivityRepository struct{ acquire acquireFunc }

func (r *memoryActivityRepository) GetByID(ctx context.Context, id string) (*domain.Activity, error) {
	st, release := r.acquire()
	defer release()
	a, ok := st.activities[id]
	if !ok {
		return nil, domain.ErrActivityNotFound
	}
	c := *a
	return &c, nil
}

func (r *memoryActivityRepository) ReserveSlots(ctx context.Context, id string, count int) error {
	st, release := r.acquire()
	defer release()
	a, ok := st.activities[id]
	if !ok {
		return domain.ErrActivityNotFound
	}
	if a.AvailableSlots < count {
		return domain.ErrInsufficientSlots
	}
	a.AvailableSlots -= count
	a.UpdatedAt = time.Now()
	return nil
}

func (r *memoryActivityRepository) ReleaseSlots(ctx context.Context, id string, count int) error {
	st, release := r.acquire()
	defer release()
	a, ok := st.activities[id]
	if !ok {
		return domain.ErrActivityNotFound
	}
	a.AvailableSlots += count
	a.UpdatedAt = time.Now()
	return nil
}

type memoryBookingRepository struct{ acquire acquireFunc }

func (r *memoryBookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	st, release := r.acquire()
	defer release()
	st.bookings[b.ID] = b.Clone()
	return nil
}

func (r *memoryBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	st, release := r.acquire()
	defer release()
	b, ok := st.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return b.Clone(), nil
}

func (r *memoryBookingRepository) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryBookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	st, release := r.acquire()
	defer release()
	if _, ok := st.bookings[b.ID]; !ok {
		return domain.ErrBookingNotFound
	}
	st.bookings[b.ID] = b.Clone()
	return nil
}

func (r *memoryBookingRepository) Delete(ctx context.Context, id string) error {
	st, release := r.acquire()
	defer release()
	if _, ok := st.bookings[id]; !ok {
		return domain.ErrBookingNotFound
	}
	delete(st.bookings, id)
	return nil
}

func (r *memoryBookingRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	st, release := r.acquire()
	defer release()
	var stale []*domain.Booking
	for _, b := range st.bookings {
		if b.Status == domain.BookingStatusPending && b.PaymentStatus == domain.PaymentStatusPending && b.CreatedAt.Before(cutoff) {
			stale = append(stale, b)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	ids := make([]string, 0, len(stale))
	for i := 0; i < len(stale) && i < limit; i++ {
		ids = append(ids, stale[i].ID)
	}
	return ids, nil
}

type memoryPaymentRepository struct{ acquire acquireFunc }

func (r *memoryPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	st, release := r.acquire()
	defer release()
	if _, ok := st.payments[p.TransactionID]; ok {
		return domain.ErrDuplicateTransaction
	}
	if p.Status == domain.PaymentStatusPaid {
		for _, existing := range st.payments {
			if existing.BookingID == p.BookingID && existing.Status == domain.PaymentStatusPaid {
				return domain.ErrBookingAlreadyPaid
			}
		}
	}
	c := *p
	st.payments[p.TransactionID] = &c
	return nil
}

func (r *memoryPaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	st, release := r.acquire()
	defer release()
	p, ok := st.payments[transactionID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	c := *p
	return &c, nil
}

func (r *memoryPaymentRepository) GetPaidByBookingID(ctx context.Context, bookingID string) (*domain.Payment, error) {
	st, release := r.acquire()
	defer release()
	for _, p := range st.payments {
		if p.BookingID == bookingID && p.Status == domain.PaymentStatusPaid {
			c := *p
			return &c, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (r *memoryPaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	st, release := r.acquire()
	defer release()
	if _, ok := st.payments[p.TransactionID]; !ok {
		return ErrPaymentNotFound
	}
	c := *p
	st.payments[p.TransactionID] = &c
	return nil
}

type memoryWebhookEventRepository struct{ acquire acquireFunc }

func (r *memoryWebhookEventRepository) Record(ctx context.Context, e *domain.WebhookEventRecord) error {
	st, release := r.acquire()
	defer release()
	key := e.Provider + "/" + e.EventID
	if _, ok := st.events[key]; ok {
		return domain.ErrDuplicateEvent
	}
	c := *e
	st.events[key] = &c
	return nil
}

func (r *memoryWebhookEventRepository) SetOutcome(ctx context.Context, provider, eventID string, outcome domain.ReconcileOutcome) error {
	st, release := r.acquire()
	defer release()
	if e, ok := st.events[provider+"/"+eventID]; ok {
		e.Outcome = outcome
	}
	return nil
}

type memoryConflictRepository struct{ acquire acquireFunc }

func (r *memoryConflictRepository) Create(ctx context.Context, c *domain.ReconciliationConflict) error {
	st, release := r.acquire()
	defer release()
	cp := *c
	st.conflicts[c.ID] = &cp
	return nil
}

func (r *memoryConflictRepository) GetByID(ctx context.Context, id string) (*domain.ReconciliationConflict, error) {
	st, release := r.acquire()
	defer release()
	c, ok := st.conflicts[id]
	if !ok {
		return nil, ErrConflictNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memoryConflictRepository) GetOpenByTransactionID(ctx context.Context, transactionID string) (*domain.ReconciliationConflict, error) {
	st, release := r.acquire()
	defer release()
	var found *domain.ReconciliationConflict
	for _, c := range st.conflicts {
		if c.TransactionID != transactionID || c.RefundStatus == domain.RefundCompleted {
			continue
		}
		if found == nil || c.CreatedAt.After(found.CreatedAt) {
			found = c
		}
	}
	if found == nil {
		return nil, ErrConflictNotFound
	}
	cp := *found
	return &cp, nil
}

func (r *memoryConflictRepository) Update(ctx context.Context, c *domain.ReconciliationConflict) error {
	st, release := r.acquire()
	defer release()
	if _, ok := st.conflicts[c.ID]; !ok {
		return ErrConflictNotFound
	}
	cp := *c
	st.conflicts[c.ID] = &cp
	return nil
}
