// Package memory is an in-process EnrollmentStore used in development and tests.
// It honours the same uniqueness and compare-and-set rules as the SQL stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/skillnova/lifecycle-hub/internal/domain/enrollment"
	"github.com/skillnova/lifecycle-hub/internal/domain/shared"
)

type record struct {
	seq int64
	e   *enrollment.Enrollment
}

// EnrollmentRepository implements enrollment.Repository in memory.
type EnrollmentRepository struct {
	mu          sync.RWMutex
	seq         int64
	byID        map[string]*record
	byIdentity  map[string]string
	completions map[string]map[string]time.Time
}

// NewEnrollmentRepository creates an empty store.
func NewEnrollmentRepository() *EnrollmentRepository {
	return &EnrollmentRepository{
		byID:        make(map[string]*record),
		byIdentity:  make(map[string]string),
		completions: make(map[string]map[string]time.Time),
	}
}

func identityKey(contact, programID string) string {
	return strings.ToLower(contact) + "\x00" + programID
}

// Create stores a copy of e.
func (r *EnrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := identityKey(e.Contact, e.ProgramID)
	if _, exists := r.byIdentity[key]; exists {
		return shared.ErrEnrollmentAlreadyExists
	}
	if _, exists := r.byID[e.ID]; exists {
		return shared.ErrEnrollmentAlreadyExists
	}

	r.seq++
	r.byID[e.ID] = &record{seq: r.seq, e: e.Clone()}
	r.byIdentity[key] = e.ID
	return nil
}

// GetByID returns a copy of the stored enrollment.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrEnrollmentNotFound
	}
	return rec.e.Clone(), nil
}

// GetByIdentity returns the enrollment for (contact, program).
func (r *EnrollmentRepository) GetByIdentity(ctx context.Context, contact, programID string) (*enrollment.Enrollment, error) {
	r.mu.RLock()
	id, ok := r.byIdentity[identityKey(contact, programID)]
	r.mu.RUnlock()
	if !ok {
		return nil, shared.ErrEnrollmentNotFound
	}
	return r.GetByID(ctx, id)
}

// FindDue returns copies of due enrollments in insertion order.
func (r *EnrollmentRepository) FindDue(ctx context.Context, kind enrollment.Kind, now time.Time, policy enrollment.DuePolicy) ([]*enrollment.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := make([]*record, 0)
	for _, rec := range r.byID {
		if enrollment.IsDue(rec.e, kind, now, policy) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	out := make([]*enrollment.Enrollment, len(recs))
	for i, rec := range recs {
		out[i] = rec.e.Clone()
	}
	return out, nil
}

// MarkSent applies the mark if the stored value still matches.
func (r *EnrollmentRepository) MarkSent(ctx context.Context, mark enrollment.SentMark) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[mark.EnrollmentID]
	if !ok {
		return shared.ErrAlreadyMarked
	}
	return rec.e.ApplyMark(mark)
}

// UpdatePayment transitions the payment state.
func (r *EnrollmentRepository) UpdatePayment(ctx context.Context, id string, to enrollment.PaymentState, at time.Time) (*enrollment.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrEnrollmentNotFound
	}
	if !rec.e.Payment.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", shared.ErrInvalidPaymentTransition, rec.e.Payment, to)
	}

	rec.e.Payment = to
	if to == enrollment.PaymentPaid {
		rec.e.EnrolledAt = at.UTC()
	}
	rec.e.UpdatedAt = at.UTC()
	return rec.e.Clone(), nil
}

// AddCompletion records a unit completion once.
func (r *EnrollmentRepository) AddCompletion(ctx context.Context, c enrollment.CompletionRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[c.EnrollmentID]; !ok {
		return false, shared.ErrEnrollmentNotFound
	}
	units, ok := r.completions[c.EnrollmentID]
	if !ok {
		units = make(map[string]time.Time)
		r.completions[c.EnrollmentID] = units
	}
	if _, dup := units[c.UnitID]; dup {
		return false, nil
	}
	units[c.UnitID] = c.CompletedAt.UTC()
	return true, nil
}

// RemoveCompletion deletes a unit completion.
func (r *EnrollmentRepository) RemoveCompletion(ctx context.Context, enrollmentID, unitID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[enrollmentID]; !ok {
		return false, shared.ErrEnrollmentNotFound
	}
	units := r.completions[enrollmentID]
	if _, ok := units[unitID]; !ok {
		return false, nil
	}
	delete(units, unitID)
	return true, nil
}

// RecomputeProgress sets progress from the completion count.
func (r *EnrollmentRepository) RecomputeProgress(ctx context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return 0, shared.ErrEnrollmentNotFound
	}
	rec.e.Progress = enrollment.ComputeProgress(len(r.completions[id]), rec.e.TotalUnits)
	return rec.e.Progress, nil
}

// CompletionCount returns the number of completion records for an enrollment.
func (r *EnrollmentRepository) CompletionCount(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.completions[id])
}

// PurgeOlderThan removes enrollments created at or before cutoff, with their completions.
func (r *EnrollmentRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, rec := range r.byID {
		if rec.e.CreatedAt.After(cutoff) {
			continue
		}
		delete(r.byID, id)
		delete(r.byIdentity, identityKey(rec.e.Contact, rec.e.ProgramID))
		delete(r.completions, id)
		removed++
	}
	return removed, nil
}

// Ping always succeeds.
func (r *EnrollmentRepository) Ping(ctx context.Context) error {
	return nil
}

var _ enrollment.Repository = (*EnrollmentRepository)(nil)
