package submissions

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sqlgym/internal/models"
	"github.com/desertthunder/sqlgym/internal/shared"
)

// maxEarly bounds how many verdicts for untracked submissions are held.
const maxEarly = 256

// Persister stores tracked submissions and their verdicts.
type Persister interface {
	Upsert(sub models.Submission) error
	ApplyVerdict(v models.Verdict) error
}

// Tracker holds the submissions of the current user and reconciles verdicts into them.
type Tracker struct {
	mu      sync.Mutex
	subs    []models.Submission
	early   map[string]models.Verdict
	order   []string
	waiters map[string][]chan models.Submission
	store   Persister
	logger  *log.Logger
}

// NewTracker creates an empty Tracker. store may be nil.
func NewTracker(store Persister, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.Default()
	}
	return &Tracker{
		early:   make(map[string]models.Verdict),
		waiters: make(map[string][]chan models.Submission),
		store:   store,
		logger:  shared.WithLogger(logger, "component", "tracker"),
	}
}

// Track adds sub to the list. Tracking an id twice keeps the first entry.
// A verdict that arrived before sub is applied immediately.
func (t *Tracker) Track(sub models.Submission) {
	t.mu.Lock()
	for _, existing := range t.subs {
		if existing.ID == sub.ID {
			t.mu.Unlock()
			return
		}
	}

	v, early := t.early[sub.ID]
	if early {
		t.releaseLocked(sub.ID)
		sub = sub.WithVerdict(v)
	}
	t.subs = append(t.subs, sub)
	t.persist(func(p Persister) error { return p.Upsert(sub) })
	if sub.Status.IsFinal() {
		t.notifyLocked(sub)
	}
	t.mu.Unlock()
}

// Load replaces the list with subs, typically the cached or fetched history.
// Held verdicts for loaded ids are applied.
func (t *Tracker) Load(subs []models.Submission) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.subs = append([]models.Submission(nil), subs...)
	for i, sub := range t.subs {
		v, ok := t.early[sub.ID]
		if !ok {
			continue
		}
		t.releaseLocked(sub.ID)
		sub = sub.WithVerdict(v)
		t.subs[i] = sub
		t.persist(func(p Persister) error { return p.ApplyVerdict(v) })
		if sub.Status.IsFinal() {
			t.notifyLocked(sub)
		}
	}
}

// Apply reconciles v into the list. It reports whether a tracked submission was updated.
//
// Invalid verdicts are logged and dropped. Verdicts for unknown ids are held until [Tracker.Track].
func (t *Tracker) Apply(v models.Verdict) bool {
	if err := v.Validate(); err != nil {
		t.logger.Warn("dropping verdict", "error", fmt.Errorf("%w: %v", shared.ErrMalformedMessage, err))
		return false
	}

	t.mu.Lock()
	next, found := Reconcile(t.subs, v)
	if !found {
		t.holdLocked(v)
		t.mu.Unlock()
		t.logger.Debug("verdict for untracked submission", "id", v.SubmissionID)
		return false
	}
	t.subs = next
	t.persist(func(p Persister) error { return p.ApplyVerdict(v) })
	for _, sub := range next {
		if sub.ID == v.SubmissionID {
			t.notifyLocked(sub)
			break
		}
	}
	t.mu.Unlock()
	return true
}

// Handle is [Tracker.Apply] shaped as a push handler.
func (t *Tracker) Handle(v models.Verdict) {
	t.Apply(v)
}

// Get returns the tracked submission with the given id.
func (t *Tracker) Get(id string) (models.Submission, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, sub := range t.subs {
		if sub.ID == id {
			return sub, true
		}
	}
	return models.Submission{}, false
}

// Pending returns the submissions still waiting for a verdict, in tracking order.
func (t *Tracker) Pending() []models.Submission {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pending []models.Submission
	for _, sub := range t.subs {
		if !sub.Status.IsFinal() {
			pending = append(pending, sub)
		}
	}
	return pending
}

// All returns a copy of every tracked submission, in tracking order.
func (t *Tracker) All() []models.Submission {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Submission(nil), t.subs...)
}

// Wait blocks until the submission with the given id has a final status or ctx is done.
func (t *Tracker) Wait(ctx context.Context, id string) (models.Submission, error) {
	t.mu.Lock()
	for _, sub := range t.subs {
		if sub.ID == id && sub.Status.IsFinal() {
			t.mu.Unlock()
			return sub, nil
		}
	}
	ch := make(chan models.Submission, 1)
	t.waiters[id] = append(t.waiters[id], ch)
	t.mu.Unlock()

	select {
	case sub := <-ch:
		return sub, nil
	case <-ctx.Done():
		t.removeWaiter(id, ch)
		return models.Submission{}, fmt.Errorf("%w: waiting for verdict on %s: %w", shared.ErrTimeout, id, ctx.Err())
	}
}

func (t *Tracker) removeWaiter(id string, ch chan models.Submission) {
	t.mu.Lock()
	defer t.mu.Unlock()

	waiting := t.waiters[id]
	for i, w := range waiting {
		if w == ch {
			waiting = append(waiting[:i], waiting[i+1:]...)
			break
		}
	}
	if len(waiting) == 0 {
		delete(t.waiters, id)
		return
	}
	t.waiters[id] = waiting
}

func (t *Tracker) notifyLocked(sub models.Submission) {
	for _, ch := range t.waiters[sub.ID] {
		ch <- sub
	}
	delete(t.waiters, sub.ID)
}

// holdLocked keeps v for a later Track, evicting the oldest held verdict when full.
func (t *Tracker) holdLocked(v models.Verdict) {
	if _, ok := t.early[v.SubmissionID]; !ok {
		t.order = append(t.order, v.SubmissionID)
	}
	t.early[v.SubmissionID] = v

	for len(t.early) > maxEarly && len(t.order) > 0 {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.early, oldest)
	}
}

func (t *Tracker) releaseLocked(id string) {
	delete(t.early, id)
	for i, held := range t.order {
		if held == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// persist runs under t.mu so a waiter never observes a verdict that is not yet stored.
func (t *Tracker) persist(fn func(Persister) error) {
	if t.store == nil {
		return
	}
	if err := fn(t.store); err != nil {
		t.logger.Warn("failed to persist submission", "error", err)
	}
}
