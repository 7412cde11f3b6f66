package pipeline

import (
	"context"
	"sync"
)

// RunTracker versions the runs of each user. Starting a run or clearing the
// selection cancels the previous run, so a late result can be recognised and
// dropped. Only in-flight runs are held; versions come from one process-wide
// counter so a ticket never matches an entry created after it was released.
type RunTracker struct {
	mu   sync.Mutex
	next uint64
	runs map[string]*runEntry
}

type runEntry struct {
	version uint64
	cancel  context.CancelFunc
}

// Ticket identifies one run.
type Ticket struct {
	UserID  string
	Version uint64
}

func NewRunTracker() *RunTracker {
	return &RunTracker{runs: make(map[string]*runEntry)}
}

// Begin supersedes any in-flight run of the user and returns a context that is
// cancelled when this run is superseded in turn.
func (t *RunTracker) Begin(ctx context.Context, userID string) (context.Context, Ticket) {
	runCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.runs[userID]; ok {
		e.cancel()
	}
	t.next++
	t.runs[userID] = &runEntry{version: t.next, cancel: cancel}
	return runCtx, Ticket{UserID: userID, Version: t.next}
}

// Clear supersedes the in-flight run of the user without starting a new one.
func (t *RunTracker) Clear(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.runs[userID]; ok {
		e.cancel()
		delete(t.runs, userID)
	}
}

// Current reports whether the ticket belongs to the user's in-flight run.
func (t *RunTracker) Current(tk Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.runs[tk.UserID]
	return ok && e.version == tk.Version
}

// Finish releases the run context and forgets the user if the ticket is
// still current.
func (t *RunTracker) Finish(tk Ticket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.runs[tk.UserID]
	if !ok || e.version != tk.Version {
		return
	}
	e.cancel()
	delete(t.runs, tk.UserID)
}

// InFlight returns the number of users with a run in progress.
func (t *RunTracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.runs)
}
