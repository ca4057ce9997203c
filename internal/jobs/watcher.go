// Package jobs runs the polling loop against the remote job API: one watcher
// per submitted job, checking status and predictions on a fixed interval
// until content shows up.
package jobs

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rezkysantika/Expression-Measurement/internal/domain"
)

// Client is the slice of the vendor client a watcher needs.
type Client interface {
	GetStatus(ctx context.Context, jobID string) (domain.JobStatus, error)
	GetPredictions(ctx context.Context, jobID string) ([]byte, bool, error)
}

// Snapshot is the latest immutable view of a watched job. Err holds the most
// recent transient fetch error; it never implies the loop has stopped.
type Snapshot struct {
	Status  domain.JobStatus
	Payload []byte
	Err     string
}

// HasResults reports whether a non-empty predictions payload has been
// latched.
func (s Snapshot) HasResults() bool {
	return len(s.Payload) > 0
}

// Watcher polls one job. An immediate check fires on Start, then a ticker
// fires every interval; each tick runs in its own goroutine, so a slow
// response never delays the next tick and in-flight requests may overlap
// (last write wins). The first non-empty predictions payload is latched:
// it sets RESULTS_READY, stops the ticker, and is never replaced by a later
// empty result. The stopped flag is checked before every state write so
// nothing is written after Stop.
type Watcher struct {
	jobID    string
	client   Client
	interval time.Duration

	stopped  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}

	mu   sync.Mutex
	snap Snapshot
}

func NewWatcher(client Client, jobID string, interval time.Duration) *Watcher {
	return &Watcher{
		jobID:    jobID,
		client:   client,
		interval: interval,
		done:     make(chan struct{}),
		snap:     Snapshot{Status: domain.StatusQueued},
	}
}

func (w *Watcher) JobID() string {
	return w.jobID
}

// Start launches the polling loop. It returns immediately.
func (w *Watcher) Start() {
	go w.loop()
}

func (w *Watcher) loop() {
	w.tick()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			go w.tick()
		}
	}
}

// Stop cancels the loop. Safe to call more than once; after it returns no
// further snapshot writes happen.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.stopped.Store(true)
		close(w.done)
	})
}

// Snapshot returns a copy of the latest state.
func (w *Watcher) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap
}

func (w *Watcher) tick() {
	if w.stopped.Load() {
		return
	}
	ctx := context.Background()

	status, err := w.client.GetStatus(ctx, w.jobID)
	if err != nil {
		w.recordError(err)
	} else {
		w.recordStatus(status)
	}

	payload, ok, err := w.client.GetPredictions(ctx, w.jobID)
	if err != nil {
		w.recordError(err)
		return
	}
	if ok {
		w.recordResults(payload)
	}
}

func (w *Watcher) recordStatus(status domain.JobStatus) {
	if w.stopped.Load() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	// Never regress out of the latched results state.
	if w.snap.Status == domain.StatusResultsReady {
		return
	}
	w.snap.Status = status
	w.snap.Err = ""
}

func (w *Watcher) recordError(err error) {
	if w.stopped.Load() {
		return
	}
	log.Printf("job %s: poll error: %v", w.jobID, err)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snap.Err = err.Error()
}

func (w *Watcher) recordResults(payload []byte) {
	if w.stopped.Load() {
		return
	}
	w.mu.Lock()
	w.snap.Status = domain.StatusResultsReady
	w.snap.Payload = payload
	w.snap.Err = ""
	w.mu.Unlock()

	w.Stop()
}
