package jobs

import (
	"sync"
	"time"
)

// Manager owns the watchers for every job this process has submitted.
type Manager struct {
	client   Client
	interval time.Duration

	mu       sync.Mutex
	watchers map[string]*Watcher
}

func NewManager(client Client, interval time.Duration) *Manager {
	return &Manager{
		client:   client,
		interval: interval,
		watchers: make(map[string]*Watcher),
	}
}

// Watch starts a watcher for the job, or returns the existing one.
func (m *Manager) Watch(jobID string) *Watcher {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.watchers[jobID]; ok {
		return w
	}
	w := NewWatcher(m.client, jobID, m.interval)
	m.watchers[jobID] = w
	w.Start()
	return w
}

// Remove stops the watcher for a job and forgets it, releasing the latched
// payload. Later status lookups for the id fall through to the vendor.
func (m *Manager) Remove(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.watchers[jobID]; ok {
		w.Stop()
		delete(m.watchers, jobID)
	}
}

// Get looks up the watcher for a job id without starting one.
func (m *Manager) Get(jobID string) (*Watcher, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watchers[jobID]
	return w, ok
}

// StopAll cancels every watcher; used at shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.watchers {
		w.Stop()
	}
}
