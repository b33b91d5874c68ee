package workflow

import (
	"context"
	"sync"
)

// jobLocks is a keyed mutex map. Entries are reference counted and dropped
// once no caller holds or waits on them.
type jobLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newJobLocks() *jobLocks {
	return &jobLocks{entries: make(map[string]*lockEntry)}
}

// lock blocks until the job's mutex is held and returns its release func.
func (l *jobLocks) lock(id string) func() {
	l.mu.Lock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &lockEntry{}
		l.entries[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.entries, id)
			}
			l.mu.Unlock()
		})
	}
}

func (l *jobLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// inflight tracks the cancel funcs of running advances per job.
type inflight struct {
	mu      sync.Mutex
	seq     uint64
	cancels map[string]map[uint64]context.CancelFunc
}

func newInflight() *inflight {
	return &inflight{cancels: make(map[string]map[uint64]context.CancelFunc)}
}

func (f *inflight) register(id string, cancel context.CancelFunc) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	token := f.seq
	set, ok := f.cancels[id]
	if !ok {
		set = make(map[uint64]context.CancelFunc)
		f.cancels[id] = set
	}
	set[token] = cancel
	return token
}

func (f *inflight) unregister(id string, token uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := f.cancels[id]
	delete(set, token)
	if len(set) == 0 {
		delete(f.cancels, id)
	}
}

// cancel fires every registered cancel func for id and reports whether any
// advance was in flight.
func (f *inflight) cancel(id string) bool {
	f.mu.Lock()
	set := f.cancels[id]
	delete(f.cancels, id)
	f.mu.Unlock()
	for _, cancel := range set {
		cancel()
	}
	return len(set) > 0
}
