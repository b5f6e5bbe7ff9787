package runner

import (
	"sync"
	"time"
)

// Entry is a finished run recorded in a Journal.
type Entry struct {
	Time   time.Time `json:"time"`
	Report *Report   `json:"report"`
	Error  string    `json:"error,omitempty"`
}

// Journal is a thread-safe circular buffer of recent runs.
type Journal struct {
	mu    sync.RWMutex
	buf   []Entry
	size  int
	head  int // next write position
	count int

	subMu sync.RWMutex
	subs  map[*Subscription]struct{}
}

// Subscription receives entries added to a Journal.
type Subscription struct {
	C chan Entry
	j *Journal
}

// Close unsubscribes. The channel is left open.
func (s *Subscription) Close() {
	s.j.subMu.Lock()
	delete(s.j.subs, s)
	s.j.subMu.Unlock()
}

// NewJournal creates a journal holding the last size runs.
func NewJournal(size int) *Journal {
	if size < 1 {
		size = 1
	}
	return &Journal{
		buf:  make([]Entry, size),
		size: size,
		subs: make(map[*Subscription]struct{}),
	}
}

// Add records an entry, overwriting the oldest if full. Slow subscribers
// miss entries rather than block the runner.
func (j *Journal) Add(e Entry) {
	if j == nil {
		return
	}
	j.mu.Lock()
	j.buf[j.head] = e
	j.head = (j.head + 1) % j.size
	if j.count < j.size {
		j.count++
	}
	j.mu.Unlock()

	j.subMu.RLock()
	for sub := range j.subs {
		select {
		case sub.C <- e:
		default:
		}
	}
	j.subMu.RUnlock()
}

// Subscribe returns a Subscription for new entries.
func (j *Journal) Subscribe(bufSize int) *Subscription {
	if bufSize < 1 {
		bufSize = 16
	}
	sub := &Subscription{C: make(chan Entry, bufSize), j: j}
	j.subMu.Lock()
	j.subs[sub] = struct{}{}
	j.subMu.Unlock()
	return sub
}

// Latest returns up to n entries, newest first.
func (j *Journal) Latest(n int) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if n > j.count {
		n = j.count
	}
	if n <= 0 {
		return nil
	}
	result := make([]Entry, n)
	for i := 0; i < n; i++ {
		result[i] = j.buf[(j.head-1-i+j.size)%j.size]
	}
	return result
}

// Len returns the number of entries held.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.count
}
