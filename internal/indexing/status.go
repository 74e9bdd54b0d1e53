package indexing

import (
	"sync"
	"time"
)

// DrainState is the state of the queue drainer.
type DrainState string

const (
	// StateIdle means no drain is running.
	StateIdle DrainState = "idle"
	// StateDraining means a drain is in progress.
	StateDraining DrainState = "draining"
)

// ProgressSnapshot is an immutable copy of drain progress.
type ProgressSnapshot struct {
	State          DrainState `json:"state"`
	DrainID        string     `json:"drainId,omitempty"`
	EntriesTotal   int        `json:"entriesTotal"`
	Processed      int        `json:"processed"`
	Failed         int        `json:"failed"`
	ProgressPct    float64    `json:"progressPct"`
	ElapsedSeconds int        `json:"elapsedSeconds"`
	LastError      string     `json:"lastError,omitempty"`
	LastDrainAt    time.Time  `json:"lastDrainAt,omitempty"`
}

// Progress tracks the current or most recent drain. It is safe for
// concurrent use by the lanes of one drain and by status readers.
type Progress struct {
	mu sync.RWMutex

	state     DrainState
	drainID   string
	total     int
	processed int
	failed    int
	startTime time.Time
	finished  time.Time
	lastError string
}

// NewProgress creates an idle tracker.
func NewProgress() *Progress {
	return &Progress{state: StateIdle}
}

func (p *Progress) start(drainID string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = StateDraining
	p.drainID = drainID
	p.total = total
	p.processed = 0
	p.failed = 0
	p.lastError = ""
	p.startTime = time.Now()
}

func (p *Progress) entryDone() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed++
}

func (p *Progress) entryFailed(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed++
	p.lastError = err.Error()
}

func (p *Progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateIdle
	p.finished = time.Now()
}

// Snapshot returns the current progress.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	if p.total > 0 {
		pct = float64(p.processed) / float64(p.total) * 100.0
	}

	var elapsed time.Duration
	switch {
	case p.state == StateDraining:
		elapsed = time.Since(p.startTime)
	case !p.finished.IsZero():
		elapsed = p.finished.Sub(p.startTime)
	}

	return ProgressSnapshot{
		State:          p.state,
		DrainID:        p.drainID,
		EntriesTotal:   p.total,
		Processed:      p.processed,
		Failed:         p.failed,
		ProgressPct:    pct,
		ElapsedSeconds: int(elapsed.Seconds()),
		LastError:      p.lastError,
		LastDrainAt:    p.finished,
	}
}
