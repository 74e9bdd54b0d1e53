// Package telemetry keeps in-process search metrics: expression kinds,
// latency distribution, recent zero-result queries and frequent terms.
// Nothing leaves the process; the counters reset on restart.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/karolberezicki/content-search-lucene/internal/query"
)

// LatencyBucket is one bar of the latency histogram.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// Buckets lists the histogram bars in ascending order.
var Buckets = []LatencyBucket{BucketP10, BucketP50, BucketP100, BucketP500, BucketP1000}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// Event is one finished search.
type Event struct {
	Expr    query.Expr
	Results int
	Latency time.Duration
	Failed  bool
}

// CircularBuffer is a fixed-capacity FIFO; the oldest item is overwritten
// when full. It is not safe for concurrent use on its own.
type CircularBuffer[T any] struct {
	items []T
	head  int
	size  int
}

// NewCircularBuffer creates a buffer. A non-positive capacity means 100.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity)}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.items[b.head] = item
	b.head = (b.head + 1) % len(b.items)
	if b.size < len(b.items) {
		b.size++
	}
}

// Items returns the buffered items, oldest first.
func (b *CircularBuffer[T]) Items() []T {
	out := make([]T, b.size)
	if b.size < len(b.items) {
		copy(out, b.items[:b.size])
		return out
	}
	n := copy(out, b.items[b.head:])
	copy(out[n:], b.items[:b.head])
	return out
}

// Len returns the number of buffered items.
func (b *CircularBuffer[T]) Len() int { return b.size }

// Kind names the top-level variant of e by its wire tag.
func Kind(e query.Expr) string {
	switch e.(type) {
	case query.Field:
		return query.TypeField
	case query.Range:
		return query.TypeRange
	case query.Proximity:
		return query.TypeProximity
	case query.Fuzzy:
		return query.TypeFuzzy
	case query.TermBoost:
		return query.TypeTermBoost
	case query.Group:
		return query.TypeGroup
	case query.Category:
		return query.TypeCategory
	case query.ACL:
		return query.TypeACL
	case query.VirtualPath:
		return query.TypeVirtualPath
	case query.ItemStatus:
		return query.TypeItemStatus
	default:
		return "unknown"
	}
}

// Terms collects the lowercased free-text words of e, skipping words
// shorter than three characters and query syntax.
func Terms(e query.Expr) []string {
	var out []string
	var walk func(query.Expr)
	walk = func(e query.Expr) {
		switch v := e.(type) {
		case query.Field:
			out = appendWords(out, v.Text)
		case query.Proximity:
			out = appendWords(out, v.Text)
		case query.Fuzzy:
			out = appendWords(out, v.Text)
		case query.TermBoost:
			walk(v.Expr)
		case query.Group:
			for _, c := range v.Children {
				walk(c)
			}
		}
	}
	walk(e)
	return out
}

func appendWords(out []string, text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r > 127)
	})
	for _, w := range words {
		if len(w) >= 3 && w != "and" && w != "not" {
			out = append(out, w)
		}
	}
	return out
}

// TermCount is a term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a copy of the counters.
type Snapshot struct {
	Total        int64                   `json:"total"`
	Failed       int64                   `json:"failed"`
	ZeroResults  int64                   `json:"zeroResults"`
	Repeats      int64                   `json:"repeats"`
	Kinds        map[string]int64        `json:"kinds"`
	Latency      map[LatencyBucket]int64 `json:"latency"`
	TopTerms     []TermCount             `json:"topTerms"`
	RecentMisses []string                `json:"recentMisses"`
	Since        time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of searches with no hits.
func (s Snapshot) ZeroResultPercentage() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.ZeroResults) / float64(s.Total) * 100
}

// Config sizes the bounded collections.
type Config struct {
	TopTermsCapacity      int
	ZeroResultsCapacity   int
	RecentQueriesCapacity int
	TopTermsReported      int
}

// DefaultConfig returns the sizes used by the service.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   20,
		RecentQueriesCapacity: 500,
		TopTermsReported:      10,
	}
}

// Metrics is safe for concurrent use.
type Metrics struct {
	mu sync.Mutex

	cfg         Config
	total       int64
	failed      int64
	zeroResults int64
	repeats     int64
	kinds       map[string]int64
	latency     map[LatencyBucket]int64
	topTerms    *lru.Cache[string, int64]
	recent      *lru.Cache[string, struct{}]
	misses      *CircularBuffer[string]
	since       time.Time
}

// New creates an empty collector. Zero sizes take their defaults.
func New(cfg Config) *Metrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}
	if cfg.TopTermsReported <= 0 {
		cfg.TopTermsReported = def.TopTermsReported
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)
	return &Metrics{
		cfg:      cfg,
		kinds:    make(map[string]int64),
		latency:  make(map[LatencyBucket]int64),
		topTerms: topTerms,
		recent:   recent,
		misses:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		since:    time.Now(),
	}
}

// Record counts one search.
func (m *Metrics) Record(ev Event) {
	kind := Kind(ev.Expr)
	terms := Terms(ev.Expr)
	summary := kind
	if len(terms) > 0 {
		summary += ":" + strings.Join(terms, " ")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.kinds[kind]++
	m.latency[LatencyToBucket(ev.Latency)]++
	if ev.Failed {
		m.failed++
		return
	}

	for _, t := range terms {
		n, _ := m.topTerms.Get(t)
		m.topTerms.Add(t, n+1)
	}
	if ev.Results == 0 {
		m.zeroResults++
		m.misses.Add(summary)
	}

	key := hashSummary(summary)
	if _, ok := m.recent.Get(key); ok {
		m.repeats++
	}
	m.recent.Add(key, struct{}{})
}

func hashSummary(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}

// Snapshot copies the counters. Top terms are ordered by count, then term.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Total:        m.total,
		Failed:       m.failed,
		ZeroResults:  m.zeroResults,
		Repeats:      m.repeats,
		Kinds:        make(map[string]int64, len(m.kinds)),
		Latency:      make(map[LatencyBucket]int64, len(m.latency)),
		RecentMisses: m.misses.Items(),
		Since:        m.since,
	}
	for k, v := range m.kinds {
		s.Kinds[k] = v
	}
	for k, v := range m.latency {
		s.Latency[k] = v
	}
	for _, term := range m.topTerms.Keys() {
		if n, ok := m.topTerms.Peek(term); ok {
			s.TopTerms = append(s.TopTerms, TermCount{Term: term, Count: n})
		}
	}
	sort.Slice(s.TopTerms, func(i, j int) bool {
		if s.TopTerms[i].Count != s.TopTerms[j].Count {
			return s.TopTerms[i].Count > s.TopTerms[j].Count
		}
		return s.TopTerms[i].Term < s.TopTerms[j].Term
	})
	if len(s.TopTerms) > m.cfg.TopTermsReported {
		s.TopTerms = s.TopTerms[:m.cfg.TopTermsReported]
	}
	return s
}
