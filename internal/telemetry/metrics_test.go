package telemetry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karolberezicki/content-search-lucene/internal/query"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{0, BucketP10},
		{9 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{99 * time.Millisecond, BucketP100},
		{100 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		t.Run(tt.d.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, LatencyToBucket(tt.d))
		})
	}
}

func TestCircularBuffer_KeepsNewest(t *testing.T) {
	// Given: a buffer of three
	b := NewCircularBuffer[int](3)
	assert.Empty(t, b.Items())

	// When: five items are added
	for i := 1; i <= 5; i++ {
		b.Add(i)
	}

	// Then: the last three remain, oldest first
	assert.Equal(t, []int{3, 4, 5}, b.Items())
	assert.Equal(t, 3, b.Len())
}

func TestKindAndTerms(t *testing.T) {
	e := query.Group{Op: query.OpAnd, Children: []query.Expr{
		query.Field{Text: "River AND title:boats"},
		query.TermBoost{Expr: query.Fuzzy{Text: "harbour"}, Boost: 2},
		query.Category{Categories: []string{"news"}},
	}}

	assert.Equal(t, query.TypeGroup, Kind(e))
	assert.Equal(t, query.TypeFuzzy, Kind(query.Fuzzy{}))
	assert.Equal(t, []string{"river", "title", "boats", "harbour"}, Terms(e))
	assert.Empty(t, Terms(query.VirtualPath{Nodes: []string{"a"}}))
}

func TestMetrics_Record(t *testing.T) {
	// Given: a collector
	m := New(Config{})

	// When: recording hits, a miss, a repeat and a failure
	m.Record(Event{Expr: query.Field{Text: "river boats"}, Results: 3, Latency: time.Millisecond})
	m.Record(Event{Expr: query.Field{Text: "river boats"}, Results: 3, Latency: 20 * time.Millisecond})
	m.Record(Event{Expr: query.Fuzzy{Text: "zebra"}, Results: 0})
	m.Record(Event{Expr: query.Field{Text: "broken"}, Failed: true})

	// Then: the snapshot reflects every search
	s := m.Snapshot()
	assert.EqualValues(t, 4, s.Total)
	assert.EqualValues(t, 1, s.Failed)
	assert.EqualValues(t, 1, s.ZeroResults)
	assert.EqualValues(t, 1, s.Repeats)
	assert.EqualValues(t, 3, s.Kinds[query.TypeField])
	assert.EqualValues(t, 1, s.Kinds[query.TypeFuzzy])
	assert.EqualValues(t, 3, s.Latency[BucketP10])
	assert.EqualValues(t, 1, s.Latency[BucketP50])
	assert.Equal(t, []string{"fuzzy:zebra"}, s.RecentMisses)
	assert.InDelta(t, 25.0, s.ZeroResultPercentage(), 0.001)

	require.Len(t, s.TopTerms, 3)
	assert.Equal(t, TermCount{Term: "boats", Count: 2}, s.TopTerms[0])
	assert.Equal(t, TermCount{Term: "river", Count: 2}, s.TopTerms[1])
	assert.Equal(t, "zebra", s.TopTerms[2].Term)
}

func TestMetrics_TopTermsReportedCap(t *testing.T) {
	m := New(Config{TopTermsReported: 2})
	for i := 0; i < 5; i++ {
		m.Record(Event{Expr: query.Field{Text: fmt.Sprintf("term%d", i)}, Results: 1})
	}
	assert.Len(t, m.Snapshot().TopTerms, 2)
}

func TestMetrics_ConcurrentRecord(t *testing.T) {
	m := New(DefaultConfig())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Record(Event{Expr: query.Field{Text: "shared"}, Results: j % 2})
			}
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	assert.EqualValues(t, 400, s.Total)
	assert.EqualValues(t, 200, s.ZeroResults)
	assert.Len(t, s.RecentMisses, DefaultConfig().ZeroResultsCapacity)
}

func TestSnapshot_ZeroTotal(t *testing.T) {
	assert.Zero(t, Snapshot{}.ZeroResultPercentage())
}
