package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestDisabledRecordsNothing(t *testing.T) {
	m := New(false, true)
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricAuthorizeLatency, time.Millisecond)
	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("disabled metrics should not count")
	}
	if m.LatencyEnabled() {
		t.Fatal("latency requires metrics enabled")
	}
	var nilM *Metrics
	nilM.Inc(MetricLoginSuccess)
	if len(nilM.Snapshot().Counters) != 0 {
		t.Fatal("nil snapshot should be empty")
	}
}

func TestConcurrentInc(t *testing.T) {
	m := New(true, false)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()
	if got := m.Value(MetricRefreshSuccess); got != 8000 {
		t.Fatalf("expected 8000, got %d", got)
	}
	m.Inc(MetricIDCount)
}

func TestHistogramBuckets(t *testing.T) {
	m := New(true, true)
	for _, d := range []time.Duration{time.Millisecond, 7 * time.Millisecond, 2 * time.Second} {
		m.Observe(MetricAuthorizeLatency, d)
	}
	m.Observe(MetricLoginSuccess, time.Millisecond)

	snap := m.Snapshot()
	b := snap.Histograms[MetricAuthorizeLatency]
	if len(b) != HistBucketCount || b[0] != 1 || b[1] != 1 || b[7] != 1 {
		t.Fatalf("unexpected buckets %v", b)
	}
	if _, ok := snap.Counters[MetricAuthorizeLatency]; ok {
		t.Fatal("latency id is not a counter")
	}
}

func TestBucketIndexBounds(t *testing.T) {
	cases := map[time.Duration]int{
		0:                      0,
		5 * time.Millisecond:   0,
		6 * time.Millisecond:   1,
		25 * time.Millisecond:  2,
		100 * time.Millisecond: 4,
		500 * time.Millisecond: 6,
		time.Second:            7,
	}
	for d, want := range cases {
		if got := BucketIndex(d); got != want {
			t.Fatalf("BucketIndex(%s)=%d want %d", d, got, want)
		}
	}
}
