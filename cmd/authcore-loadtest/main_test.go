package main

import (
	"math/rand"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(samples, 50); got != 5 {
		t.Fatalf("p50 = %v", got)
	}
	if got := percentile(samples, 100); got != 10 {
		t.Fatalf("p100 = %v", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty = %v", got)
	}
}

func TestRunPhaseCountsEveryOp(t *testing.T) {
	calls := make(chan struct{}, 100)
	stats := runPhase(100, 4, func(*rand.Rand) error {
		calls <- struct{}{}
		return nil
	})
	if stats.ops != 100 || len(calls) != 100 || stats.failures != 0 {
		t.Fatalf("stats = %+v calls = %d", stats, len(calls))
	}
}
