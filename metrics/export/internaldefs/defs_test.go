package internaldefs

import (
	"strings"
	"testing"

	"github.com/MrEthical07/tokenauth"
)

func TestDefsCoverEveryMetric(t *testing.T) {
	seen := map[tokenauth.MetricID]bool{}
	names := map[string]bool{}
	for _, def := range CounterDefs {
		if seen[def.ID] || names[def.Name] {
			t.Fatalf("duplicate counter %s", def.Name)
		}
		if !strings.HasPrefix(def.Name, "tokenauth_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("unexpected counter name %s", def.Name)
		}
		seen[def.ID] = true
		names[def.Name] = true
	}
	for _, def := range HistogramDefs {
		seen[def.ID] = true
	}
	if !seen[tokenauth.MetricGateLatency] || !seen[tokenauth.MetricStoreUnavailable] {
		t.Fatal("missing metric definitions")
	}
	if len(HistogramUpperBounds)+1 != len(HistogramBounds) || len(HistogramBounds) != len(HistogramBoundSuffix) {
		t.Fatal("bucket tables disagree")
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}
