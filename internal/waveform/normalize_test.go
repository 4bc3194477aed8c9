package waveform

import (
	"errors"
	"testing"
	"time"

	"github.com/Sonified/seisstream/internal/errs"
)

const testRate = 100.0

func mkTrace(startOffset time.Duration, samples []int32) Trace {
	base := time.Date(2025, 10, 24, 0, 0, 0, 0, time.UTC)
	return Trace{Start: base.Add(startOffset), Samples: samples}
}

func TestNormalizeContiguousNoGaps(t *testing.T) {
	base := time.Date(2025, 10, 24, 0, 0, 0, 0, time.UTC)
	samples := make([]int32, 200) // 2 seconds at 100Hz
	for i := range samples {
		samples[i] = int32(i)
	}
	traces := []Trace{mkTrace(0, samples)}

	out, gaps, cov, err := Normalize(base, base.Add(2*time.Second), traces, testRate)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(gaps) != 0 {
		t.Fatalf("expected no gaps, got %d", len(gaps))
	}
	if len(out) != 200 {
		t.Fatalf("len(out) = %d, want 200", len(out))
	}
	if cov.Samples != 200 {
		t.Fatalf("cov.Samples = %d, want 200", cov.Samples)
	}
}

func TestNormalizeDetectsAndFillsGap(t *testing.T) {
	base := time.Date(2025, 10, 24, 0, 0, 0, 0, time.UTC)
	first := make([]int32, 100) // second 0
	second := make([]int32, 100)
	for i := range second {
		second[i] = 1000
	}
	traces := []Trace{
		mkTrace(0, first),
		mkTrace(2*time.Second, second), // gap: second 1 missing
	}

	out, gaps, cov, err := Normalize(base, base.Add(3*time.Second), traces, testRate)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(gaps) != 1 {
		t.Fatalf("expected 1 gap, got %d: %+v", len(gaps), gaps)
	}
	if gaps[0].SamplesFilled != 100 {
		t.Fatalf("SamplesFilled = %d, want 100", gaps[0].SamplesFilled)
	}
	if cov.Samples != 300 {
		t.Fatalf("cov.Samples = %d, want 300", cov.Samples)
	}
	if len(out) != 300 {
		t.Fatalf("len(out) = %d, want 300", len(out))
	}
}

func TestNormalizeAllGapProducesSyntheticGap(t *testing.T) {
	base := time.Date(2025, 10, 24, 0, 0, 0, 0, time.UTC)
	out, gaps, cov, err := Normalize(base, base.Add(10*time.Minute), nil, testRate)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(gaps) != 1 {
		t.Fatalf("expected exactly one synthetic gap, got %d", len(gaps))
	}
	wantSamples := int64(600 * testRate)
	if cov.Samples != wantSamples {
		t.Fatalf("cov.Samples = %d, want %d", cov.Samples, wantSamples)
	}
	if int64(len(out)) != wantSamples {
		t.Fatalf("len(out) = %d, want %d", len(out), wantSamples)
	}
}

func TestNormalizeZeroLengthAfterTrimIsNoUsableData(t *testing.T) {
	base := time.Date(2025, 10, 24, 0, 0, 0, 500_000_000, time.UTC)
	_, _, _, err := Normalize(base, base.Add(400*time.Millisecond), nil, testRate)
	var nud *errs.NoUsableData
	if !errors.As(err, &nud) {
		t.Fatalf("expected *errs.NoUsableData, got %v", err)
	}
}

func TestNormalizeDropsFullyContainedDuplicateTrace(t *testing.T) {
	base := time.Date(2025, 10, 24, 0, 0, 0, 0, time.UTC)
	full := make([]int32, 200)
	for i := range full {
		full[i] = int32(i)
	}
	dup := make([]int32, 50) // fully inside [0,200)
	for i := range dup {
		dup[i] = 999
	}
	traces := []Trace{
		mkTrace(0, full),
		mkTrace(500*time.Millisecond, dup),
	}

	out, gaps, _, err := Normalize(base, base.Add(2*time.Second), traces, testRate)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(gaps) != 0 {
		t.Fatalf("expected no gaps from a fully-contained duplicate, got %d", len(gaps))
	}
	for i, v := range out {
		if v != int32(i) {
			t.Fatalf("out[%d] = %d, want %d (duplicate trace should not have overwritten original data)", i, v, i)
		}
	}
}

func TestNormalizeTrimsTrailingPartialSecond(t *testing.T) {
	base := time.Date(2025, 10, 24, 0, 0, 0, 0, time.UTC)
	samples := make([]int32, 150) // 1.5 seconds
	traces := []Trace{mkTrace(0, samples)}

	out, _, cov, err := Normalize(base, base.Add(1500*time.Millisecond), traces, testRate)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cov.Samples != 100 {
		t.Fatalf("cov.Samples = %d, want 100 (trimmed to whole second)", cov.Samples)
	}
	if len(out) != 100 {
		t.Fatalf("len(out) = %d, want 100", len(out))
	}
}

// TestNormalizeTruncatesWhenTraceEndsBeforeRequestEnd covers the live
// leading-edge case: the archive has real data for only the first part of
// the requested window. Coverage.End must reflect that short real span
// (ladder.Builder turns a short Coverage into a partial trailing chunk) —
// Normalize must not fabricate flat filler samples out to requestEnd.
func TestNormalizeTruncatesWhenTraceEndsBeforeRequestEnd(t *testing.T) {
	base := time.Date(2025, 10, 24, 0, 0, 0, 0, time.UTC)
	samples := make([]int32, 300) // 3 seconds of real data
	for i := range samples {
		samples[i] = int32(i)
	}
	traces := []Trace{mkTrace(0, samples)}

	out, gaps, cov, err := Normalize(base, base.Add(10*time.Second), traces, testRate)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !cov.End.Equal(base.Add(3 * time.Second)) {
		t.Fatalf("cov.End = %v, want %v (truncated to last real sample, not extended to requestEnd)", cov.End, base.Add(3*time.Second))
	}
	if cov.Samples != 300 {
		t.Fatalf("cov.Samples = %d, want 300", cov.Samples)
	}
	if len(out) != 300 {
		t.Fatalf("len(out) = %d, want 300", len(out))
	}
	if len(gaps) != 0 {
		t.Fatalf("expected no gap for the uncovered tail (no post-gap sample to interpolate toward), got %d: %+v", len(gaps), gaps)
	}
}
