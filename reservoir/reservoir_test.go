package reservoir

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func almostEqual(t *testing.T, want, got float64) {
	t.Helper()
	assert.InDelta(t, want, got, 1e-9)
}

// TestPercentiles pins the interpolation formula against the fixed
// five-sample distribution from the reference implementation.
func TestPercentiles(t *testing.T) {
	r := New(5, 0)
	for _, v := range []float64{5, 1, 3, 2, 4} {
		r.Push(v)
	}

	almostEqual(t, 4, r.GetPercentile(75))
	almostEqual(t, 3, r.GetPercentile(50))
	almostEqual(t, 1.002, r.GetPercentile(0.05))
	almostEqual(t, 4.004, r.GetPercentile(75.1))
}

// TestTimeWindowedPercentile pins the eviction-on-read behavior for a
// time-windowed reservoir: samples older than the window are excluded
// from percentile/statistics computation even though they remain
// stored. Timestamps are backdated directly (white-box) instead of
// sleeping in wallclock time, mirroring the timing the reference test
// achieves with a frozen, ticked clock.
func TestTimeWindowedPercentile(t *testing.T) {
	r := New(15, 60000)
	values := []float64{5, 15, 20, 35, 40, 50}
	start := time.Now()
	for i, v := range values {
		r.Push(v)
		// backdate so the gap between consecutive pushes is 10.001s,
		// and the read below happens 60.006s after the first push
		r.mu.Lock()
		r.samples[len(r.samples)-1].pushedAt = start.Add(time.Duration(float64(i)*10.001*float64(time.Second)) - 60006*time.Millisecond)
		r.mu.Unlock()
	}

	almostEqual(t, 35, r.GetPercentile(50))
}

// TestSizeReachesCapacity verifies the reservoir never stores more
// than its configured capacity.
func TestSizeReachesCapacity(t *testing.T) {
	r := New(5, 0)
	for i := 0; i < 50; i++ {
		r.Push(float64(i))
	}
	assert.Equal(t, 5, r.Size())
}

// TestReservoirSamplingIsUniform is a statistical pin on the random
// replacement policy: pushing a long stream cycling evenly through
// 0..999 should leave the reservoir full (200 samples) with a mean
// close to 499.5.
func TestReservoirSamplingIsUniform(t *testing.T) {
	r := New(200, 0)
	for i := 0; i < 200000; i++ {
		r.Push(float64(i % 1000))
	}
	stats := r.GetStatistics()
	assert.Equal(t, 200, stats.Count)
	assert.True(t, math.Abs(stats.Average-499.5) < 120, "mean %v far from expected ~499.5", stats.Average)
}

// TestSinglePercentileSample verifies the n=1 shortcut path.
func TestSinglePercentileSample(t *testing.T) {
	r := New(5, 0)
	r.Push(42)
	almostEqual(t, 42, r.GetPercentile(37))
}

func BenchmarkPush(b *testing.B) {
	r := New(168, 0)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		r.Push(float64(i % 2))
	}
}

func BenchmarkGetPercentile(b *testing.B) {
	r := New(168, 0)
	for i := 0; i < 168; i++ {
		r.Push(float64(i))
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.GetPercentile(50)
	}
}
