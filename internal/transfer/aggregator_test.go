package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePercent(t *testing.T) {
	tests := []struct {
		soFar, size int64
		want        int
	}{
		{0, 0, 100},
		{0, 10, 0},
		{5, 10, 50},
		{1, 3, 33},
		{2, 3, 67},
		{10, 10, 100},
		{15, 10, 100},
		{-1, 10, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, filePercent(tt.soFar, tt.size), "filePercent(%d, %d)", tt.soFar, tt.size)
	}
}

func TestAggregator_DeltasAndRollback(t *testing.T) {
	sink := &recordingSink{}
	clock := newFakeClock()
	agg := NewAggregator("run-1", sink, clock)

	a := Item{Kind: KindFile, RelativePath: "a", Size: 60}
	b := Item{Kind: KindFile, RelativePath: "b", Size: 40}
	agg.Begin(Queue{Items: []Item{a, b}, TotalFiles: 2, TotalBytes: 100})

	agg.OnBytes(a, 20)
	agg.OnBytes(a, 60)
	assert.Equal(t, int64(60), agg.Stats().TransferredBytes)

	agg.OnBytes(b, 30)
	assert.Equal(t, int64(90), agg.Stats().TransferredBytes)

	// b's attempt fails: its bytes are taken back.
	agg.Rollback(b)
	assert.Equal(t, int64(60), agg.Stats().TransferredBytes)

	agg.OnBytes(b, 40)
	stats := agg.OnTaskSettled(b, true)
	assert.Equal(t, int64(100), stats.TransferredBytes)
	assert.Equal(t, 1, stats.CompletedFiles)

	last := sink.lastProgress()
	assert.Equal(t, "run-1", last.RunID)
	assert.Equal(t, "b", last.Item.RelativePath)
	assert.Equal(t, 100, last.FilePercent)
	assert.InDelta(t, 100.0, last.TotalPercent, 0.001)
}

func TestAggregator_ClampsToTotal(t *testing.T) {
	agg := NewAggregator("r", nil, newFakeClock())
	item := Item{Kind: KindFile, RelativePath: "grew", Size: 10}
	agg.Begin(Queue{Items: []Item{item}, TotalFiles: 1, TotalBytes: 10})

	agg.OnBytes(item, 25)
	assert.Equal(t, int64(10), agg.Stats().TransferredBytes)
}

func TestAggregator_DirectoriesDoNotCount(t *testing.T) {
	agg := NewAggregator("r", nil, newFakeClock())
	dir := Item{Kind: KindDirectory, RelativePath: "d"}
	agg.Begin(Queue{Items: []Item{dir}, TotalDirectories: 1})

	stats := agg.OnTaskSettled(dir, false)
	assert.Equal(t, 0, stats.CompletedFiles)
	assert.Equal(t, 0, stats.FailedFiles)
}

func TestAggregator_FreezeDuration(t *testing.T) {
	clock := newFakeClock()
	agg := NewAggregator("r", nil, clock)
	agg.Begin(Queue{})
	clock.Advance(3 * time.Second)

	assert.Equal(t, 3*time.Second, agg.Freeze().Duration)
}

func TestAggregator_SmoothedRate(t *testing.T) {
	sink := &recordingSink{}
	clock := newFakeClock()
	agg := NewAggregator("r", sink, clock)
	item := Item{Kind: KindFile, RelativePath: "f", Size: 10000}
	agg.Begin(Queue{Items: []Item{item}, TotalFiles: 1, TotalBytes: 10000})

	clock.Advance(time.Second)
	agg.OnBytes(item, 1000)
	require.InDelta(t, 1000.0, sink.lastProgress().BytesPerSecond, 0.001)

	// Samples under 100ms apart do not move the rate.
	clock.Advance(10 * time.Millisecond)
	agg.OnBytes(item, 1500)
	require.InDelta(t, 1000.0, sink.lastProgress().BytesPerSecond, 0.001)

	clock.Advance(990 * time.Millisecond)
	agg.OnBytes(item, 4000)
	// instant = 3000 B/s, smoothed = 0.25*3000 + 0.75*1000
	assert.InDelta(t, 1500.0, sink.lastProgress().BytesPerSecond, 0.001)
}
