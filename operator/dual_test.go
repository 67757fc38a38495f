package operator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langhuihui/rxcraft/stream"
	"github.com/langhuihui/rxcraft/testutil"
)

// after emits a single value after the delay, then completes
func after(loop *stream.Loop, d time.Duration, v any) stream.Producer {
	return func(s *stream.Sink) {
		timer := loop.After(d, func() {
			s.Next(v)
			s.Complete()
		})
		s.OnTeardown(timer.Stop)
	}
}

// never stays silent until cancelled
func never() stream.Producer {
	return func(*stream.Sink) {}
}

// completed completes immediately without emitting
func completed() stream.Producer {
	return func(s *stream.Sink) { s.Complete() }
}

func TestTakeUntilCutsPrimaryOnNotifierEmission(t *testing.T) {
	f, loop, clock := newTestFactory(t)

	p, err := f.Build(opNode("tu", SubtypeTakeUntil, nil), []stream.Producer{
		ticker(loop, 100*time.Millisecond),
		after(loop, 250*time.Millisecond, "stop"),
	})
	require.NoError(t, err)

	c, _ := testutil.Subscribe(t, loop, p)
	clock.Advance(time.Second)

	assert.Equal(t, []any{0, 1}, c.Values)
	assert.Equal(t, 1, c.Completes)
}

func TestTakeUntilSynchronousNotifierBlocksEverything(t *testing.T) {
	f, loop, _ := newTestFactory(t)

	p, err := f.Build(opNode("tu", SubtypeTakeUntil, nil), []stream.Producer{
		values(1, 2, 3),
		values("now"),
	})
	require.NoError(t, err)

	c, _ := testutil.Subscribe(t, loop, p)
	assert.Empty(t, c.Values)
	assert.Equal(t, 1, c.Completes)
}

func TestTakeUntilSilentNotifierCompletionIsIgnored(t *testing.T) {
	f, loop, clock := newTestFactory(t)

	p, err := f.Build(opNode("tu", SubtypeTakeUntil, nil), []stream.Producer{
		ticker(loop, 100*time.Millisecond),
		completed(),
	})
	require.NoError(t, err)

	c, _ := testutil.Subscribe(t, loop, p)
	clock.Advance(350 * time.Millisecond)

	assert.Equal(t, []any{0, 1, 2}, c.Values)
	assert.Zero(t, c.Completes)
}

func TestSkipUntilGateOpensOnNotifierEmission(t *testing.T) {
	f, loop, clock := newTestFactory(t)

	p, err := f.Build(opNode("su", SubtypeSkipUntil, nil), []stream.Producer{
		ticker(loop, 100*time.Millisecond),
		after(loop, 250*time.Millisecond, "open"),
	})
	require.NoError(t, err)

	c, _ := testutil.Subscribe(t, loop, p)
	clock.Advance(500 * time.Millisecond)

	assert.Equal(t, []any{2, 3, 4}, c.Values)
}

func TestSkipUntilNeverOpensWithSilentNotifier(t *testing.T) {
	f, loop, clock := newTestFactory(t)

	p, err := f.Build(opNode("su", SubtypeSkipUntil, nil), []stream.Producer{
		ticker(loop, 100*time.Millisecond),
		never(),
	})
	require.NoError(t, err)

	c, _ := testutil.Subscribe(t, loop, p)
	clock.Advance(time.Second)

	assert.Empty(t, c.Values)
}

func TestZipPairsPositionally(t *testing.T) {
	f, loop, _ := newTestFactory(t)

	p, err := f.Build(opNode("z", SubtypeZip, nil), []stream.Producer{
		values(1, 2, 3),
		values("a", "b"),
	})
	require.NoError(t, err)

	c, _ := testutil.Subscribe(t, loop, p)

	require.Len(t, c.Values, 2)
	assert.Equal(t, []any{1, "a"}, c.Values[0])
	assert.Equal(t, []any{2, "b"}, c.Values[1])
	assert.Equal(t, 1, c.Completes, "exhausted side ends the pair stream")
}

func TestZipCompletesWhenShorterSideDrains(t *testing.T) {
	f, loop, _ := newTestFactory(t)

	p, err := f.Build(opNode("z", SubtypeZip, nil), []stream.Producer{
		values("a", "b"),
		values(1, 2, 3),
	})
	require.NoError(t, err)

	c, _ := testutil.Subscribe(t, loop, p)

	assert.Len(t, c.Values, 2)
	assert.Equal(t, 1, c.Completes)
}

func TestZipWithTimedSecondary(t *testing.T) {
	f, loop, clock := newTestFactory(t)

	p, err := f.Build(opNode("z", SubtypeZip, nil), []stream.Producer{
		values("x", "y", "z"),
		ticker(loop, 100*time.Millisecond),
	})
	require.NoError(t, err)

	c, _ := testutil.Subscribe(t, loop, p)
	assert.Empty(t, c.Values, "queued until the ticker catches up")

	clock.Advance(250 * time.Millisecond)
	require.Len(t, c.Values, 2)
	assert.Equal(t, []any{"x", 0}, c.Values[0])
	assert.Equal(t, []any{"y", 1}, c.Values[1])
}

func TestBufferFlushesBatchesOnNotifier(t *testing.T) {
	f, loop, clock := newTestFactory(t)

	p, err := f.Build(opNode("b", SubtypeBuffer, nil), []stream.Producer{
		ticker(loop, 100*time.Millisecond),
		ticker(loop, 230*time.Millisecond),
	})
	require.NoError(t, err)

	c, _ := testutil.Subscribe(t, loop, p)
	clock.Advance(470 * time.Millisecond)

	require.Len(t, c.Values, 2)
	assert.Equal(t, []any{0, 1}, c.Values[0])
	assert.Equal(t, []any{2, 3}, c.Values[1])
}

func TestBufferFlushesEmptyBatch(t *testing.T) {
	f, loop, clock := newTestFactory(t)

	p, err := f.Build(opNode("b", SubtypeBuffer, nil), []stream.Producer{
		ticker(loop, time.Second),
		ticker(loop, 50*time.Millisecond),
	})
	require.NoError(t, err)

	c, _ := testutil.Subscribe(t, loop, p)
	clock.Advance(60 * time.Millisecond)

	require.Len(t, c.Values, 1)
	assert.Equal(t, []any{}, c.Values[0])
}

func TestBufferFlushesPendingBatchOnPrimaryCompletion(t *testing.T) {
	f, loop, _ := newTestFactory(t)

	p, err := f.Build(opNode("b", SubtypeBuffer, nil), []stream.Producer{
		values(1, 2, 3),
		never(),
	})
	require.NoError(t, err)

	c, _ := testutil.Subscribe(t, loop, p)

	require.Len(t, c.Values, 1)
	assert.Equal(t, []any{1, 2, 3}, c.Values[0])
	assert.Equal(t, 1, c.Completes)
}

func TestDualBuildRequiresTwoUpstreams(t *testing.T) {
	f, _, _ := newTestFactory(t)
	for _, subtype := range []string{SubtypeTakeUntil, SubtypeSkipUntil, SubtypeZip, SubtypeBuffer, SubtypeSwitchMapTo} {
		_, err := f.Build(opNode("d", subtype, nil), []stream.Producer{values(1)})
		assert.Error(t, err, subtype)
	}
}
