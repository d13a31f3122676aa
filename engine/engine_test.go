package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var base = time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

func testEngine(windowSize uint32) *Engine {
	return NewEngine(Config{WindowSize: windowSize, MaxGap: 10000, ResetSlack: 1})
}

// feed processes one marker with a fixed 1ms travel time and arrivals spaced
// by sequence number.
func feed(e *Engine, src string, seq uint32) *WindowStats {
	sourceTS := base.Add(time.Duration(seq) * time.Millisecond)
	return e.Process(src, seq, sourceTS.Add(time.Millisecond), sourceTS)
}

func TestInOrderWindow(t *testing.T) {
	e := testEngine(5)

	for seq := uint32(1); seq < 5; seq++ {
		require.Nil(t, feed(e, "10.0.0.1", seq))
	}
	ws := feed(e, "10.0.0.1", 5)

	require.NotNil(t, ws)
	require.Equal(t, "10.0.0.1", ws.Source)
	require.Equal(t, uint32(0), ws.Group)
	require.Equal(t, uint32(5), ws.Packets)
	require.Equal(t, uint32(0), ws.Lost)
	require.Equal(t, uint32(0), ws.OutOfOrder)
	require.InDelta(t, 1000.0, ws.TravelAvgUs, 0.001)
	require.InDelta(t, 4.0, ws.WindowMs, 0.001)

	m := e.Metrics()
	require.Equal(t, uint64(5), m.Packets)
	require.Equal(t, 1, m.Flows)
	require.Equal(t, 0, m.Intervals)
	require.Equal(t, uint64(1), m.Flushes)
}

func TestReorderWithinWindow(t *testing.T) {
	e := testEngine(5)

	var ws *WindowStats
	for _, seq := range []uint32{1, 2, 4, 3, 5} {
		ws = feed(e, "10.0.0.2", seq)
	}

	require.NotNil(t, ws)
	require.Equal(t, uint32(5), ws.Packets)
	require.Equal(t, uint32(0), ws.Lost)
	require.Equal(t, uint32(1), ws.OutOfOrder)
	require.InDelta(t, 20.0, ws.OutOfOrderPct, 0.001)

	// same-group late arrival is not a cross-group reorder
	require.Empty(t, e.Reorders())
	require.Equal(t, 0, e.Metrics().Intervals)
}

func TestReorderAcrossWindows(t *testing.T) {
	e := testEngine(3)

	feed(e, "10.0.0.3", 1)
	feed(e, "10.0.0.3", 2)
	ws := feed(e, "10.0.0.3", 4)
	require.NotNil(t, ws)
	require.Equal(t, uint32(0), ws.Group)
	require.Equal(t, uint32(1), ws.Lost)

	// seq 3 arrives after its window was flushed
	require.Nil(t, feed(e, "10.0.0.3", 3))
	rs := e.Reorders()
	require.Equal(t, []Reorder{{"10.0.0.3", 0, 1}}, rs)

	feed(e, "10.0.0.3", 5)
	ws = feed(e, "10.0.0.3", 6)
	require.NotNil(t, ws)
	require.Equal(t, uint32(1), ws.Group)
	require.Equal(t, uint32(0), ws.Lost)
	require.Equal(t, uint32(1), ws.OutOfOrder)
}

func TestNewFlowSeeding(t *testing.T) {
	e := testEngine(10)

	// first observed packet implies 1..3 were lost
	require.Nil(t, feed(e, "10.0.0.4", 4))
	m := e.Metrics()
	require.Equal(t, 1, m.Intervals)
	require.Equal(t, uint64(1), m.GapsOpened)

	for _, seq := range []uint32{1, 2, 3} {
		feed(e, "10.0.0.4", seq)
	}
	require.Equal(t, 0, e.Metrics().Intervals)

	wss := e.FlushAll()
	require.Len(t, wss, 1)
	require.Equal(t, uint32(4), wss[0].Packets)
	require.Equal(t, uint32(0), wss[0].Lost)
	require.Equal(t, uint32(3), wss[0].OutOfOrder)
}

func TestGapRefillAnyOrder(t *testing.T) {
	e := testEngine(100)

	feed(e, "10.0.0.5", 1)
	feed(e, "10.0.0.5", 5)
	require.Equal(t, 1, e.Metrics().Intervals)

	for _, seq := range []uint32{4, 2, 3} {
		feed(e, "10.0.0.5", seq)
	}
	require.Equal(t, 0, e.Metrics().Intervals)

	wss := e.FlushAll()
	require.Len(t, wss, 1)
	require.Equal(t, uint32(5), wss[0].Packets)
	require.Equal(t, uint32(0), wss[0].Lost)
	require.Equal(t, uint32(3), wss[0].OutOfOrder)
}

func TestPathologicalGapDiscarded(t *testing.T) {
	e := testEngine(100)

	feed(e, "10.0.0.6", 1)
	feed(e, "10.0.0.6", 20000)

	m := e.Metrics()
	require.Equal(t, uint64(1), m.GapsDiscarded)
	require.Equal(t, uint64(0), m.GapsOpened)
	require.Equal(t, 0, m.Intervals)

	wss := e.FlushAll()
	require.Len(t, wss, 1)
	require.Equal(t, uint32(0), wss[0].Lost)
	require.Equal(t, uint32(2), wss[0].Packets)
}

func TestWraparound(t *testing.T) {
	e := testEngine(10000)

	var ws *WindowStats
	for seq := uint32(1); seq <= 10000; seq++ {
		ws = feed(e, "10.0.0.7", seq)
	}
	require.NotNil(t, ws)
	require.Equal(t, uint32(0), ws.Group)
	require.Equal(t, uint32(10000), ws.Packets)
	require.Equal(t, uint32(0), ws.Lost)

	// counter restart right at the window boundary: nothing to flush
	require.Nil(t, feed(e, "10.0.0.7", 1))
	require.Equal(t, uint64(1), e.Metrics().Wraparounds)

	// fresh window counts from the restart
	for seq := uint32(2); seq <= 10000; seq++ {
		ws = feed(e, "10.0.0.7", seq)
	}
	require.NotNil(t, ws)
	require.Equal(t, uint32(1), ws.Group)
	require.Equal(t, uint32(10000), ws.Packets)
	require.Equal(t, uint32(0), ws.Lost)
}

func TestWraparoundMidWindow(t *testing.T) {
	e := testEngine(5)

	for seq := uint32(1); seq <= 7; seq++ {
		feed(e, "10.0.0.8", seq)
	}

	// restart with two packets in the open window forces it closed
	ws := feed(e, "10.0.0.8", 1)
	require.NotNil(t, ws)
	require.Equal(t, uint32(1), ws.Group)
	require.Equal(t, uint32(2), ws.Packets)
	require.Equal(t, uint64(1), e.Metrics().Wraparounds)

	wss := e.FlushAll()
	require.Len(t, wss, 1)
	require.Equal(t, uint32(2), wss[0].Group)
	require.Equal(t, uint32(1), wss[0].Packets)
}

func TestWraparoundDeferredPurge(t *testing.T) {
	e := testEngine(5)

	for seq := uint32(1); seq <= 5; seq++ {
		feed(e, "10.0.0.9", seq)
	}
	// second window loses seq 8
	var ws *WindowStats
	for _, seq := range []uint32{6, 7, 9, 10, 11} {
		ws = feed(e, "10.0.0.9", seq)
	}
	require.NotNil(t, ws)
	require.Equal(t, uint32(1), ws.Lost)
	require.Equal(t, 1, e.Metrics().Intervals)

	// restart; the stale interval survives the wraparound itself
	require.Nil(t, feed(e, "10.0.0.9", 1))
	require.Equal(t, 1, e.Metrics().Intervals)

	// one full post-reset window later the stale interval is purged
	for _, seq := range []uint32{2, 3, 4, 5} {
		ws = feed(e, "10.0.0.9", seq)
	}
	require.NotNil(t, ws)
	require.Equal(t, uint32(2), ws.Group)
	require.Equal(t, uint32(0), ws.Lost)
	require.Equal(t, 0, e.Metrics().Intervals)
}

func TestMultipleFlows(t *testing.T) {
	e := testEngine(2)

	require.Nil(t, feed(e, "10.0.0.20", 1))
	require.Nil(t, feed(e, "10.0.0.10", 1))
	ws := feed(e, "10.0.0.20", 2)
	require.NotNil(t, ws)
	require.Equal(t, "10.0.0.20", ws.Source)

	require.Equal(t, 2, e.Metrics().Flows)

	// final flush follows flow creation order, skipping the empty window
	feed(e, "10.0.0.20", 3)
	wss := e.FlushAll()
	require.Len(t, wss, 2)
	require.Equal(t, "10.0.0.20", wss[0].Source)
	require.Equal(t, uint32(1), wss[0].Group)
	require.Equal(t, "10.0.0.10", wss[1].Source)
	require.Equal(t, uint32(0), wss[1].Group)
}

func TestFlushAllEmpty(t *testing.T) {
	e := testEngine(5)
	require.Empty(t, e.FlushAll())

	// a flow flushed exactly at the boundary has nothing left
	for seq := uint32(1); seq <= 5; seq++ {
		feed(e, "10.0.0.11", seq)
	}
	require.Empty(t, e.FlushAll())
}

func TestFlushEmptyWindow(t *testing.T) {
	e := testEngine(5)
	for seq := uint32(1); seq <= 5; seq++ {
		feed(e, "10.0.0.12", seq)
	}

	// forcing an empty window out yields a zero row, no NaN averages
	ws := e.flush(e.flows["10.0.0.12"])
	require.Equal(t, uint32(1), ws.Group)
	require.Equal(t, uint32(0), ws.Packets)
	require.Equal(t, uint32(0), ws.Lost)
	require.Equal(t, 0.0, ws.TravelAvgUs)
	require.Equal(t, 0.0, ws.WindowMs)

	// subsequent state is intact, the group counter just moved on
	var out *WindowStats
	for seq := uint32(6); seq <= 10; seq++ {
		out = feed(e, "10.0.0.12", seq)
	}
	require.NotNil(t, out)
	require.Equal(t, uint32(2), out.Group)
	require.Equal(t, uint32(5), out.Packets)
	require.Equal(t, uint32(0), out.Lost)
}

func TestReorderTable(t *testing.T) {
	var rt = newReorderTable()
	rt.add("a", 0)
	rt.add("b", 1)
	rt.add("a", 0)
	rt.add("a", 2)

	require.Equal(t, []Reorder{{"a", 0, 2}, {"b", 1, 1}, {"a", 2, 1}}, rt.snapshot())
}
