package system

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/l1jgo/pathd/internal/config"
	"github.com/l1jgo/pathd/internal/core/event"
	coresys "github.com/l1jgo/pathd/internal/core/system"
	"github.com/l1jgo/pathd/internal/data"
	"github.com/l1jgo/pathd/internal/grid"
	"github.com/l1jgo/pathd/internal/handler"
	"github.com/l1jgo/pathd/internal/net"
	"github.com/l1jgo/pathd/internal/net/packet"
	"github.com/l1jgo/pathd/internal/pathfind"
	"github.com/l1jgo/pathd/internal/persist"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeQueryLog struct {
	batches [][]persist.QueryLogRow
	err     error
}

func (f *fakeQueryLog) InsertBatch(_ context.Context, rows []persist.QueryLogRow) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]persist.QueryLogRow(nil), rows...))
	return nil
}

type fakeSnapshots struct {
	saves [][]string
	err   error
}

func (f *fakeSnapshots) SaveSnapshot(_ context.Context, _ grid.Geometry, chunks []*grid.Chunk) error {
	if f.err != nil {
		return f.err
	}
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, c.ID)
	}
	f.saves = append(f.saves, ids)
	return nil
}

func TestQueryLogFlushesEveryInterval(t *testing.T) {
	bus := event.NewBus()
	events := NewEventSystem(bus)
	writer := &fakeQueryLog{}
	qlog := NewQueryLogSystem(bus, writer, zap.NewNop(), 2)

	event.Emit(bus, event.PathResolved{SessionID: 1, RequestID: "a", Found: true, Waypoints: 3})
	event.Emit(bus, event.PathResolved{SessionID: 1, RequestID: "b", Found: true, Partial: true})
	event.Emit(bus, event.PathResolved{SessionID: 2, RequestID: "c", Reason: "no_path"})
	events.Update(0)
	assert.Equal(t, 3, qlog.Buffered())

	qlog.Update(0)
	assert.Empty(t, writer.batches, "first tick is below the interval")
	qlog.Update(0)
	require.Len(t, writer.batches, 1)
	assert.Zero(t, qlog.Buffered())

	rows := writer.batches[0]
	require.Len(t, rows, 3)
	assert.Equal(t, "found", rows[0].Outcome)
	assert.Equal(t, 3, rows[0].Waypoints)
	assert.Equal(t, "partial", rows[1].Outcome)
	assert.Equal(t, "no_path", rows[2].Outcome)
	assert.Equal(t, uint64(2), rows[2].SessionID)
}

func TestQueryLogKeepsRowsWhenWriteFails(t *testing.T) {
	bus := event.NewBus()
	writer := &fakeQueryLog{err: errors.New("db down")}
	qlog := NewQueryLogSystem(bus, writer, zap.NewNop(), 1)

	event.Emit(bus, event.PathResolved{RequestID: "x"})
	NewEventSystem(bus).Update(0)
	qlog.Update(0)
	assert.Equal(t, 1, qlog.Buffered())

	writer.err = nil
	qlog.Flush()
	assert.Zero(t, qlog.Buffered())
	require.Len(t, writer.batches, 1)
	assert.Equal(t, "x", writer.batches[0][0].RequestID)

	qlog.Flush()
	assert.Len(t, writer.batches, 1, "empty buffer writes nothing")
}

func TestSnapshotSavesOnlyWhenDirty(t *testing.T) {
	bus := event.NewBus()
	g := grid.NewRegistry(grid.Geometry{CellSize: 1, ChunkCells: 2, ChunkSpan: 2})
	writer := &fakeSnapshots{}
	snap := NewSnapshotSystem(bus, g, writer, zap.NewNop(), 1)

	snap.Update(0)
	assert.Empty(t, writer.saves)

	_, err := g.Register("0,0", grid.ChunkCoord{}, 0, 0, make([]byte, 4), 1)
	require.NoError(t, err)
	event.Emit(bus, event.ChunkChanged{ChunkID: "0,0", Op: event.ChunkRegistered, Version: 1})
	NewEventSystem(bus).Update(0)
	assert.True(t, snap.Dirty())

	writer.err = errors.New("db down")
	snap.Update(0)
	assert.True(t, snap.Dirty(), "a failed save stays dirty")

	writer.err = nil
	snap.Update(0)
	assert.False(t, snap.Dirty())
	require.Len(t, writer.saves, 1)
	assert.Equal(t, []string{"0,0"}, writer.saves[0])

	snap.Update(0)
	assert.Len(t, writer.saves, 1)
}

func TestSnapshotZeroIntervalOnlySavesOnDemand(t *testing.T) {
	bus := event.NewBus()
	g := grid.NewRegistry(grid.Geometry{CellSize: 1, ChunkCells: 2, ChunkSpan: 2})
	writer := &fakeSnapshots{}
	snap := NewSnapshotSystem(bus, g, writer, zap.NewNop(), 0)

	event.Emit(bus, event.ChunkChanged{ChunkID: "0,0", Op: event.ChunkUnregistered})
	NewEventSystem(bus).Update(0)
	for i := 0; i < 5; i++ {
		snap.Update(0)
	}
	assert.Empty(t, writer.saves)

	require.NoError(t, snap.SaveNow())
	assert.Equal(t, [][]string{{}}, writer.saves)
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestStatsSystemSamplesEveryInterval(t *testing.T) {
	g := grid.NewRegistry(grid.Geometry{CellSize: 1, ChunkCells: 2, ChunkSpan: 2})
	promReg := prometheus.NewRegistry()
	metrics := handler.NewMetrics(promReg)
	stats := NewStatsSystem(g, pathfind.NewEngine(g, pathfind.DefaultOptions()), net.NewSessionStore(), metrics, 3)

	_, err := g.Register("0,0", grid.ChunkCoord{}, 0, 0, make([]byte, 4), 1)
	require.NoError(t, err)

	stats.Update(0)
	stats.Update(0)
	assert.Zero(t, gaugeValue(t, promReg, "pathd_chunks_registered"))
	stats.Update(0)
	assert.Equal(t, 1.0, gaugeValue(t, promReg, "pathd_chunks_registered"))
	assert.Zero(t, gaugeValue(t, promReg, "pathd_sessions"))
}

// worker wires the same systems as the daemon around a WebSocket-only server.
type worker struct {
	server  *net.Server
	store   *net.SessionStore
	runner  *coresys.Runner
	deps    *handler.Deps
	qlog    *fakeQueryLog
	queries *QueryLogSystem
}

func newWorker(t *testing.T) *worker {
	t.Helper()
	cfg := config.Defaults()
	cfg.Grid = config.GridConfig{CellSize: 1, ChunkCells: 4, ChunkSpan: 4}
	cfg.Network.BindAddress = ""

	srv, err := net.NewServer(cfg.Network, zap.NewNop())
	require.NoError(t, err)

	g := grid.NewRegistry(grid.Geometry{CellSize: 1, ChunkCells: 4, ChunkSpan: 4})
	deps := &handler.Deps{
		Config:  cfg,
		Log:     zap.NewNop(),
		FailLog: zap.NewNop(),
		Grid:    g,
		Engine:  pathfind.NewEngine(g, pathfind.DefaultOptions()),
		Bus:     event.NewBus(),
		Metrics: handler.NewMetrics(prometheus.NewRegistry()),
	}
	reg := packet.NewRegistry(zap.NewNop())
	handler.RegisterAll(reg, deps)

	w := &worker{server: srv, store: net.NewSessionStore(), runner: coresys.NewRunner(), deps: deps, qlog: &fakeQueryLog{}}
	w.queries = NewQueryLogSystem(deps.Bus, w.qlog, zap.NewNop(), 1000)
	w.runner.Register(NewInputSystem(srv.NewSessions(), reg, w.store, deps.Metrics, 64, zap.NewNop(), zap.NewNop()))
	w.runner.Register(NewEventSystem(deps.Bus))
	w.runner.Register(NewOutputSystem(w.store))
	w.runner.Register(w.queries)
	return w
}

// run ticks the runner on its own goroutine until the returned stop is called.
func (w *worker) run() (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				w.runner.Tick(2 * time.Millisecond)
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func TestWorkerAnswersOverWebSocket(t *testing.T) {
	w := newWorker(t)
	httpSrv := httptest.NewServer(http.HandlerFunc(w.server.ServeWS))
	defer httpSrv.Close()
	defer w.server.Shutdown()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpSrv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	stop := w.run()
	stopped := false
	defer func() {
		if !stopped {
			stop()
		}
	}()

	flags, err := data.ParseRows([]string{"..#.", "..#.", "....", "..#."}, 4, data.GlyphWalkable)
	require.NoError(t, err)
	send := func(typ string, payload any) {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, packet.MustEncode(typ, payload)))
	}
	send(packet.TypeRegisterChunk, packet.RegisterChunk{ChunkX: 0, ChunkZ: 0, Flags: flags, Version: 1})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(packet.TypeFindPath, packet.FindPath{
		RequestID: json.RawMessage(`"q-1"`),
		StartX:    0.5, StartZ: 0.5,
		GoalX: 3.5, GoalZ: 0.5,
	})
	send(packet.TypeFindPath, packet.FindPath{
		RequestID: json.RawMessage(`2`),
		StartX:    0.5, StartZ: 0.5,
		GoalX: 40, GoalZ: 40,
	})

	read := func() (packet.Envelope, packet.PathResult) {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var env packet.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		var res packet.PathResult
		require.NoError(t, json.Unmarshal(env.Payload, &res))
		return env, res
	}

	env, first := read()
	assert.Equal(t, packet.TypePathResult, env.Type)
	assert.JSONEq(t, `"q-1"`, string(first.RequestID))
	require.NotEmpty(t, first.Path)
	assert.Equal(t, packet.Point{X: 0.5, Z: 0.5}, first.Path[0])
	assert.Equal(t, packet.Point{X: 3.5, Z: 0.5}, first.Path[len(first.Path)-1])

	_, second := read()
	assert.JSONEq(t, `2`, string(second.RequestID))
	assert.Nil(t, second.Path)

	stop()
	stopped = true

	snap := handler.Snapshot(w.deps, nil)
	assert.Equal(t, 1, snap.Chunks)
	assert.Equal(t, uint64(1), snap.Malformed)
	assert.Equal(t, uint64(2), snap.Messages[packet.TypeFindPath])
	assert.Equal(t, 1, w.store.Count())

	w.queries.Flush()
	require.Len(t, w.qlog.batches, 1)
	assert.Len(t, w.qlog.batches[0], 2)
}

func TestWorkerDropsClosedSessions(t *testing.T) {
	w := newWorker(t)
	httpSrv := httptest.NewServer(http.HandlerFunc(w.server.ServeWS))
	defer httpSrv.Close()
	defer w.server.Shutdown()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpSrv.URL, "http"), nil)
	require.NoError(t, err)

	sess := <-w.server.NewSessions()
	w.store.Add(sess)
	conn.Close()

	select {
	case <-sess.ReadDone():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not notice the disconnect")
	}
	w.runner.Tick(0)
	assert.Zero(t, w.store.Count())
}

func TestWorkerAppliesBurstSentBeforeDisconnect(t *testing.T) {
	w := newWorker(t)
	httpSrv := httptest.NewServer(http.HandlerFunc(w.server.ServeWS))
	defer httpSrv.Close()
	defer w.server.Shutdown()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpSrv.URL, "http"), nil)
	require.NoError(t, err)
	sess := <-w.server.NewSessions()
	w.store.Add(sess)

	// more than one tick's worth of messages for a single session
	const burst = 100
	flags := make([]byte, 16)
	for i := int32(0); i < burst; i++ {
		msg := packet.MustEncode(packet.TypeRegisterChunk, packet.RegisterChunk{ChunkX: i, ChunkZ: 0, Flags: flags, Version: 1})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))
	}
	conn.Close()

	select {
	case <-sess.ReadDone():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not notice the disconnect")
	}
	w.runner.Tick(0)

	assert.Equal(t, burst, w.deps.Grid.Len())
	assert.Zero(t, w.store.Count())
	assert.Empty(t, sess.InQueue)
}
