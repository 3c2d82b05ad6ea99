package handler

import (
	"encoding/json"
	"math"
	"time"

	"github.com/l1jgo/pathd/internal/core/event"
	"github.com/l1jgo/pathd/internal/grid"
	"github.com/l1jgo/pathd/internal/net/packet"
	"github.com/l1jgo/pathd/internal/pathfind"
	"github.com/l1jgo/pathd/internal/scripting"
	"go.uber.org/zap"
)

// HandleFindPath runs one query to completion and answers with path_result.
// Every failure answers with a null path; the reason only reaches the logs,
// the metrics and the audit event.
func HandleFindPath(sess Responder, r *packet.Reader, deps *Deps) {
	var msg packet.FindPath
	if err := r.Decode(&msg); err != nil {
		deps.Metrics.Malformed(packet.TypeFindPath)
		deps.FailLog.Warn("find_path 解碼失敗", zap.Error(err))
		// still answer when the request id survived, so the caller is not left waiting
		var idOnly packet.RequestIDOnly
		if r.Decode(&idOnly) == nil && len(idOnly.RequestID) > 0 {
			sendPathResult(sess, idOnly.RequestID, nil)
		}
		return
	}

	q := pathfind.Query{
		StartX:        msg.StartX,
		StartZ:        msg.StartZ,
		GoalX:         msg.GoalX,
		GoalZ:         msg.GoalZ,
		MaxIterations: msg.MaxIterations,
		Mode: grid.Mode{
			IgnoreSlopes:    msg.IgnoreSlopes,
			IgnoreObstacles: msg.IgnoreObstacles,
		},
	}
	applyPolicy(&q, deps)

	started := time.Now()
	res := deps.Engine.FindPath(q)
	elapsed := time.Since(started)

	deps.Metrics.ObservePath(res, elapsed)
	if !res.Found() {
		deps.FailLog.Info("找不到路徑",
			zap.String("reason", res.Reason.String()),
			zap.String("mode", q.Mode.String()),
			zap.Float64("start_x", q.StartX),
			zap.Float64("start_z", q.StartZ),
			zap.Float64("goal_x", q.GoalX),
			zap.Float64("goal_z", q.GoalZ),
			zap.Int("iterations", res.Iterations),
		)
	}

	sendPathResult(sess, msg.RequestID, res.Path)

	event.Emit(deps.Bus, event.PathResolved{
		SessionID:  sess.SessionID(),
		RequestID:  requestIDString(msg.RequestID),
		StartX:     q.StartX,
		StartZ:     q.StartZ,
		GoalX:      q.GoalX,
		GoalZ:      q.GoalZ,
		Mode:       q.Mode.String(),
		Reason:     res.Reason.String(),
		Found:      res.Found(),
		Partial:    res.Partial,
		Iterations: res.Iterations,
		Waypoints:  len(res.Path),
		Duration:   elapsed,
		At:         started,
	})
}

// applyPolicy lets the Lua policy tune the query. Positive overrides win.
func applyPolicy(q *pathfind.Query, deps *Deps) {
	if deps.Policy == nil {
		return
	}
	o, ok := deps.Policy.Policy(scripting.PolicyQuery{
		StartX:          q.StartX,
		StartZ:          q.StartZ,
		GoalX:           q.GoalX,
		GoalZ:           q.GoalZ,
		Distance:        math.Hypot(q.GoalX-q.StartX, q.GoalZ-q.StartZ),
		MaxIterations:   q.MaxIterations,
		IgnoreSlopes:    q.Mode.IgnoreSlopes,
		IgnoreObstacles: q.Mode.IgnoreObstacles,
		Chunks:          deps.Grid.Len(),
	})
	if !ok {
		return
	}
	if o.MaxIterations > 0 {
		q.MaxIterations = o.MaxIterations
	}
	if o.SnapRadius > 0 {
		q.SnapRadius = o.SnapRadius
	}
	if o.PartialMinGain > 0 {
		q.PartialMinGain = o.PartialMinGain
	}
}

// requestIDString unquotes string ids and keeps any other JSON value as text.
func requestIDString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

func sendPathResult(sess Responder, requestID json.RawMessage, path []pathfind.Waypoint) {
	out := packet.PathResult{RequestID: requestID}
	if path != nil {
		out.Path = make([]packet.Point, len(path))
		for i, w := range path {
			out.Path[i] = packet.Point{X: w.X, Z: w.Z}
		}
	}
	sess.Send(packet.MustEncode(packet.TypePathResult, out))
}
