package handler

import (
	"github.com/l1jgo/pathd/internal/config"
	"github.com/l1jgo/pathd/internal/core/event"
	"github.com/l1jgo/pathd/internal/grid"
	"github.com/l1jgo/pathd/internal/net/packet"
	"github.com/l1jgo/pathd/internal/pathfind"
	"github.com/l1jgo/pathd/internal/scripting"
	"go.uber.org/zap"
)

// Responder is the part of a session a handler needs.
type Responder interface {
	Send(data []byte)
	SessionID() uint64
}

// Deps holds shared dependencies injected into all message handlers.
type Deps struct {
	Config  *config.Config
	Log     *zap.Logger
	FailLog *zap.Logger // throttled, for per-query failure diagnostics
	Grid    *grid.Registry
	Engine  *pathfind.Engine
	Policy  *scripting.Engine // nil when no policy script is configured
	Bus     *event.Bus
	Metrics *Metrics
}

// RegisterAll registers all message handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	route := func(typ string, fn func(Responder, *packet.Reader, *Deps)) {
		reg.Register(typ, func(sess any, r *packet.Reader) {
			deps.Metrics.Message(typ)
			fn(sess.(Responder), r, deps)
		})
	}

	// Registry mutations: no response
	route(packet.TypeRegisterChunk, HandleRegisterChunk)
	route(packet.TypeUnregisterChunk, HandleUnregisterChunk)
	route(packet.TypeUpdateChunk, HandleUpdateChunk)
	route(packet.TypeUpdateCells, HandleUpdateCells)

	// Queries
	route(packet.TypeFindPath, HandleFindPath)
	route(packet.TypeStats, HandleStats)
}
