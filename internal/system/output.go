package system

import (
	"time"

	coresys "github.com/l1jgo/pathd/internal/core/system"
	"github.com/l1jgo/pathd/internal/net"
)

// OutputSystem hands every buffered response to its session writer. Phase 3.
type OutputSystem struct {
	store *net.SessionStore
}

func NewOutputSystem(store *net.SessionStore) *OutputSystem {
	return &OutputSystem{store: store}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}
