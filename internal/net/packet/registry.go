package packet

import (
	"fmt"

	"go.uber.org/zap"
)

// HandlerFunc is the callback signature for message handlers.
// The session is passed as an opaque interface to avoid import cycles.
type HandlerFunc func(sess any, r *Reader)

// Registry maps message types to handlers.
type Registry struct {
	handlers map[string]HandlerFunc
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
		log:      log,
	}
}

// Register maps a message type to a handler, replacing any previous one.
func (reg *Registry) Register(typ string, fn HandlerFunc) {
	reg.handlers[typ] = fn
}

// Has reports whether a handler exists for typ.
func (reg *Registry) Has(typ string) bool {
	_, ok := reg.handlers[typ]
	return ok
}

// Dispatch decodes one line and calls its handler. Lines that are not an
// envelope return an error wrapping ErrMalformed; unknown types are ignored.
func (reg *Registry) Dispatch(sess any, line []byte) error {
	r, err := NewReader(line)
	if err != nil {
		return err
	}
	reg.log.Debug("收到訊息",
		zap.String("type", r.Type()),
		zap.Int("size", r.Len()),
	)

	fn, ok := reg.handlers[r.Type()]
	if !ok {
		reg.log.Debug("未知訊息類型", zap.String("type", r.Type()))
		return nil
	}
	return reg.safeCall(fn, sess, r)
}

// safeCall executes a handler with panic recovery so a single bad message
// cannot take down the path worker.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, r *Reader) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("處理器 panic 已恢復",
				zap.String("type", r.Type()),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for %s: %v", r.Type(), rec)
		}
	}()
	fn(sess, r)
	return nil
}
