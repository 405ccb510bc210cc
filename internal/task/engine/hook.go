package engine

import (
	"errors"

	rtsup "cronpump/internal/runtime/supervisor"
	logx "cronpump/pkg/logx"
)

// OnUnhandledError replaces the hook that receives task panics and rule
// evaluation failures. nil restores the default, which logs the error
// (rate limited) and carries on. The hook may be called concurrently.
func (s *Service) OnUnhandledError(fn func(error)) {
	if fn == nil {
		s.hook.Store(nil)
		return
	}
	s.hook.Store(&fn)
}

// Report routes err to the unhandled-error hook. A panicking hook is
// recovered and logged so it cannot take the caller down with it.
func (s *Service) Report(err error) {
	if err == nil {
		return
	}
	fn := s.hook.Load()
	if fn == nil {
		s.logUnhandled(err)
		return
	}
	defer func() {
		if p := rtsup.Recover("error-hook", recover()); p != nil {
			s.log.Error("unhandled-error hook panicked", logx.Any("panic", p.Value), logx.Stack(p.Stack), logx.Err(err))
		}
	}()
	(*fn)(err)
}

func (s *Service) logUnhandled(err error) {
	if !s.limiter.Allow() {
		s.suppressed.Add(1)
		return
	}
	fields := []logx.Field{logx.Err(err)}
	if n := s.suppressed.Swap(0); n > 0 {
		fields = append(fields, logx.Uint64("suppressed", n))
	}
	var pan *PanicError
	if errors.As(err, &pan) {
		fields = append(fields, logx.Stack(pan.Stack))
	}
	s.log.Error("unhandled scheduled task error", fields...)
}
