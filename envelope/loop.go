package envelope

import (
	"context"
	"errors"
	"time"

	"github.com/dop251/goja"
)

// errNeverSettled is reported when an awaited value cannot make progress.
var errNeverSettled = errors.New("entry point returned a promise that never settled")

type timer struct {
	id       int64
	due      time.Time
	interval time.Duration
	repeat   bool
	fn       goja.Callable
	args     []goja.Value
}

// loop is a cooperative timer queue. Promise jobs are drained by the VM
// whenever control returns to Go, so only timers need explicit scheduling.
type loop struct {
	vm     *goja.Runtime
	timers map[int64]*timer
	nextID int64
}

func newLoop(vm *goja.Runtime) *loop {
	return &loop{vm: vm, timers: make(map[int64]*timer)}
}

func (l *loop) install() {
	_ = l.vm.Set("setTimeout", l.schedule(false))
	_ = l.vm.Set("setInterval", l.schedule(true))
	_ = l.vm.Set("clearTimeout", l.clear)
	_ = l.vm.Set("clearInterval", l.clear)
}

func (l *loop) schedule(repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(l.vm.NewTypeError("callback is not a function"))
		}
		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
		if delay < 0 {
			delay = 0
		}
		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}
		return l.vm.ToValue(l.add(fn, delay, repeat, args))
	}
}

func (l *loop) add(fn goja.Callable, delay time.Duration, repeat bool, args []goja.Value) int64 {
	l.nextID++
	l.timers[l.nextID] = &timer{
		id:       l.nextID,
		due:      time.Now().Add(delay),
		interval: delay,
		repeat:   repeat,
		fn:       fn,
		args:     args,
	}
	return l.nextID
}

func (l *loop) clear(call goja.FunctionCall) goja.Value {
	delete(l.timers, call.Argument(0).ToInteger())
	return goja.Undefined()
}

// next returns the earliest due timer, ties broken by creation order.
func (l *loop) next() *timer {
	var best *timer
	for _, t := range l.timers {
		if best == nil || t.due.Before(best.due) || (t.due.Equal(best.due) && t.id < best.id) {
			best = t
		}
	}
	return best
}

// runOne waits for the next timer and fires it. It returns false when no
// timers remain.
func (l *loop) runOne(ctx context.Context) (bool, error) {
	t := l.next()
	if t == nil {
		return false, nil
	}
	if wait := time.Until(t.due); wait > 0 {
		tm := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			tm.Stop()
			return true, ctx.Err()
		case <-tm.C:
		}
	}
	if t.repeat {
		t.due = time.Now().Add(max(t.interval, time.Millisecond))
	} else {
		delete(l.timers, t.id)
	}
	_, err := t.fn(goja.Undefined(), t.args...)
	return true, err
}

// settlement tracks the outcome of an awaited value.
type settlement struct {
	done     bool
	value    goja.Value
	rejected bool
	reason   goja.Value
}

// await resolves v. Any object exposing a callable then is treated as
// awaitable; everything else is already settled.
func (l *loop) await(ctx context.Context, v goja.Value) (*settlement, error) {
	s := &settlement{}
	obj, ok := v.(*goja.Object)
	if !ok {
		s.done, s.value = true, v
		return s, nil
	}
	thenVal := obj.Get("then")
	then, callable := goja.AssertFunction(thenVal)
	if thenVal == nil || !callable {
		s.done, s.value = true, v
		return s, nil
	}

	onFulfilled := l.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if !s.done {
			s.done, s.value = true, call.Argument(0)
		}
		return goja.Undefined()
	})
	onRejected := l.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if !s.done {
			s.done, s.rejected, s.reason = true, true, call.Argument(0)
		}
		return goja.Undefined()
	})
	if _, err := then(obj, onFulfilled, onRejected); err != nil {
		return nil, err
	}

	for !s.done {
		ran, err := l.runOne(ctx)
		if err != nil {
			return nil, err
		}
		if !ran {
			return nil, errNeverSettled
		}
	}

	// A thenable may resolve with another thenable.
	if !s.rejected {
		if inner, ok := s.value.(*goja.Object); ok && inner != obj {
			if _, callable := goja.AssertFunction(inner.Get("then")); callable {
				return l.await(ctx, inner)
			}
		}
	}
	return s, nil
}
