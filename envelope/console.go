package envelope

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// Sink receives one formatted line per diagnostic call made by a snippet.
type Sink interface {
	Log(line string)
}

// Recorder is a Sink that keeps every line in emission order and
// optionally mirrors it to an echo writer.
type Recorder struct {
	mu    sync.Mutex
	lines []string
	echo  io.Writer
}

// NewRecorder creates a Recorder. A nil echo suppresses live output.
func NewRecorder(echo io.Writer) *Recorder {
	return &Recorder{lines: []string{}, echo: echo}
}

// Log appends a line.
func (r *Recorder) Log(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if r.echo != nil {
		_, _ = fmt.Fprintln(r.echo, line)
	}
}

// Lines returns a copy of the captured lines.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// consoleMethods are all routed to the sink; level is not recorded.
var consoleMethods = []string{"log", "info", "debug", "warn", "error", "trace"}

// newConsole builds the console object injected into the snippet scope.
func newConsole(vm *goja.Runtime, fmtr *formatter, sink Sink) *goja.Object {
	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = fmtr.logString(arg)
		}
		sink.Log(strings.Join(parts, " "))
		return goja.Undefined()
	}
	for _, name := range consoleMethods {
		_ = console.Set(name, logFn)
	}
	return console
}

// formatter converts VM values to their canonical text form.
type formatter struct {
	vm        *goja.Runtime
	stringify goja.Callable
}

func newFormatter(vm *goja.Runtime) *formatter {
	f := &formatter{vm: vm}
	if jsonObj, ok := vm.Get("JSON").(*goja.Object); ok {
		f.stringify, _ = goja.AssertFunction(jsonObj.Get("stringify"))
	}
	return f
}

// isStructured reports whether v is a non-callable object.
func isStructured(v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	if !ok {
		return false
	}
	_, callable := goja.AssertFunction(obj)
	return !callable
}

// logString renders one console argument. Structured values use JSON;
// everything else uses String(). A value JSON cannot encode (cycles, BigInt)
// falls back to String().
func (f *formatter) logString(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	if isStructured(v) {
		if s, ok := f.json(v); ok {
			return s
		}
	}
	return plainString(v)
}

// plainString is String() with symbols shown as Symbol(description).
func plainString(v goja.Value) string {
	if sym, ok := v.(*goja.Symbol); ok {
		return "Symbol(" + sym.String() + ")"
	}
	return v.String()
}

// resultString renders an entry point's return value. Undefined and null
// yield nil.
func (f *formatter) resultString(v goja.Value) *string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	var s string
	if isStructured(v) {
		if js, ok := f.json(v); ok {
			s = js
		} else {
			s = v.String()
		}
	} else {
		s = plainString(v)
	}
	return &s
}

func (f *formatter) json(v goja.Value) (string, bool) {
	if f.stringify == nil {
		return "", false
	}
	out, err := f.stringify(goja.Undefined(), v)
	if err != nil || out == nil || goja.IsUndefined(out) {
		return "", false
	}
	return out.String(), true
}

// describe renders a thrown or rejected value as an error message.
func (f *formatter) describe(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if obj, ok := v.(*goja.Object); ok {
		// Error objects carry their own toString ("TypeError: x is not a function").
		if isErrorObject(obj) {
			return obj.String()
		}
		if s, ok := f.json(obj); ok {
			return s
		}
	}
	return plainString(v)
}

func isErrorObject(obj *goja.Object) bool {
	if obj.ClassName() == "Error" {
		return true
	}
	name := obj.Get("name")
	msg := obj.Get("message")
	return name != nil && msg != nil && !goja.IsUndefined(msg)
}
