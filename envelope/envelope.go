// Package envelope runs one JavaScript snippet in an embedded VM and turns
// whatever it does into a single ExecutionResult.
//
// The snippet gets an injected console bound to a Sink, the invocation
// input parsed from JSON, CommonJS-style module/exports objects, and
// cooperative timers. After top-level evaluation the entry point is
// resolved (handler, then main, then the default export), called with the
// input, and awaited if the returned value is thenable.
package envelope

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dop251/goja"

	"github.com/pithecene-io/scriptrun/types"
)

// InputEnv is the environment variable carrying the invocation input.
const InputEnv = "INPUT_JSON"

// ShowLogsEnv enables live echo of captured diagnostics when set to "true" or "1".
const ShowLogsEnv = "SCRIPTRUN_SHOW_LOGS"

// ErrNoEntryPoint is the fault recorded when neither handler nor main resolves.
var ErrNoEntryPoint = errors.New("no entry point found: define handler(input) or main(input)")

// Options configures one run.
type Options struct {
	// Input is the raw JSON invocation input. Empty means {}.
	Input string
	// ShowLogs mirrors captured lines to Echo.
	ShowLogs bool
	// Echo receives mirrored lines. Defaults to os.Stderr.
	Echo io.Writer
	// Filename labels the snippet in stack traces.
	Filename string
}

// entryPoints in resolution order.
var entryPoints = []string{"handler", "main"}

// Run executes body and returns its result. It never panics; every fault
// inside the snippet is reported in the result's Error field.
func Run(ctx context.Context, body string, opts Options) (res types.ExecutionResult) {
	var sink *Recorder
	if opts.ShowLogs {
		echo := opts.Echo
		if echo == nil {
			echo = os.Stderr
		}
		sink = NewRecorder(echo)
	} else {
		sink = NewRecorder(nil)
	}

	defer func() {
		if r := recover(); r != nil {
			res = types.Failed(sink.Lines(), fmt.Sprintf("internal error: %v", r))
		}
	}()

	result, err := run(ctx, body, opts, sink)
	if err != nil {
		return types.Failed(sink.Lines(), err.Error())
	}
	return types.Succeeded(sink.Lines(), result)
}

func run(ctx context.Context, body string, opts Options, sink Sink) (*string, error) {
	vm := goja.New()
	fmtr := newFormatter(vm)
	lp := newLoop(vm)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	if err := vm.Set("console", newConsole(vm, fmtr, sink)); err != nil {
		return nil, err
	}
	lp.install()

	module := vm.NewObject()
	exports := vm.NewObject()
	_ = module.Set("exports", exports)
	_ = vm.Set("module", module)
	_ = vm.Set("exports", exports)

	input := parseInput(vm, opts.Input, sink)

	filename := opts.Filename
	if filename == "" {
		filename = "snippet.js"
	}
	if _, err := vm.RunScript(filename, body); err != nil {
		return nil, describeErr(ctx, fmtr, err)
	}

	entry, ok := resolveEntry(vm, module)
	if !ok {
		return nil, ErrNoEntryPoint
	}

	ret, err := entry(goja.Undefined(), input)
	if err != nil {
		return nil, describeErr(ctx, fmtr, err)
	}

	settled, err := lp.await(ctx, ret)
	if err != nil {
		return nil, describeErr(ctx, fmtr, err)
	}
	if settled.rejected {
		return nil, errors.New(fmtr.describe(settled.reason))
	}
	return fmtr.resultString(settled.value), nil
}

// parseInput decodes raw through the VM's own JSON.parse so the snippet sees
// native objects. Failures are logged and yield an empty object.
func parseInput(vm *goja.Runtime, raw string, sink Sink) goja.Value {
	if raw == "" {
		return vm.NewObject()
	}
	jsonObj, _ := vm.Get("JSON").(*goja.Object)
	parse, ok := goja.AssertFunction(jsonObj.Get("parse"))
	if !ok {
		return vm.NewObject()
	}
	v, err := parse(goja.Undefined(), vm.ToValue(raw))
	if err != nil {
		sink.Log("failed to parse input: " + errorText(err))
		return vm.NewObject()
	}
	obj, isObj := v.(*goja.Object)
	if !isObj || obj.ClassName() == "Array" {
		sink.Log("failed to parse input: expected a JSON object")
		return vm.NewObject()
	}
	return v
}

// resolveEntry looks up handler, then main, then module.exports (a function,
// or an object carrying handler, main or default).
// Lookup goes through the script scope so const/let bindings are visible.
func resolveEntry(vm *goja.Runtime, module *goja.Object) (goja.Callable, bool) {
	for _, name := range entryPoints {
		v, err := vm.RunString("typeof " + name + " === 'function' ? " + name + " : undefined")
		if err != nil {
			continue
		}
		if fn, ok := goja.AssertFunction(v); ok {
			return fn, true
		}
	}

	exported := module.Get("exports")
	if fn, ok := goja.AssertFunction(exported); ok {
		return fn, true
	}
	if obj, ok := exported.(*goja.Object); ok {
		for _, name := range append(entryPoints, "default") {
			if fn, ok := goja.AssertFunction(obj.Get(name)); ok {
				return fn, true
			}
		}
	}
	return nil, false
}

func describeErr(ctx context.Context, fmtr *formatter, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) || ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.New("execution timed out")
		}
		return errors.New("execution cancelled")
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return errors.New(fmtr.describe(ex.Value()))
	}
	return err
}

func errorText(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) && ex.Value() != nil {
		return ex.Value().String()
	}
	return err.Error()
}
