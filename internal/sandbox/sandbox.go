// Package sandbox executes user-authored JavaScript in an isolated goja
// runtime. Each run gets a fresh VM with a closed capability set: the
// assembled input, the resolved config, a console shim, and the controlled
// context.http interface. Module loading, process access, and dynamic code
// generation are rejected up front by the static scan and absent from the
// runtime itself.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/flowmesh/flowmesh/internal/runtime"
	"github.com/flowmesh/flowmesh/pkg/schema"
)

// DefaultTimeout bounds a single custom-code execution.
const DefaultTimeout = 30 * time.Second

// Result is the outcome of one sandboxed execution.
type Result struct {
	Success bool
	Value   any
	Err     error
	Logs    []schema.LogEntry
}

// Sandbox runs user code with a hard per-run timeout.
type Sandbox struct {
	timeout time.Duration
}

// hardenPrelude runs before any user code and severs the dynamic code
// generation intrinsics. Shadowing the eval/Function globals is not enough:
// the Function constructor stays reachable through any object's constructor
// chain (e.g. [].constructor.constructor), so the intrinsic itself is
// replaced with a frozen undefined on every function prototype.
const hardenPrelude = `(function() {
	var protos = [
		Object.getPrototypeOf(function() {}),
		Object.getPrototypeOf(function*() {}),
		Object.getPrototypeOf(async function() {})
	];
	for (var i = 0; i < protos.length; i++) {
		Object.defineProperty(protos[i], 'constructor', {
			value: undefined,
			writable: false,
			configurable: false,
			enumerable: false
		});
	}
})();`

// New creates a Sandbox. A non-positive timeout falls back to DefaultTimeout.
func New(timeout time.Duration) *Sandbox {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sandbox{timeout: timeout}
}

// Run executes code inside a fresh VM. The code body runs as the body of
// function(input, config, context); a return statement produces the node
// output. Run never panics the host: timeouts and script errors come back
// as a failed Result.
func (s *Sandbox) Run(ctx context.Context, code string, input any, config map[string]any, xctx *runtime.ExecutionContext) *Result {
	logs := runtime.NewLogCollector()

	if violations := ValidateSource(code); len(violations) > 0 {
		return &Result{
			Success: false,
			Err: schema.NewError(schema.ErrCodeInvalidCustomCode,
				"custom code uses disallowed constructs: "+strings.Join(violations, "; ")).
				WithDetails(map[string]any{"violations": violations}),
			Logs: logs.Entries(),
		}
	}

	vm := goja.New()

	// Interrupt the VM on timeout or caller cancellation.
	done := make(chan struct{})
	go func() {
		select {
		case <-time.After(s.timeout):
			vm.Interrupt("execution timeout")
		case <-ctx.Done():
			vm.Interrupt("cancelled")
		case <-done:
		}
	}()
	defer close(done)

	// The runtime keeps only safe pure globals (JSON, Math, Date, Array...).
	// eval and the Function constructor are shadowed out; the prelude severs
	// the intrinsic behind them.
	_ = vm.Set("eval", goja.Undefined())
	_ = vm.Set("Function", goja.Undefined())
	if _, err := vm.RunString(hardenPrelude); err != nil {
		return &Result{
			Success: false,
			Err: schema.NewError(schema.ErrCodeSandbox,
				"failed to initialize sandbox runtime").WithCause(err),
			Logs: logs.Entries(),
		}
	}

	s.installConsole(vm, logs)

	ctxObj, err := s.buildContextObject(ctx, vm, xctx)
	if err != nil {
		return &Result{Success: false, Err: err, Logs: logs.Entries()}
	}

	if config == nil {
		config = map[string]any{}
	}
	if input == nil {
		input = map[string]any{}
	}

	fnVal, err := vm.RunString("(function(input, config, context) {\n" + code + "\n})")
	if err != nil {
		return &Result{
			Success: false,
			Err: schema.NewErrorf(schema.ErrCodeSandbox,
				"custom code failed to compile: %s", err.Error()).WithCause(err),
			Logs: logs.Entries(),
		}
	}

	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return &Result{
			Success: false,
			Err:     schema.NewError(schema.ErrCodeSandbox, "custom code did not compile to a callable"),
			Logs:    logs.Entries(),
		}
	}

	value, err := fn(goja.Undefined(), vm.ToValue(input), vm.ToValue(config), ctxObj)
	if err != nil {
		return &Result{Success: false, Err: classifyRunError(err), Logs: logs.Entries()}
	}

	var exported any
	if value != nil && !goja.IsUndefined(value) && !goja.IsNull(value) {
		exported = value.Export()
	}

	return &Result{Success: true, Value: exported, Logs: logs.Entries()}
}

// installConsole captures console.* calls into structured log entries,
// never the host console.
func (s *Sandbox) installConsole(vm *goja.Runtime, logs *runtime.LogCollector) {
	console := vm.NewObject()
	levels := map[string]string{
		"log":   "info",
		"info":  "info",
		"warn":  "warn",
		"error": "error",
		"debug": "debug",
	}
	for method, level := range levels {
		lvl := level
		_ = console.Set(method, func(call goja.FunctionCall) goja.Value {
			args := make([]any, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = arg.Export()
			}
			logs.Append(lvl, fmt.Sprint(args...), nil)
			return goja.Undefined()
		})
	}
	_ = vm.Set("console", console)
}

// buildContextObject exposes the restricted context: an http capability and
// nothing else. Raw sockets, credentials, and host state stay on the Go side.
func (s *Sandbox) buildContextObject(ctx context.Context, vm *goja.Runtime, xctx *runtime.ExecutionContext) (goja.Value, error) {
	ctxObj := vm.NewObject()

	httpObj := vm.NewObject()
	if xctx != nil && xctx.HTTP != nil {
		client := xctx.HTTP

		bindBodyless := func(name string, fn func(context.Context, string, map[string]string) (*runtime.HTTPResponse, error)) {
			_ = httpObj.Set(name, func(call goja.FunctionCall) goja.Value {
				url := call.Argument(0).String()
				headers := exportHeaders(call.Argument(1))
				resp, err := fn(ctx, url, headers)
				return exportResponse(vm, resp, err)
			})
		}
		bindBody := func(name string, fn func(context.Context, string, map[string]string, any) (*runtime.HTTPResponse, error)) {
			_ = httpObj.Set(name, func(call goja.FunctionCall) goja.Value {
				url := call.Argument(0).String()
				body := call.Argument(1).Export()
				headers := exportHeaders(call.Argument(2))
				resp, err := fn(ctx, url, headers, body)
				return exportResponse(vm, resp, err)
			})
		}

		bindBodyless("get", client.Get)
		bindBody("post", client.Post)
		bindBody("put", client.Put)
		bindBody("patch", client.Patch)
		bindBodyless("delete", client.Delete)
	}
	if err := ctxObj.Set("http", httpObj); err != nil {
		return nil, schema.NewError(schema.ErrCodeSandbox, "failed to build sandbox context").WithCause(err)
	}

	return ctxObj, nil
}

// exportHeaders converts an optional JS headers object to a string map.
func exportHeaders(v goja.Value) map[string]string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	raw, ok := v.Export().(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		out[k] = fmt.Sprintf("%v", val)
	}
	return out
}

// exportResponse shapes an HTTP result for the script: {status, headers,
// body} on success, {error} on failure.
func exportResponse(vm *goja.Runtime, resp *runtime.HTTPResponse, err error) goja.Value {
	if err != nil {
		return vm.ToValue(map[string]any{"error": err.Error()})
	}
	return vm.ToValue(map[string]any{
		"status":  resp.Status,
		"headers": resp.Headers,
		"body":    resp.Body,
	})
}

// classifyRunError separates timeouts from script failures.
func classifyRunError(err error) error {
	if _, ok := err.(*goja.InterruptedError); ok {
		msg := err.Error()
		if strings.Contains(msg, "cancelled") {
			return schema.NewError(schema.ErrCodeCancelled, "custom code execution was cancelled").WithCause(err)
		}
		return schema.NewError(schema.ErrCodeSandboxTimeout, "custom code exceeded its execution timeout").WithCause(err)
	}
	if ex, ok := err.(*goja.Exception); ok {
		return schema.NewErrorf(schema.ErrCodeSandbox, "custom code threw: %s", ex.Value().String()).WithCause(err)
	}
	return schema.NewErrorf(schema.ErrCodeSandbox, "custom code failed: %s", err.Error()).WithCause(err)
}
