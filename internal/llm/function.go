package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"sorcerer/internal/core/ports"
	"sorcerer/internal/shared/observability"
)

// Function is a tool the model may call during a prompt.
type Function interface {
	Name() string
	Description() string
	// Parameters is the JSON schema of the arguments object.
	Parameters() map[string]any
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Installable functions need the transport they run under, for example to
// send prompts of their own. Install is called once the transport exists.
type Installable interface {
	Install(api ports.ChatTransport)
}

// FunctionRegistry is the set of functions offered to the model.
type FunctionRegistry struct {
	funcs map[string]Function
}

func NewFunctionRegistry(funcs ...Function) *FunctionRegistry {
	r := &FunctionRegistry{funcs: make(map[string]Function, len(funcs))}
	for _, f := range funcs {
		r.funcs[f.Name()] = f
	}
	return r
}

// Install completes two-phase construction for every Installable function.
func (r *FunctionRegistry) Install(api ports.ChatTransport) {
	if r == nil {
		return
	}
	for _, f := range r.funcs {
		if inst, ok := f.(Installable); ok {
			inst.Install(api)
		}
	}
}

// Functions lists the registered functions sorted by name.
func (r *FunctionRegistry) Functions() []Function {
	if r == nil {
		return nil
	}
	out := make([]Function, 0, len(r.funcs))
	for _, f := range r.funcs {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (r *FunctionRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.funcs)
}

// Dispatch runs the named function. Failures are returned as text so the
// model can react to them; they never abort the prompt.
func (r *FunctionRegistry) Dispatch(ctx context.Context, name string, args map[string]any) string {
	f, ok := r.funcs[name]
	if !ok {
		observability.ToolCallsTotal.WithLabelValues(name, "unknown").Inc()
		return fmt.Sprintf("error: unknown function %q", name)
	}
	out, err := f.Call(ctx, args)
	if err != nil {
		observability.ToolCallsTotal.WithLabelValues(name, "error").Inc()
		slog.Debug("function call failed", "function", name, "error", err)
		return "error: " + err.Error()
	}
	observability.ToolCallsTotal.WithLabelValues(name, "ok").Inc()
	return out
}

// DispatchJSON decodes raw JSON arguments before dispatching.
func (r *FunctionRegistry) DispatchJSON(ctx context.Context, name, rawArgs string) string {
	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			observability.ToolCallsTotal.WithLabelValues(name, "bad_args").Inc()
			return "error: arguments are not a JSON object: " + err.Error()
		}
	}
	return r.Dispatch(ctx, name, args)
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}
