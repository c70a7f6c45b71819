package runtime

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/interp"
	"github.com/wippyai/wasmvm/wasm"
)

// Host is the interface for struct-based host modules.
// All exported methods (except Namespace) are registered as host functions.
type Host interface {
	// Namespace returns the import module name (e.g., "env").
	Namespace() string
}

// ExplicitRegistrar allows hosts to provide exact import names when the
// automatic PascalCase-to-snake_case conversion doesn't apply.
type ExplicitRegistrar interface {
	Register() map[string]any
}

// HostRegistry holds host functions by import module and name.
type HostRegistry struct {
	funcs map[string]map[string]*interp.Function
	mu    sync.RWMutex
}

func NewHostRegistry() *HostRegistry {
	return &HostRegistry{
		funcs: make(map[string]map[string]*interp.Function),
	}
}

func (r *HostRegistry) RegisterHost(h Host) error {
	ns := h.Namespace()
	if ns == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}

	if er, ok := h.(ExplicitRegistrar); ok {
		for name, handler := range er.Register() {
			if err := r.RegisterFunc(ns, name, handler); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "Namespace" {
			continue
		}
		if err := r.RegisterFunc(ns, toSnakeCase(method.Name), rv.Method(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// RegisterFunc registers a Go function by reflection. Parameters and
// results may be int32, uint32, int64, uint64, float32 or float64 (or types
// based on them). An optional leading context.Context and *interp.Caller
// are passed through, and an optional trailing error result traps the
// caller. At most one value result is allowed.
func (r *HostRegistry) RegisterFunc(namespace, name string, fn any) error {
	if err := checkName(namespace, name); err != nil {
		return err
	}
	h, err := wrapFunc(fn)
	if err != nil {
		return errors.Registration(errors.PhaseHost, namespace, name, err)
	}
	r.add(namespace, name, interp.NewHostFunction(name, h))
	return nil
}

// RegisterHostFunc registers a raw slot-level host function.
func (r *HostRegistry) RegisterHostFunc(namespace, name string, h interp.HostFunc) error {
	if err := checkName(namespace, name); err != nil {
		return err
	}
	if h.Fn == nil {
		return errors.InvalidInput(errors.PhaseHost, "host function cannot be nil")
	}
	r.add(namespace, name, interp.NewHostFunction(name, h))
	return nil
}

func checkName(namespace, name string) error {
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "function name cannot be empty")
	}
	return nil
}

func (r *HostRegistry) add(namespace, name string, fn *interp.Function) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.funcs[namespace] == nil {
		r.funcs[namespace] = make(map[string]*interp.Function)
	}
	r.funcs[namespace][name] = fn
}

// Lookup returns the function registered as namespace.name.
func (r *HostRegistry) Lookup(namespace, name string) (*interp.Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[namespace][name]
	return fn, ok
}

// Names lists registered functions as "namespace.name", sorted.
func (r *HostRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for ns, funcs := range r.funcs {
		for name := range funcs {
			names = append(names, ns+"."+name)
		}
	}
	sort.Strings(names)
	return names
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	callerType  = reflect.TypeOf((*interp.Caller)(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

func wrapFunc(fn any) (interp.HostFunc, error) {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return interp.HostFunc{}, fmt.Errorf("handler must be a function, got %T", fn)
	}
	rt := rv.Type()
	if rt.IsVariadic() {
		return interp.HostFunc{}, fmt.Errorf("variadic handlers are not supported")
	}

	first := 0
	wantCtx := first < rt.NumIn() && rt.In(first) == contextType
	if wantCtx {
		first++
	}
	wantCaller := first < rt.NumIn() && rt.In(first) == callerType
	if wantCaller {
		first++
	}

	var ft wasm.FuncType
	for i := first; i < rt.NumIn(); i++ {
		vt, ok := valTypeOf(rt.In(i))
		if !ok {
			return interp.HostFunc{}, fmt.Errorf("parameter %d: unsupported type %s", i, rt.In(i))
		}
		ft.Params = append(ft.Params, vt)
	}

	nout := rt.NumOut()
	hasErr := nout > 0 && rt.Out(nout-1) == errorType
	if hasErr {
		nout--
	}
	if nout > 1 {
		return interp.HostFunc{}, fmt.Errorf("at most one result is allowed, got %d", nout)
	}
	for i := 0; i < nout; i++ {
		vt, ok := valTypeOf(rt.Out(i))
		if !ok {
			return interp.HostFunc{}, fmt.Errorf("result %d: unsupported type %s", i, rt.Out(i))
		}
		ft.Results = append(ft.Results, vt)
	}

	call := func(ctx context.Context, c *interp.Caller, params, results []uint64) (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("host function panicked: %v", p)
			}
		}()

		args := make([]reflect.Value, rt.NumIn())
		if wantCtx {
			args[0] = reflect.ValueOf(&ctx).Elem()
		}
		if wantCaller {
			args[first-1] = reflect.ValueOf(c)
		}
		for i, p := range params {
			args[first+i] = reflectFromSlot(p, rt.In(first+i))
		}

		out := rv.Call(args)
		if hasErr {
			if e := out[len(out)-1]; !e.IsNil() {
				return e.Interface().(error)
			}
		}
		for i := range results {
			results[i] = reflectToSlot(out[i])
		}
		return nil
	}
	return interp.HostFunc{Type: ft, Fn: call}, nil
}

// toSnakeCase converts PascalCase to snake_case.
// Handles acronyms: GetHTTPStatus -> get_http_status, PrintI32 -> print_i32
func toSnakeCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if unicode.IsUpper(r) {
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			if acronymEnd > i+1 {
				// Last uppercase before lowercase starts next word, not part of acronym
				if acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
					acronymEnd--
				}
			}

			if i > 0 {
				result.WriteByte('_')
			}

			for j := i; j < acronymEnd; j++ {
				result.WriteRune(unicode.ToLower(runes[j]))
			}
			i = acronymEnd - 1 // -1 because loop will increment
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
