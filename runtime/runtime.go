package runtime

import (
	"bytes"
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/interp"
	"github.com/wippyai/wasmvm/validator"
)

// DefaultCacheSize is the number of compiled modules kept by default.
const DefaultCacheSize = 64

// Runtime compiles modules, holds host functions and registered instances,
// and resolves imports for everything it instantiates.
type Runtime struct {
	cache     *lru.Cache[uint64, *Module]
	hosts     *HostRegistry
	logger    *zap.Logger
	metrics   *Metrics
	instances map[string]*Instance
	cfg       interp.Config
	cacheSize int
	mu        sync.RWMutex
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithConfig sets the resource limits applied to every instance.
func WithConfig(cfg interp.Config) Option {
	return func(r *Runtime) { r.cfg = cfg }
}

// WithLogger sets the runtime logger. Traps and lifecycle events are logged
// at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithCacheSize bounds the compiled module cache. Zero or less disables
// caching.
func WithCacheSize(n int) Option {
	return func(r *Runtime) { r.cacheSize = n }
}

func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		hosts:     NewHostRegistry(),
		instances: make(map[string]*Instance),
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.cacheSize > 0 {
		cache, err := lru.New[uint64, *Module](r.cacheSize)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "create module cache")
		}
		r.cache = cache
	}
	return r, nil
}

// Close drops cached modules and registered instances.
// Instances already handed out stay usable.
func (r *Runtime) Close(ctx context.Context) error {
	if r.cache != nil {
		r.cache.Purge()
		r.metrics.setCached(0)
	}
	r.mu.Lock()
	clear(r.instances)
	r.mu.Unlock()
	return nil
}

// Config returns the instance limits in effect.
func (r *Runtime) Config() interp.Config {
	return r.cfg
}

func (r *Runtime) Hosts() *HostRegistry {
	return r.hosts
}

// RegisterHost registers all exported methods of h under h.Namespace().
// Must be called BEFORE instantiating modules that import these functions.
// Method names are converted from PascalCase to snake_case (PrintI32 -> print_i32).
func (r *Runtime) RegisterHost(h Host) error {
	return r.hosts.RegisterHost(h)
}

// RegisterFunc registers a Go function as the import module.name.
func (r *Runtime) RegisterFunc(module, name string, fn any) error {
	return r.hosts.RegisterFunc(module, name, fn)
}

// RegisterHostFunc registers a raw slot-level host function.
func (r *Runtime) RegisterHostFunc(module, name string, h interp.HostFunc) error {
	return r.hosts.RegisterHostFunc(module, name, h)
}

// RegisterInstance makes the exports of inst importable under module name.
// Registered instances take precedence over host functions.
func (r *Runtime) RegisterInstance(name string, inst *Instance) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "module name cannot be empty")
	}
	if inst == nil {
		return errors.InvalidInput(errors.PhaseHost, "instance cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[name] = inst
	return nil
}

// Resolve implements interp.Resolver.
func (r *Runtime) Resolve(module, name string) (interp.Extern, bool) {
	r.mu.RLock()
	inst, ok := r.instances[module]
	r.mu.RUnlock()
	if ok {
		return inst.inst.Export(name)
	}
	if fn, ok := r.hosts.Lookup(module, name); ok {
		return interp.Extern{Func: fn}, true
	}
	return interp.Extern{}, false
}

// Compile decodes and validates a binary module. Results are cached by
// content, so compiling the same bytes twice returns the same *Module.
func (r *Runtime) Compile(ctx context.Context, bin []byte) (*Module, error) {
	key := xxhash.Sum64(bin)
	if r.cache != nil {
		if m, ok := r.cache.Get(key); ok && bytes.Equal(m.bin, bin) {
			r.logger.Debug("module cache hit", zap.Uint64("hash", key))
			return m, nil
		}
	}

	compiled, err := validator.Validate(bin)
	if err != nil {
		r.logger.Debug("module rejected", zap.Error(err))
		return nil, err
	}

	m := &Module{
		runtime:  r,
		compiled: compiled,
		bin:      bytes.Clone(bin),
		hash:     key,
	}
	if r.cache != nil {
		r.cache.Add(key, m)
		r.metrics.setCached(r.cache.Len())
	}
	r.logger.Debug("module compiled",
		zap.Uint64("hash", key),
		zap.Int("functions", len(compiled.Funcs)),
		zap.Int("imports", len(compiled.Raw.Imports)),
		zap.Int("exports", len(compiled.Raw.Exports)))
	return m, nil
}

// CachedModules returns the number of modules in the compile cache.
func (r *Runtime) CachedModules() int {
	if r.cache == nil {
		return 0
	}
	return r.cache.Len()
}
