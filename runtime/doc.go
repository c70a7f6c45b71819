// Package runtime provides the high-level embedding API.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	// Register host functions the module imports
//	rt.RegisterFunc("env", "print_i32", func(v int32) {
//	    fmt.Println(v)
//	})
//
//	// Compile (decode + validate), cached by content hash
//	mod, err := rt.Compile(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create an instance
//	inst, err := mod.Instantiate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Call exported functions
//	results, err := inst.Call(ctx, "add", int32(2), int32(3))
//	fmt.Println(results[0]) // 5
//
// # Host Functions
//
// Go functions are adapted by reflection. Parameters and results map to
// wasm value types by kind (int32/uint32 -> i32, int64/uint64 -> i64,
// float32 -> f32, float64 -> f64). A leading context.Context and
// *interp.Caller are optional, as is a trailing error:
//
//	rt.RegisterFunc("env", "log", func(ctx context.Context, c *interp.Caller, ptr, n uint32) error {
//	    b, err := c.Memory().Read(ptr, n)
//	    if err != nil {
//	        return err
//	    }
//	    log.Print(string(b))
//	    return nil
//	})
//
// A struct whose methods are host functions can be registered at once;
// method names are converted to snake_case:
//
//	type Env struct{}
//	func (Env) Namespace() string    { return "env" }
//	func (Env) PrintI32(v int32)     { fmt.Println(v) }
//	rt.RegisterHost(Env{})
//
// # Linking Instances
//
// An instance can satisfy imports of modules instantiated later:
//
//	lib, _ := libMod.Instantiate(ctx)
//	rt.RegisterInstance("lib", lib)
//	app, _ := appMod.Instantiate(ctx) // imports "lib" resolve to lib's exports
//
// # Pools
//
// An instance runs one invocation at a time. For concurrent callers, use a
// Pool over one module:
//
//	pool, _ := mod.NewPool(8)
//	inst, err := pool.Acquire(ctx)
//	defer pool.Release(inst)
//
// # Metrics
//
//	m, _ := runtime.NewMetrics(prometheus.DefaultRegisterer)
//	rt, _ := runtime.New(ctx, runtime.WithMetrics(m))
package runtime
