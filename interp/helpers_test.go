package interp_test

import (
	"context"
	"errors"
	"testing"

	werrors "github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/interp"
	. "github.com/wippyai/wasmvm/internal/wasmtest"
	"github.com/wippyai/wasmvm/validator"
)

func compile(t *testing.T, b *Builder) *validator.Module {
	t.Helper()
	m, err := validator.Validate(b.Bytes())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return m
}

func instantiate(t *testing.T, b *Builder, imports interp.Resolver, cfg interp.Config) *interp.Instance {
	t.Helper()
	inst, err := interp.Instantiate(context.Background(), compile(t, b), imports, cfg)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	return inst
}

func call(t *testing.T, inst *interp.Instance, name string, args ...uint64) []uint64 {
	t.Helper()
	res, err := inst.Call(context.Background(), name, args...)
	if err != nil {
		t.Fatalf("%s%v: %v", name, args, err)
	}
	return res
}

func call1(t *testing.T, inst *interp.Instance, name string, args ...uint64) uint64 {
	t.Helper()
	res := call(t, inst, name, args...)
	if len(res) != 1 {
		t.Fatalf("%s returned %d results, want 1", name, len(res))
	}
	return res[0]
}

func wantTrap(t *testing.T, err error, kind werrors.TrapKind) *werrors.Trap {
	t.Helper()
	if err == nil {
		t.Fatalf("expected trap %q, got success", kind)
	}
	trap, ok := werrors.AsTrap(err)
	if !ok {
		t.Fatalf("expected trap %q, got %v", kind, err)
	}
	if trap.Kind != kind {
		t.Fatalf("trap kind = %q, want %q", trap.Kind, kind)
	}
	return trap
}

func wantError(t *testing.T, err error, phase werrors.Phase, kind werrors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s/%s error, got success", phase, kind)
	}
	if !errors.Is(err, &werrors.Error{Phase: phase, Kind: kind}) {
		t.Fatalf("expected %s/%s error, got %v", phase, kind, err)
	}
}

func i32(v int32) uint64 { return uint64(uint32(v)) }

func ptr[T any](v T) *T { return &v }
