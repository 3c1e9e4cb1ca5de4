package plugin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zigcms/core/errs"
)

func testManifest(id string, payload []byte) Manifest {
	return Manifest{
		ID:                  id,
		Name:                "greeter",
		Version:             Version{1, 0, 0},
		APIVersion:          1,
		Checksum:            checksum(payload),
		RequiredPermissions: []string{"greet"},
		Capabilities:        HTTPHandlers | Scheduler,
	}
}

func mustRun(t *testing.T, r *Registry, inst *Instance) {
	t.Helper()
	if err := r.Load(inst); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := r.Init(inst); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := r.Start(inst); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestRegistryLifecycleHappyPath(t *testing.T) {
	r := NewRegistry(RateLimiterConfig{})
	payload := []byte("greeter-v1")
	funcs := map[string]interface{}{
		"greet": func(name string) string { return "hello " + name },
	}
	inst, err := r.Register(testManifest("greeter", payload), payload, funcs)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if inst.State() != Unloaded {
		t.Fatalf("got state %s, want unloaded", inst.State())
	}

	mustRun(t, r, inst)
	if inst.State() != Running {
		t.Fatalf("got state %s, want running", inst.State())
	}

	out, err := r.Dispatch(context.Background(), inst, HTTPHandlers, "greet", "greet", "world")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(out) != 1 || out[0] != "hello world" {
		t.Errorf("got %v, want [hello world]", out)
	}
}

func TestRegistryLoadRejectsChecksumMismatch(t *testing.T) {
	r := NewRegistry(RateLimiterConfig{})
	m := testManifest("bad", []byte("original"))
	inst, err := r.Register(m, []byte("tampered"), nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	err = r.Load(inst)
	if !errors.Is(err, errs.ErrPluginChecksumMismatch) {
		t.Fatalf("got %v, want ErrPluginChecksumMismatch", err)
	}
	if inst.State() != ErrorState {
		t.Errorf("got state %s after checksum mismatch, want error", inst.State())
	}
}

func TestRegistryRegisterRejectsDuplicateID(t *testing.T) {
	r := NewRegistry(RateLimiterConfig{})
	payload := []byte("p")
	if _, err := r.Register(testManifest("dup", payload), payload, nil); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := r.Register(testManifest("dup", payload), payload, nil)
	if !errors.Is(err, errs.ErrPluginAlreadyRegistered) {
		t.Fatalf("got %v, want ErrPluginAlreadyRegistered", err)
	}
}

func TestDispatchRejectsMissingCapability(t *testing.T) {
	r := NewRegistry(RateLimiterConfig{})
	payload := []byte("p")
	m := testManifest("capped", payload)
	m.Capabilities = HTTPHandlers // no Scheduler
	inst, _ := r.Register(m, payload, map[string]interface{}{
		"tick": func() {},
	})
	mustRun(t, r, inst)

	_, err := r.Dispatch(context.Background(), inst, Scheduler, "", "tick")
	if !errors.Is(err, errs.ErrPluginUnknownCapability) {
		t.Fatalf("got %v, want ErrPluginUnknownCapability", err)
	}
}

func TestDispatchRejectsWhenNotRunning(t *testing.T) {
	r := NewRegistry(RateLimiterConfig{})
	payload := []byte("p")
	inst, _ := r.Register(testManifest("idle", payload), payload, map[string]interface{}{
		"greet": func() {},
	})

	_, err := r.Dispatch(context.Background(), inst, HTTPHandlers, "greet", "greet")
	if err == nil {
		t.Fatal("expected Dispatch to reject a plugin that has not reached Running")
	}
}

func TestReloadRestoresSavedState(t *testing.T) {
	r := NewRegistry(RateLimiterConfig{})
	payload := []byte("p")
	inst, _ := r.Register(testManifest("reloadable", payload), payload, map[string]interface{}{
		"greet": func() {},
	})
	mustRun(t, r, inst)
	inst.SaveState(map[string]interface{}{"counter": 42})

	if err := r.Reload(context.Background(), inst, time.Second); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if inst.State() != Running {
		t.Fatalf("got state %s after Reload, want running", inst.State())
	}
	if got := inst.SavedState()["counter"]; got != 42 {
		t.Errorf("got saved counter %v, want 42", got)
	}
}

func TestTransitionFromWrongStateIsRejected(t *testing.T) {
	r := NewRegistry(RateLimiterConfig{})
	payload := []byte("p")
	inst, _ := r.Register(testManifest("premature", payload), payload, nil)

	err := r.Init(inst)
	if !errors.Is(err, errs.ErrPluginInvalidTransition) {
		t.Fatalf("got %v, want ErrPluginInvalidTransition", err)
	}
}
