package plugin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/zigcms/core/errs"
	"go.uber.org/zap"
)

// Version is a plugin's semantic version.
type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Manifest describes a plugin before it is loaded: its identity, the
// capabilities it declares, and the checksum of its code that Load
// verifies before the plugin is allowed to reach Loaded state.
type Manifest struct {
	ID                  string
	Name                string
	Version             Version
	APIVersion          int
	Checksum            string // hex sha256 of the plugin's registered payload
	RequiredPermissions []string
	Capabilities        Capability
}

// Instance is one registered plugin: its manifest, current lifecycle
// state, dispatchable functions, and the state snapshot carried across a
// Reload.
type Instance struct {
	manifest Manifest
	payload  []byte // the bytes Checksum is verified against

	mu        sync.Mutex
	state     State
	funcs     map[string]interface{}
	savedData map[string]interface{}
}

func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *Instance) Manifest() Manifest {
	return i.manifest
}

func (i *Instance) fail(err error) error {
	i.mu.Lock()
	i.state = ErrorState
	i.mu.Unlock()
	return err
}

// Registry is the host-side table of every registered plugin: it enforces
// the lifecycle state machine, gates dispatch on declared capability and
// permission, and throttles per-plugin call volume.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*Instance
	limiter *RateLimiter
	log     *zap.SugaredLogger
}

// NewRegistry constructs an empty Registry. rlCfg controls per-plugin
// dispatch throttling; the zero value falls back to DefaultRateLimiterConfig.
func NewRegistry(rlCfg RateLimiterConfig) *Registry {
	return &Registry{
		byID:    make(map[string]*Instance),
		limiter: NewRateLimiter(rlCfg),
	}
}

// SetLogger attaches a structured logger used to report lifecycle
// transitions and dispatch rejections.
func (r *Registry) SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		return
	}
	r.log = l.With("component", "plugin")
}

// Register adds a plugin under m.ID in Unloaded state. payload is the
// byte content Load will checksum-verify against m.Checksum — in this
// in-process registry that is typically a serialized description of the
// registered functions rather than a shared-object file, since plugins
// here are Go values registered at process startup, not dynamically
// loaded code.
func (r *Registry) Register(m Manifest, payload []byte, funcs map[string]interface{}) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[m.ID]; exists {
		return nil, fmt.Errorf("%w: %q", errs.ErrPluginAlreadyRegistered, m.ID)
	}
	inst := &Instance{
		manifest: m,
		payload:  payload,
		state:    Unloaded,
		funcs:    funcs,
	}
	r.byID[m.ID] = inst
	if r.log != nil {
		r.log.Infow("registered plugin", "plugin_id", m.ID, "version", m.Version.String())
	}
	return inst, nil
}

// Get returns the instance registered under id, if any.
func (r *Registry) Get(id string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.byID[id]
	return inst, ok
}

// checksum computes the same hex-sha256 digest Load verifies a plugin's
// payload against.
func checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Load verifies inst's payload against its manifest checksum and advances
// it to Loaded. A mismatch drives the instance to ErrorState rather than
// leaving it Unloaded, since a checksum failure means the plugin's code is
// not what the manifest claims and must not be retried without operator
// intervention.
func (r *Registry) Load(inst *Instance) error {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if got := checksum(inst.payload); got != inst.manifest.Checksum {
		inst.state = ErrorState
		return fmt.Errorf("%w: plugin %q wants %s, payload hashes to %s", errs.ErrPluginChecksumMismatch, inst.manifest.ID, inst.manifest.Checksum, got)
	}
	to, err := next(inst.state, TransLoad)
	if err != nil {
		return err
	}
	inst.state = to
	return nil
}

// Init advances inst from Loaded to Initialized.
func (r *Registry) Init(inst *Instance) error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	to, err := next(inst.state, TransInit)
	if err != nil {
		return err
	}
	inst.state = to
	return nil
}

// Start advances inst to Running.
func (r *Registry) Start(inst *Instance) error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	to, err := next(inst.state, TransStart)
	if err != nil {
		return err
	}
	inst.state = to
	if r.log != nil {
		r.log.Infow("plugin started", "plugin_id", inst.manifest.ID)
	}
	return nil
}

// Stop advances inst to Stopped, bounded by timeout the same way the
// teacher codebase's worker pool bounds its own shutdown: the transition
// runs on its own goroutine and Stop waits for it until ctx is done or,
// when timeout is positive, timeout elapses; in that case inst is moved to
// ErrorState and ErrPluginStopTimeout is returned.
func (r *Registry) Stop(ctx context.Context, inst *Instance, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		inst.mu.Lock()
		defer inst.mu.Unlock()
		to, err := next(inst.state, TransStop)
		if err != nil {
			done <- err
			return
		}
		inst.state = to
		done <- nil
	}()

	stopCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		stopCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case err := <-done:
		return err
	case <-stopCtx.Done():
		return inst.fail(fmt.Errorf("%w: plugin %q", errs.ErrPluginStopTimeout, inst.manifest.ID))
	}
}

// Unload advances inst back to Unloaded.
func (r *Registry) Unload(inst *Instance) error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	to, err := next(inst.state, TransUnload)
	if err != nil {
		return err
	}
	inst.state = to
	return nil
}

// Reload runs the compound sequence spec'd for TransReload: snapshot
// state, Stop with a deadline, Unload, Load, Init, restore the snapshot,
// Start. TransReload has no single allowed edge in the transition table —
// unlike every other transition it is not one atomic state change but a
// scripted walk through the others, so it is implemented here rather than
// as a map entry in state.go.
func (r *Registry) Reload(ctx context.Context, inst *Instance, stopTimeout time.Duration) error {
	inst.mu.Lock()
	snapshot := inst.savedData
	inst.mu.Unlock()

	if err := r.Stop(ctx, inst, stopTimeout); err != nil {
		return err
	}
	if err := r.Unload(inst); err != nil {
		return inst.fail(err)
	}
	if err := r.Load(inst); err != nil {
		return err
	}
	if err := r.Init(inst); err != nil {
		return inst.fail(err)
	}

	inst.mu.Lock()
	inst.savedData = snapshot
	inst.mu.Unlock()

	return r.Start(inst)
}

// SaveState stashes data on inst to be restored after a Reload.
func (i *Instance) SaveState(data map[string]interface{}) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.savedData = data
}

// SavedState returns the data stashed by the most recent SaveState.
func (i *Instance) SavedState() map[string]interface{} {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.savedData
}

// Dispatch invokes inst's registered function named fn with args, gated
// on inst being Running, declaring want, holding permission, and not
// being rate-limited — mirroring the teacher codebase's reflection-based
// function registry (server.Handler.executeFunction/convertToType),
// generalized with the capability/permission/throttle checks a
// multi-tenant plugin host needs that a single operator-owned RPC
// registry did not.
func (r *Registry) Dispatch(ctx context.Context, inst *Instance, want Capability, permission string, fn string, args ...interface{}) ([]interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if inst.State() != Running {
		return nil, fmt.Errorf("plugin: %q is not running (state=%s)", inst.manifest.ID, inst.State())
	}
	if !inst.manifest.Capabilities.Has(want) {
		return nil, fmt.Errorf("%w: plugin %q lacks %s", errs.ErrPluginUnknownCapability, inst.manifest.ID, want)
	}
	if permission != "" && !hasPermission(inst.manifest.RequiredPermissions, permission) {
		return nil, fmt.Errorf("plugin: %q was not granted permission %q", inst.manifest.ID, permission)
	}
	if !r.limiter.Allow(inst.manifest.ID) {
		return nil, fmt.Errorf("plugin: %q exceeded its dispatch rate limit", inst.manifest.ID)
	}

	target, ok := inst.funcs[fn]
	if !ok {
		return nil, fmt.Errorf("plugin: %q has no function %q", inst.manifest.ID, fn)
	}
	fv := reflect.ValueOf(target)
	if fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("plugin: %q's %q is not callable", inst.manifest.ID, fn)
	}

	params, err := convertArgs(args, fv.Type())
	if err != nil {
		return nil, inst.fail(fmt.Errorf("plugin: converting args for %q.%q: %w", inst.manifest.ID, fn, err))
	}

	results := fv.Call(params)
	out := make([]interface{}, len(results))
	for i, res := range results {
		out[i] = res.Interface()
	}
	return out, nil
}

func hasPermission(granted []string, want string) bool {
	for _, p := range granted {
		if p == want {
			return true
		}
	}
	return false
}

// convertArgs adapts caller-supplied args to fn's declared parameter
// types, the same value-coercion idiom the teacher codebase's
// convertToType used for its own reflection dispatch.
func convertArgs(args []interface{}, fnType reflect.Type) ([]reflect.Value, error) {
	if fnType.NumIn() != len(args) {
		return nil, fmt.Errorf("expected %d arguments, got %d", fnType.NumIn(), len(args))
	}
	out := make([]reflect.Value, len(args))
	for i, a := range args {
		want := fnType.In(i)
		if a == nil {
			out[i] = reflect.Zero(want)
			continue
		}
		v := reflect.ValueOf(a)
		if v.Type().AssignableTo(want) {
			out[i] = v
			continue
		}
		if v.Type().ConvertibleTo(want) {
			out[i] = v.Convert(want)
			continue
		}
		return nil, fmt.Errorf("cannot convert argument %d (%s) to %s", i, v.Type(), want)
	}
	return out, nil
}
