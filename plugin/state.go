// Package plugin tracks operator-provided extensions through a lifecycle
// state machine, a capability bitmap checked at dispatch time, and
// manifest/checksum verification at load. It does not load shared
// libraries across an ABI boundary: plugins register themselves
// in-process, the same way the teacher codebase's function registry
// works, just with a state machine and permission model layered on top.
package plugin

import (
	"fmt"

	"github.com/zigcms/core/errs"
)

// State is one point in a plugin's lifecycle.
type State int

const (
	Unloaded State = iota
	Loaded
	Initialized
	Running
	Stopped
	ErrorState
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loaded:
		return "loaded"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case ErrorState:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transition names one lifecycle edge.
type Transition int

const (
	TransLoad Transition = iota
	TransInit
	TransStart
	TransStop
	TransUnload
	TransReload
)

// transitions maps the allowed from-state -> to-state per Transition. Any
// state can fall to ErrorState on a fault; that edge is handled separately
// in Instance.fail rather than listed here since it is not an operator-
// requested transition.
var transitions = map[Transition]map[State]State{
	TransLoad:   {Unloaded: Loaded},
	TransInit:   {Loaded: Initialized},
	TransStart:  {Initialized: Running, Stopped: Running},
	TransStop:   {Running: Stopped, Initialized: Stopped},
	TransUnload: {Stopped: Unloaded, ErrorState: Unloaded},
}

// next reports the state a transition leads to from cur, or an error if
// the edge is not allowed — the mechanism behind spec invariant 11's
// lifecycle monotonicity guarantee.
func next(cur State, t Transition) (State, error) {
	edges, ok := transitions[t]
	if !ok {
		return cur, fmt.Errorf("plugin: unknown transition %d", int(t))
	}
	to, ok := edges[cur]
	if !ok {
		return cur, fmt.Errorf("%w: cannot apply transition %d from state %s", errs.ErrPluginInvalidTransition, int(t), cur)
	}
	return to, nil
}
