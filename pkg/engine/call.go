package engine

// CallMode describes how a scenario execution was invoked.
type CallMode int

const (
	// CallModeNone is a top-level invocation (CLI or API entry).
	CallModeNone CallMode = iota
	// CallModeSharedScope is a nested call that shares the caller's live
	// variable map and configuration by reference.
	CallModeSharedScope
	// CallModeIsolatedScope is a nested call that receives a deep copy of
	// the caller's variables and a cloned configuration.
	CallModeIsolatedScope
)

// String returns the string representation of CallMode.
func (m CallMode) String() string {
	switch m {
	case CallModeNone:
		return "none"
	case CallModeSharedScope:
		return "shared"
	case CallModeIsolatedScope:
		return "isolated"
	default:
		return "unknown"
	}
}

// ScenarioCall describes the invocation context of a scenario execution.
// Created by the invoker and consumed once at runtime construction.
type ScenarioCall struct {
	Mode      CallMode
	Arg       interface{}      // Optional call argument
	LoopIndex int              // Index for repeated calls, -1 when not looping
	Parent    *ScenarioRuntime // Caller's runtime for nested calls
}

// CallNone returns a top-level call context.
func CallNone() *ScenarioCall {
	return &ScenarioCall{Mode: CallModeNone, LoopIndex: -1}
}

// CallShared returns a nested call context sharing the parent's scope.
func CallShared(parent *ScenarioRuntime, arg interface{}, loopIndex int) *ScenarioCall {
	return &ScenarioCall{Mode: CallModeSharedScope, Arg: arg, LoopIndex: loopIndex, Parent: parent}
}

// CallIsolated returns a nested call context with a copied scope.
func CallIsolated(parent *ScenarioRuntime, arg interface{}, loopIndex int) *ScenarioCall {
	return &ScenarioCall{Mode: CallModeIsolatedScope, Arg: arg, LoopIndex: loopIndex, Parent: parent}
}

// IsNone returns true for top-level invocations.
func (c *ScenarioCall) IsNone() bool { return c.Mode == CallModeNone }

// IsSharedScope returns true for shared-scope nested calls.
func (c *ScenarioCall) IsSharedScope() bool { return c.Mode == CallModeSharedScope }

// IsIsolatedScope returns true for isolated-scope nested calls.
func (c *ScenarioCall) IsIsolatedScope() bool { return c.Mode == CallModeIsolatedScope }

// Depth returns the nesting depth of the call chain.
func (c *ScenarioCall) Depth() int {
	depth := 0
	for p := c.Parent; p != nil; p = p.Caller.Parent {
		depth++
	}
	return depth
}
