// Package interp is the built-in step interpreter: it executes the
// instruction language of feature steps (def, print, assert, match, eval,
// configure, call, spawn, abort, embed) against a scenario's scope.
package interp

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/scenario-runner/pkg/core"
	"github.com/devicelab-dev/scenario-runner/pkg/engine"
	"github.com/devicelab-dev/scenario-runner/pkg/feature"
)

// errAbort is the deliberate stop signal raised by the abort instruction.
var errAbort = errors.New("aborted")

var defPattern = regexp.MustCompile(`^def\s+([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.+)$`)

// Interp implements engine.Interpreter.
type Interp struct{}

// New creates the interpreter.
func New() *Interp {
	return &Interp{}
}

// Execute runs one step and classifies the outcome. Panics escaping the
// instruction are converted into step failures, never propagated to the
// state machine.
func (in *Interp) Execute(step *feature.Step, rt *engine.ScenarioRuntime) (result core.Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = core.Failed(time.Since(start), fmt.Errorf("step panicked: %v", r))
		}
	}()

	err := in.run(step.Instruction(), rt)
	duration := time.Since(start)
	switch {
	case errors.Is(err, errAbort):
		return core.Aborted(duration)
	case err != nil:
		return core.Failed(duration, err)
	default:
		return core.Passed(duration)
	}
}

func (in *Interp) run(inst string, rt *engine.ScenarioRuntime) error {
	keyword, rest := splitKeyword(inst)
	switch keyword {
	case "def":
		return in.runDef(inst, rt)
	case "print":
		return in.runPrint(rest, rt)
	case "assert":
		return in.runAssert(rest, rt)
	case "match":
		return in.runMatch(rest, rt)
	case "eval":
		_, err := rt.Scope.Eval(rest)
		return err
	case "configure":
		return in.runConfigure(rest, rt)
	case "call":
		_, err := in.runCall(rest, rt, false)
		return err
	case "spawn":
		return in.runSpawn(rest, rt)
	case "abort":
		return errAbort
	case "embed":
		return in.runEmbed(rest, rt)
	case "sleep":
		return in.runSleep(rest)
	default:
		return fmt.Errorf("unknown instruction: %s", inst)
	}
}

func splitKeyword(inst string) (keyword, rest string) {
	inst = strings.TrimSpace(inst)
	if i := strings.IndexAny(inst, " \t"); i != -1 {
		return inst[:i], strings.TrimSpace(inst[i+1:])
	}
	return inst, ""
}

// evalExpr evaluates an expression, wrapping object literals in parentheses
// so "{ a: 1 }" is an object and not a block statement.
func evalExpr(rt *engine.ScenarioRuntime, expr string) (interface{}, error) {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "{") {
		expr = "(" + expr + ")"
	}
	return rt.Scope.Eval(expr)
}

// runDef binds a variable. The right-hand side is either a call instruction
// (isolated scope, result map bound) or a JS expression.
func (in *Interp) runDef(inst string, rt *engine.ScenarioRuntime) error {
	m := defPattern.FindStringSubmatch(inst)
	if m == nil {
		return fmt.Errorf("invalid def syntax: %s", inst)
	}
	name, rhs := m[1], strings.TrimSpace(m[2])
	if callRest, ok := strings.CutPrefix(rhs, "call "); ok {
		value, err := in.runCall(strings.TrimSpace(callRest), rt, true)
		if err != nil {
			return err
		}
		rt.Scope.SetVariable(name, value)
		return nil
	}
	value, err := evalExpr(rt, rhs)
	if err != nil {
		return err
	}
	rt.Scope.SetVariable(name, value)
	return nil
}

func (in *Interp) runPrint(rest string, rt *engine.ScenarioRuntime) error {
	if rest == "" {
		rt.Logger.Print("[print]")
		return nil
	}
	value, err := evalExpr(rt, rest)
	if err != nil {
		return err
	}
	rt.Logger.Print(fmt.Sprintf("[print] %v", value))
	return nil
}

func (in *Interp) runAssert(rest string, rt *engine.ScenarioRuntime) error {
	ok, err := rt.Scope.EvalBool(rest)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("assert failed: %s", rest)
	}
	return nil
}

func (in *Interp) runMatch(rest string, rt *engine.ScenarioRuntime) error {
	op := " == "
	negate := false
	idx := strings.Index(rest, op)
	if idx == -1 {
		op = " != "
		negate = true
		idx = strings.Index(rest, op)
	}
	if idx == -1 {
		return fmt.Errorf("invalid match syntax: %s", rest)
	}
	lhsExpr := strings.TrimSpace(rest[:idx])
	rhsExpr := strings.TrimSpace(rest[idx+len(op):])
	lhs, err := evalExpr(rt, lhsExpr)
	if err != nil {
		return err
	}
	rhs, err := evalExpr(rt, rhsExpr)
	if err != nil {
		return err
	}
	equal := matchValues(lhs, rhs)
	if equal == negate {
		return fmt.Errorf("match failed: %s, actual: %v, expected: %v", rest, lhs, rhs)
	}
	return nil
}

func (in *Interp) runConfigure(rest string, rt *engine.ScenarioRuntime) error {
	idx := strings.Index(rest, "=")
	if idx == -1 {
		return fmt.Errorf("invalid configure syntax: %s", rest)
	}
	key := strings.TrimSpace(rest[:idx])
	expr := strings.TrimSpace(rest[idx+1:])
	cfg := rt.Scope.Config
	switch key {
	case "abortedStepsShouldPass":
		v, err := rt.Scope.EvalBool(expr)
		if err != nil {
			return err
		}
		cfg.AbortedStepsShouldPass = v
	case "showAllSteps":
		v, err := rt.Scope.EvalBool(expr)
		if err != nil {
			return err
		}
		cfg.ShowAllSteps = v
	case "showLog":
		v, err := rt.Scope.EvalBool(expr)
		if err != nil {
			return err
		}
		cfg.ShowLog = v
	case "afterScenario":
		cfg.AfterScenario = expr
	default:
		return fmt.Errorf("unknown configure key: %s", key)
	}
	return nil
}

func (in *Interp) runEmbed(rest string, rt *engine.ScenarioRuntime) error {
	expr := rest
	resourceType := core.ResourceText
	if idx := strings.LastIndex(rest, " as "); idx != -1 {
		expr = strings.TrimSpace(rest[:idx])
		resourceType = core.ResourceType(strings.TrimSpace(rest[idx+4:]))
	}
	value, err := evalExpr(rt, expr)
	if err != nil {
		return err
	}
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		data = []byte(fmt.Sprintf("%v", v))
	}
	_, err = rt.Embed(data, resourceType)
	return err
}

func (in *Interp) runSleep(rest string) error {
	millis, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return fmt.Errorf("invalid sleep duration: %s", rest)
	}
	time.Sleep(time.Duration(millis) * time.Millisecond)
	return nil
}

// matchValues compares two evaluated values, treating numeric types as
// equal when their values are equal regardless of Go representation.
func matchValues(lhs, rhs interface{}) bool {
	if lf, lok := toFloat(lhs); lok {
		rf, rok := toFloat(rhs)
		return rok && lf == rf
	}
	switch l := lhs.(type) {
	case map[string]interface{}:
		r, ok := rhs.(map[string]interface{})
		if !ok || len(l) != len(r) {
			return false
		}
		for k, lv := range l {
			rv, ok := r[k]
			if !ok || !matchValues(lv, rv) {
				return false
			}
		}
		return true
	case []interface{}:
		r, ok := rhs.([]interface{})
		if !ok || len(l) != len(r) {
			return false
		}
		for i := range l {
			if !matchValues(l[i], r[i]) {
				return false
			}
		}
		return true
	default:
		return lhs == rhs
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
