// Package jsengine provides JavaScript evaluation for scenario-runner:
// step expressions, layered config scripts, dynamic scenario names and tag
// selectors.
package jsengine

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/devicelab-dev/scenario-runner/pkg/logger"
)

// Engine wraps a goja runtime bound to one scenario scope. It is not safe
// for concurrent use; serialization is the caller's concern.
type Engine struct {
	runtime *goja.Runtime
	log     *logger.Logger
}

// New creates a JS engine. Console output is routed into the scenario
// logger so it lands in the captured step log.
func New(log *logger.Logger) *Engine {
	if log == nil {
		log = logger.New(logger.NopAppender{})
	}
	e := &Engine{
		runtime: goja.New(),
		log:     log,
	}
	e.setupBuiltins()
	return e
}

// setupBuiltins registers console, json and http helpers.
func (e *Engine) setupBuiltins() {
	e.setupConsole()
	e.runtime.Set("json", e.jsonFunc())
	e.runtime.Set("http", e.httpModule())
}

// setupConsole adds console.log, console.warn, console.error writing into
// the scenario log sink.
func (e *Engine) setupConsole() {
	makeConsoleFunc := func(emit func(format string, v ...interface{})) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = fmt.Sprintf("%v", arg.Export())
			}
			emit("%s", strings.Join(parts, " "))
			return goja.Undefined()
		}
	}

	console := e.runtime.NewObject()
	console.Set("log", makeConsoleFunc(e.log.Info))
	console.Set("warn", makeConsoleFunc(e.log.Warn))
	console.Set("error", makeConsoleFunc(e.log.Error))
	e.runtime.Set("console", console)
}

// jsonFunc returns the json() helper that parses a JSON string.
func (e *Engine) jsonFunc() func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("json requires 1 argument"))
		}
		str := call.Arguments[0].String()
		result, err := e.runtime.RunString(fmt.Sprintf("JSON.parse(%q)", str))
		if err != nil {
			panic(e.runtime.NewTypeError(fmt.Sprintf("invalid JSON: %v", err)))
		}
		return result
	}
}

// SetVariable binds a variable as a JS global.
func (e *Engine) SetVariable(name string, value interface{}) {
	e.runtime.Set(name, value)
}

// SetVariables binds multiple variables.
func (e *Engine) SetVariables(vars map[string]interface{}) {
	for k, v := range vars {
		e.SetVariable(k, v)
	}
}

// Eval evaluates a JavaScript expression and returns the exported result.
func (e *Engine) Eval(script string) (interface{}, error) {
	result, err := e.runtime.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("js eval error: %w", err)
	}
	return result.Export(), nil
}

// EvalBool evaluates an expression and coerces the result to a boolean
// using JS truthiness.
func (e *Engine) EvalBool(script string) (bool, error) {
	result, err := e.runtime.RunString(script)
	if err != nil {
		return false, fmt.Errorf("js eval error: %w", err)
	}
	return result.ToBoolean(), nil
}

// HasPlaceholder returns true when the text contains an embedded ${...}
// expression placeholder.
func HasPlaceholder(text string) bool {
	return strings.Contains(text, "${")
}

// IsTemplateLiteral returns true when the text is explicitly quoted as a
// backtick template.
func IsTemplateLiteral(text string) bool {
	return len(text) > 1 && text[0] == '`' && text[len(text)-1] == '`'
}

// EvalTemplate evaluates text as a JS template literal against the current
// variables and returns the resulting string. Used for dynamic scenario
// names.
func (e *Engine) EvalTemplate(text string) (string, error) {
	eval := text
	if !IsTemplateLiteral(eval) {
		eval = "`" + eval + "`"
	}
	result, err := e.runtime.RunString(eval)
	if err != nil {
		return "", fmt.Errorf("js template error: %w", err)
	}
	return result.String(), nil
}

// EvalConfigScript evaluates a config script and returns the variable map it
// produces. The script may be a function expression returning a map, or a
// plain map value.
func (e *Engine) EvalConfigScript(src, displayName string) (map[string]interface{}, error) {
	wrapped := "(" + strings.TrimSpace(src) + ")"
	value, err := e.runtime.RunString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", displayName, err)
	}
	if fn, ok := goja.AssertFunction(value); ok {
		value, err = fn(goja.Undefined())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", displayName, err)
		}
	}
	exported := value.Export()
	if exported == nil {
		return nil, nil
	}
	vars, ok := exported.(map[string]interface{})
	if !ok {
		e.log.Warn("config script did not produce a variable map: %s", displayName)
		return nil, nil
	}
	return vars, nil
}

// EvalTagSelector evaluates a tag selector expression against a tag set and
// returns the boolean result. The expression sees a "tags" array, e.g.
// "tags.includes('smoke') && !tags.includes('wip')". An empty selector
// matches everything.
func (e *Engine) EvalTagSelector(selector string, tags []string) (bool, error) {
	if strings.TrimSpace(selector) == "" {
		return true, nil
	}
	arr := make([]interface{}, len(tags))
	for i, t := range tags {
		arr[i] = t
	}
	e.runtime.Set("tags", arr)
	return e.EvalBool(selector)
}

// CopyValue returns a deep copy of a variable value when deep is true, or
// the value itself otherwise. Maps and slices are copied recursively; other
// values are treated as immutable.
func CopyValue(v interface{}, deep bool) interface{} {
	if !deep {
		return v
	}
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = CopyValue(item, true)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = CopyValue(item, true)
		}
		return out
	default:
		return v
	}
}
