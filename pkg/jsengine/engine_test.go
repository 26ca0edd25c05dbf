package jsengine

import (
	"strings"
	"testing"

	"github.com/devicelab-dev/scenario-runner/pkg/logger"
)

func newTestEngine() (*Engine, *logger.StringAppender) {
	appender := logger.NewStringAppender()
	return New(logger.New(appender)), appender
}

func TestEval(t *testing.T) {
	e, _ := newTestEngine()
	e.SetVariable("a", 2)

	got, err := e.Eval("a + 3")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if n, ok := got.(int64); !ok || n != 5 {
		t.Errorf("result = %v (%T), want 5", got, got)
	}

	if _, err := e.Eval("this is not js"); err == nil {
		t.Error("invalid script should fail")
	}
}

func TestEvalBoolTruthiness(t *testing.T) {
	e, _ := newTestEngine()
	cases := []struct {
		expr string
		want bool
	}{
		{"1 == 1", true},
		{"1 == 2", false},
		{"'non-empty'", true},
		{"''", false},
		{"null", false},
	}
	for _, tc := range cases {
		got, err := e.EvalBool(tc.expr)
		if err != nil {
			t.Fatalf("EvalBool(%q): %v", tc.expr, err)
		}
		if got != tc.want {
			t.Errorf("EvalBool(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvalTemplate(t *testing.T) {
	e, _ := newTestEngine()
	e.SetVariable("name", "bob")

	got, err := e.EvalTemplate("hello ${name}")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if got != "hello bob" {
		t.Errorf("template = %q", got)
	}

	// already backtick-quoted
	got, err = e.EvalTemplate("`num ${1 + 1}`")
	if err != nil {
		t.Fatal(err)
	}
	if got != "num 2" {
		t.Errorf("template = %q", got)
	}
}

func TestPlaceholderDetection(t *testing.T) {
	if !HasPlaceholder("user ${name}") || HasPlaceholder("plain") {
		t.Error("HasPlaceholder misclassified")
	}
	if !IsTemplateLiteral("`x`") || IsTemplateLiteral("x") || IsTemplateLiteral("`") {
		t.Error("IsTemplateLiteral misclassified")
	}
}

func TestEvalConfigScript(t *testing.T) {
	t.Run("function form", func(t *testing.T) {
		e, _ := newTestEngine()
		vars, err := e.EvalConfigScript("function() { return { baseUrl: 'http://x', retries: 3 } }", "config.js")
		if err != nil {
			t.Fatalf("config: %v", err)
		}
		if vars["baseUrl"] != "http://x" {
			t.Errorf("baseUrl = %v", vars["baseUrl"])
		}
	})

	t.Run("map form", func(t *testing.T) {
		e, _ := newTestEngine()
		vars, err := e.EvalConfigScript("{ key: 'value' }", "config.js")
		if err != nil {
			t.Fatal(err)
		}
		if vars["key"] != "value" {
			t.Errorf("key = %v", vars["key"])
		}
	})

	t.Run("throw propagates", func(t *testing.T) {
		e, _ := newTestEngine()
		_, err := e.EvalConfigScript("function() { throw new Error('nope') }", "config.js")
		if err == nil || !strings.Contains(err.Error(), "config.js") {
			t.Errorf("err = %v, want wrapped with display name", err)
		}
	})

	t.Run("non-map result warns and yields nothing", func(t *testing.T) {
		e, appender := newTestEngine()
		vars, err := e.EvalConfigScript("function() { return 42 }", "config.js")
		if err != nil || vars != nil {
			t.Errorf("vars=%v err=%v, want nil/nil", vars, err)
		}
		if !strings.Contains(appender.Collect(), "config script did not produce") {
			t.Error("expected a warning about the non-map result")
		}
	})
}

func TestEvalTagSelector(t *testing.T) {
	e, _ := newTestEngine()
	tags := []string{"smoke", "users"}

	cases := []struct {
		selector string
		want     bool
	}{
		{"", true},
		{"   ", true},
		{"tags.includes('smoke')", true},
		{"tags.includes('slow')", false},
		{"tags.includes('smoke') && !tags.includes('wip')", true},
	}
	for _, tc := range cases {
		got, err := e.EvalTagSelector(tc.selector, tags)
		if err != nil {
			t.Fatalf("selector %q: %v", tc.selector, err)
		}
		if got != tc.want {
			t.Errorf("selector %q = %v, want %v", tc.selector, got, tc.want)
		}
	}

	if _, err := e.EvalTagSelector("not valid js(", tags); err == nil {
		t.Error("invalid selector should fail")
	}
}

func TestConsoleGoesToScenarioLog(t *testing.T) {
	e, appender := newTestEngine()
	if _, err := e.Eval("console.log('from js', 42)"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(appender.Collect(), "from js 42") {
		t.Error("console.log output must land in the scenario log")
	}
}

func TestJSONHelper(t *testing.T) {
	e, _ := newTestEngine()
	got, err := e.Eval(`json('{"a": 1}').a`)
	if err != nil {
		t.Fatalf("json helper: %v", err)
	}
	if n, ok := got.(int64); !ok || n != 1 {
		t.Errorf("result = %v (%T), want 1", got, got)
	}
}

func TestCopyValue(t *testing.T) {
	src := map[string]interface{}{
		"list": []interface{}{1, 2},
		"map":  map[string]interface{}{"k": "v"},
	}

	shallow := CopyValue(src, false).(map[string]interface{})
	shallow["extra"] = true
	if _, ok := src["extra"]; !ok {
		t.Error("shallow copy must return the same value")
	}
	delete(src, "extra")

	deep := CopyValue(src, true).(map[string]interface{})
	deep["map"].(map[string]interface{})["k"] = "changed"
	if src["map"].(map[string]interface{})["k"] != "v" {
		t.Error("deep copy must not share nested maps")
	}
	deep["list"].([]interface{})[0] = 99
	if src["list"].([]interface{})[0] != 1 {
		t.Error("deep copy must not share nested slices")
	}
}
