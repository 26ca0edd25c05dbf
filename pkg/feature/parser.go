package feature

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Read parses a feature file. The path may carry a call suffix ("file.yaml:12",
// "file.yaml@tag", "file.yaml~name") which becomes the feature's call modifiers.
func Read(path string) (*Feature, error) {
	file, callLine, callTag, callName := ParsePath(path)
	data, err := os.ReadFile(file) //#nosec G304 -- user-provided feature file
	if err != nil {
		return nil, err
	}
	f, err := Parse(data, file)
	if err != nil {
		return nil, err
	}
	f.CallLine = callLine
	f.CallTag = callTag
	f.CallName = callName
	return f, nil
}

// Parse parses feature YAML. The node-level API is used so every step keeps
// its source line number, which selection-by-line and hot reload depend on.
func Parse(data []byte, path string) (*Feature, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse feature %s: %w", path, err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty feature file: %s", path)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("feature %s: expected a mapping at the top level", path)
	}

	f := &Feature{Path: path, CallLine: -1}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		value := root.Content[i+1]
		switch key {
		case "name":
			f.Name = value.Value
		case "tags":
			if err := value.Decode(&f.Tags); err != nil {
				return nil, fmt.Errorf("feature %s line %d: invalid tags: %w", path, value.Line, err)
			}
		case "background":
			steps, err := parseSteps(value, path)
			if err != nil {
				return nil, err
			}
			f.Background = steps
		case "scenarios":
			if value.Kind != yaml.SequenceNode {
				return nil, fmt.Errorf("feature %s line %d: scenarios must be a list", path, value.Line)
			}
			for _, node := range value.Content {
				scenarios, err := parseScenario(f, node, path)
				if err != nil {
					return nil, err
				}
				f.Scenarios = append(f.Scenarios, scenarios...)
			}
		}
	}

	if len(f.Scenarios) == 0 {
		return nil, fmt.Errorf("feature %s has no scenarios", path)
	}
	return f, nil
}

// parseScenario parses one scenario entry. A static outline expands to one
// scenario per example row; each generated scenario keeps the row's line so
// selection by line can address individual examples.
func parseScenario(f *Feature, node *yaml.Node, path string) ([]*Scenario, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("feature %s line %d: scenario must be a mapping", path, node.Line)
	}

	base := &Scenario{
		Feature:     f,
		Line:        node.Line,
		SectionLine: node.Line,
	}
	var exampleRows []*yaml.Node
	dynamicExpr := ""

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]
		switch key {
		case "name":
			base.Name = value.Value
		case "description":
			base.Description = value.Value
		case "tags":
			if err := value.Decode(&base.Tags); err != nil {
				return nil, fmt.Errorf("feature %s line %d: invalid tags: %w", path, value.Line, err)
			}
		case "steps":
			steps, err := parseSteps(value, path)
			if err != nil {
				return nil, err
			}
			base.Steps = steps
		case "examples":
			switch value.Kind {
			case yaml.SequenceNode:
				exampleRows = value.Content
			case yaml.ScalarNode:
				dynamicExpr = value.Value
			default:
				return nil, fmt.Errorf("feature %s line %d: examples must be a list or an expression", path, value.Line)
			}
		}
	}

	if dynamicExpr != "" {
		base.Dynamic = true
		base.DynamicExpr = dynamicExpr
		return []*Scenario{base}, nil
	}
	if exampleRows == nil {
		return []*Scenario{base}, nil
	}

	var expanded []*Scenario
	for idx, rowNode := range exampleRows {
		row := make(map[string]interface{})
		if err := rowNode.Decode(&row); err != nil {
			return nil, fmt.Errorf("feature %s line %d: invalid example row: %w", path, rowNode.Line, err)
		}
		sc := &Scenario{
			Feature:      f,
			Name:         base.Name,
			Description:  base.Description,
			Tags:         base.Tags,
			Line:         rowNode.Line,
			SectionLine:  base.SectionLine,
			Steps:        base.Steps,
			ExampleData:  row,
			ExampleIndex: idx,
		}
		expanded = append(expanded, sc)
	}
	return expanded, nil
}

func parseSteps(node *yaml.Node, path string) ([]*Step, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("feature %s line %d: steps must be a list", path, node.Line)
	}
	var steps []*Step
	for _, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("feature %s line %d: step must be a string", path, item.Line)
		}
		step := NewStep(item.Line, "")
		if err := step.UpdateFrom(item.Value); err != nil {
			return nil, fmt.Errorf("feature %s line %d: %w", path, item.Line, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}
