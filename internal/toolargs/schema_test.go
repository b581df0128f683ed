package toolargs

import (
	"encoding/json"
	"testing"
)

func TestDefinitions_CoverEveryTool(t *testing.T) {
	defs, err := Definitions()
	if err != nil {
		t.Fatalf("Definitions() error = %v", err)
	}
	for _, name := range Names() {
		def, ok := defs[name]
		if !ok {
			t.Errorf("missing definition for %s", name)
			continue
		}
		if def.Description == "" {
			t.Errorf("%s has no description", name)
		}
		var schema map[string]any
		if err := json.Unmarshal(def.Parameters, &schema); err != nil {
			t.Errorf("%s schema is not JSON: %v", name, err)
			continue
		}
		if schema["type"] != "object" {
			t.Errorf("%s schema type = %v, want object", name, schema["type"])
		}
	}
}

func TestDefinitions_RequiredFields(t *testing.T) {
	defs, err := Select([]string{ToolCreateNote})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	var schema struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(defs[0].Parameters, &schema); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "title" {
		t.Errorf("required = %v, want [title]", schema.Required)
	}
}

func TestSelect_UnknownTool(t *testing.T) {
	if _, err := Select([]string{"nope"}); err == nil {
		t.Error("expected error for unknown tool")
	}
}
