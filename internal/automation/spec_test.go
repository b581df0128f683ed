package automation

import (
	"testing"

	"github.com/haasonsaas/agentcore/pkg/models"
)

func TestInferExternalSource(t *testing.T) {
	tests := []struct {
		title  string
		prompt string
		want   bool
	}{
		{"Morning news digest", "Collect what happened today", true},
		{"Digest", "Check https://example.com/changelog for updates", true},
		{"Research", "Search the web for papers on retrieval", true},
		{"Feeds", "Read my RSS feeds and summarize", true},
		{"Weekly review", "Summarize my meeting notes into a digest note", false},
		{"Tidy up", "Move notes tagged inbox into the Archive folder", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.title+"/"+tt.prompt, func(t *testing.T) {
			if got := InferExternalSource(tt.title, tt.prompt); got != tt.want {
				t.Errorf("InferExternalSource(%q, %q) = %v, want %v", tt.title, tt.prompt, got, tt.want)
			}
		})
	}
}

func TestNormalizeSpec(t *testing.T) {
	t.Run("explicit spec wins over wording", func(t *testing.T) {
		task := &models.Automation{
			Title:   "Latest news",
			HasSpec: true,
			Spec:    models.TaskSpec{Source: models.TaskSource{Mode: models.SourceWorkspace}},
		}
		spec := NormalizeSpec(task)
		if spec.Source.Mode != models.SourceWorkspace || RequiresExternalSource(task) {
			t.Fatalf("spec = %+v, want workspace source", spec.Source)
		}
		if spec.Output.Mode != models.OutputSingleNote || spec.Dedupe.WindowDays == 0 || spec.Destination.FolderName == "" {
			t.Errorf("spec not defaulted: %+v", spec)
		}
	})

	t.Run("implicit spec inferred from wording", func(t *testing.T) {
		task := &models.Automation{Title: "Latest AI headlines", Prompt: "Write a summary"}
		spec := NormalizeSpec(task)
		if spec.Source.Mode != models.SourceMixed {
			t.Errorf("Source.Mode = %q, want mixed", spec.Source.Mode)
		}
		if spec.Dedupe.Strategy != models.DedupeByURL {
			t.Errorf("Dedupe.Strategy = %q, want by_url", spec.Dedupe.Strategy)
		}
		if !RequiresExternalSource(task) {
			t.Error("RequiresExternalSource() = false, want true")
		}
	})

	t.Run("explicit web spec", func(t *testing.T) {
		task := &models.Automation{
			Title:   "Notes",
			HasSpec: true,
			Spec:    models.TaskSpec{Source: models.TaskSource{Mode: "WEB", Queries: []string{" go ", "go", ""}}},
		}
		spec := NormalizeSpec(task)
		if spec.Source.Mode != models.SourceWeb || len(spec.Source.Queries) != 1 {
			t.Errorf("spec.Source = %+v", spec.Source)
		}
	})
}
