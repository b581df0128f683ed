package toolargs

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/haasonsaas/agentcore/pkg/models"
)

func TestNormalize_UnknownTool(t *testing.T) {
	_, err := Normalize("launch_rocket", map[string]any{})
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("error = %v, want ErrUnknownTool", err)
	}
	if !IsValidationError(err) {
		t.Errorf("expected a validation error, got %T", err)
	}
}

func TestNormalize_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		tool  string
		raw   map[string]any
		field string
	}{
		{name: "create note without title", tool: ToolCreateNote, raw: map[string]any{"content": "x"}, field: "title"},
		{name: "blank title", tool: ToolCreateNote, raw: map[string]any{"title": "   "}, field: "title"},
		{name: "search without query", tool: ToolSearchNotes, raw: map[string]any{}, field: "query"},
		{name: "move without folder", tool: ToolMoveNote, raw: map[string]any{"noteId": "n1"}, field: "folderId"},
		{name: "propose without prompt", tool: ToolProposeTask, raw: map[string]any{"title": "Digest"}, field: "prompt"},
		{name: "delete task without id", tool: ToolDeleteTask, raw: map[string]any{}, field: "taskId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.tool, tt.raw)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestNormalize_DropsUnknownFields(t *testing.T) {
	args, err := Normalize(ToolCreateNote, map[string]any{
		"title":      "  Weekly review ",
		"content":    "body",
		"priority":   "high",
		"extraStuff": map[string]any{"nested": true},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	note, ok := args.(*CreateNoteArgs)
	if !ok {
		t.Fatalf("args type = %T, want *CreateNoteArgs", args)
	}
	if note.Title != "Weekly review" {
		t.Errorf("title = %q, want trimmed", note.Title)
	}
	key, err := IdempotencyKey(note)
	if err != nil {
		t.Fatalf("IdempotencyKey() error = %v", err)
	}
	if strings.Contains(key, "priority") || strings.Contains(key, "extraStuff") {
		t.Errorf("key %q leaked unknown fields", key)
	}
}

func TestNormalize_ClampsNumbers(t *testing.T) {
	tests := []struct {
		name         string
		raw          map[string]any
		wantInterval int
		wantActions  int
	}{
		{name: "below range", raw: map[string]any{"intervalMinutes": 1.0, "maxActionsPerRun": 0.0}, wantInterval: 5, wantActions: 1},
		{name: "above range", raw: map[string]any{"intervalMinutes": 999999.0, "maxActionsPerRun": 400.0}, wantInterval: 10080, wantActions: 25},
		{name: "numeric strings", raw: map[string]any{"intervalMinutes": "60", "maxActionsPerRun": "7"}, wantInterval: 60, wantActions: 7},
		{name: "in range", raw: map[string]any{"intervalMinutes": 30.0, "maxActionsPerRun": 12.0}, wantInterval: 30, wantActions: 12},
		{name: "huge json number", raw: map[string]any{"intervalMinutes": json.Number("1e20"), "maxActionsPerRun": json.Number("1e20")}, wantInterval: 10080, wantActions: 25},
		{name: "huge string", raw: map[string]any{"intervalMinutes": "1e19", "maxActionsPerRun": "1e19"}, wantInterval: 10080, wantActions: 25},
		{name: "huge float", raw: map[string]any{"intervalMinutes": 1e30, "maxActionsPerRun": 1e30}, wantInterval: 10080, wantActions: 25},
		{name: "overflowing literal", raw: map[string]any{"intervalMinutes": "1e400", "maxActionsPerRun": json.Number("1e400")}, wantInterval: 10080, wantActions: 25},
		{name: "infinity", raw: map[string]any{"intervalMinutes": "Infinity", "maxActionsPerRun": math.Inf(1)}, wantInterval: 10080, wantActions: 25},
		{name: "huge negative", raw: map[string]any{"intervalMinutes": -1e20, "maxActionsPerRun": "-Infinity"}, wantInterval: 5, wantActions: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := map[string]any{"title": "Digest", "prompt": "Summarize"}
			for k, v := range tt.raw {
				raw[k] = v
			}
			args, err := Normalize(ToolProposeTask, raw)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			draft := args.(*ProposeTaskArgs).TaskDraft
			if draft.ScheduleType != models.ScheduleInterval {
				t.Errorf("schedule type = %q, want interval", draft.ScheduleType)
			}
			if draft.IntervalMinutes != tt.wantInterval {
				t.Errorf("interval = %d, want %d", draft.IntervalMinutes, tt.wantInterval)
			}
			if draft.MaxActionsPerRun != tt.wantActions {
				t.Errorf("max actions = %d, want %d", draft.MaxActionsPerRun, tt.wantActions)
			}
		})
	}
}

func TestNormalize_CapsStrings(t *testing.T) {
	long := strings.Repeat("é", MaxTitleLen+50)
	args, err := Normalize(ToolCreateNote, map[string]any{"title": long})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	title := args.(*CreateNoteArgs).Title
	if n := len([]rune(title)); n != MaxTitleLen {
		t.Errorf("title rune length = %d, want %d", n, MaxTitleLen)
	}
}

func TestNormalize_MalformedNested(t *testing.T) {
	_, err := Normalize(ToolProposeTask, map[string]any{
		"title":  "Digest",
		"prompt": "Summarize",
		"spec":   "web please",
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if ve.Field != "spec" {
		t.Errorf("field = %q, want spec", ve.Field)
	}

	_, err = Normalize(ToolProposeTask, map[string]any{
		"title":  "Digest",
		"prompt": "Summarize",
		"spec":   map[string]any{"source": []any{"web"}},
	})
	if !errors.As(err, &ve) || ve.Field != "source" {
		t.Fatalf("error = %v, want source validation error", err)
	}
}

func TestNormalize_SpecIsFullyDefaulted(t *testing.T) {
	args, err := Normalize(ToolProposeTask, map[string]any{
		"title":  "AI news",
		"prompt": "Collect AI news",
		"spec":   map[string]any{"source": map[string]any{"mode": "WEB", "queries": []any{"ai news", " ", "ai news"}}},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	spec := args.(*ProposeTaskArgs).Spec
	if spec == nil {
		t.Fatal("spec should be set")
	}
	if spec.Source.Mode != models.SourceWeb {
		t.Errorf("source mode = %q, want web", spec.Source.Mode)
	}
	if len(spec.Source.Queries) != 1 {
		t.Errorf("queries = %v, want one deduplicated query", spec.Source.Queries)
	}
	if spec.Output.Mode != models.OutputSingleNote || spec.Dedupe.Strategy != models.DedupeByURL ||
		spec.Dedupe.WindowDays == 0 || spec.Destination.FolderName == "" || spec.Output.TitleTemplate == "" {
		t.Errorf("spec not fully defaulted: %+v", spec)
	}
}

func TestNormalize_ManualScheduleDropsInterval(t *testing.T) {
	args, err := Normalize(ToolCreateTask, map[string]any{
		"title":           "Digest",
		"prompt":          "Summarize",
		"scheduleType":    "manual",
		"intervalMinutes": 60.0,
		"confirmed":       true,
		"timezone":        "Not/AZone",
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	create := args.(*CreateTaskArgs)
	if create.IntervalMinutes != 0 {
		t.Errorf("interval = %d, want 0 for manual", create.IntervalMinutes)
	}
	if !create.Confirmed {
		t.Error("confirmed should be true")
	}
	if create.Timezone != "UTC" {
		t.Errorf("timezone = %q, want UTC fallback", create.Timezone)
	}
}

func TestNormalize_UpdateRequiresChange(t *testing.T) {
	if _, err := Normalize(ToolUpdateTask, map[string]any{"taskId": "t1"}); !IsValidationError(err) {
		t.Fatalf("error = %v, want validation error", err)
	}
	if _, err := Normalize(ToolUpdateTask, map[string]any{"taskId": "t1", "status": "deleted"}); !IsValidationError(err) {
		t.Fatalf("error = %v, want validation error for bad status", err)
	}
	args, err := Normalize(ToolUpdateTask, map[string]any{"taskId": "t1", "status": "paused"})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if st := args.(*UpdateTaskArgs).Status; st == nil || *st != models.AutomationPaused {
		t.Errorf("status = %v, want paused", st)
	}
}

func TestNormalize_FetchFeedRequiresHTTPURL(t *testing.T) {
	if _, err := Normalize(ToolFetchFeed, map[string]any{"url": "file:///etc/passwd"}); !IsValidationError(err) {
		t.Fatalf("error = %v, want validation error", err)
	}
	args, err := Normalize(ToolFetchFeed, map[string]any{"url": "https://example.com/feed.xml", "limit": 500.0})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got := args.(*FetchFeedArgs).Limit; got != 50 {
		t.Errorf("limit = %d, want 50", got)
	}
}

func TestNormalizeDraft_MatchesToolPath(t *testing.T) {
	args, err := Normalize(ToolProposeTask, map[string]any{
		"title":           "Digest ",
		"prompt":          "Summarize",
		"intervalMinutes": 2.0,
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	fromTool := args.(*ProposeTaskArgs).TaskDraft
	again := NormalizeDraft(fromTool)
	a, _ := StableJSON(fromTool)
	b, _ := StableJSON(again)
	if a != b {
		t.Errorf("NormalizeDraft changed a normalized draft:\n%s\n%s", a, b)
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		mutating  bool
		lifecycle bool
		web       bool
	}{
		{ToolCreateNote, true, false, false},
		{ToolSearchNotes, false, false, false},
		{ToolWebSearch, false, false, true},
		{ToolFetchFeed, false, false, true},
		{ToolProposeTask, false, true, false},
		{ToolCreateTask, true, true, false},
		{ToolListTasks, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMutating(tt.name); got != tt.mutating {
				t.Errorf("IsMutating = %v, want %v", got, tt.mutating)
			}
			if got := IsTaskLifecycle(tt.name); got != tt.lifecycle {
				t.Errorf("IsTaskLifecycle = %v, want %v", got, tt.lifecycle)
			}
			if got := IsWebSource(tt.name); got != tt.web {
				t.Errorf("IsWebSource = %v, want %v", got, tt.web)
			}
		})
	}
	if !IsQuestion(ToolAskQuestion) {
		t.Error("ask_question should be a question tool")
	}
	if Known("nope") {
		t.Error("unknown tool reported as known")
	}
	if len(Names()) != len(normalizers) {
		t.Errorf("Names() has %d entries, registry has %d", len(Names()), len(normalizers))
	}
}
