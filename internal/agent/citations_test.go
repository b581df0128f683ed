package agent

import (
	"testing"

	"github.com/haasonsaas/agentcore/internal/toolargs"
	"github.com/haasonsaas/agentcore/pkg/models"
)

func TestExtractCitations(t *testing.T) {
	tests := []struct {
		name string
		resp *CompletedResponse
		want []string
	}{
		{name: "nil response", resp: nil},
		{
			name: "annotations win over text",
			resp: &CompletedResponse{
				Text: "see https://ignored.example",
				Annotations: []Annotation{
					{Type: "url_citation", URL: "https://a.example", Title: "A"},
					{Type: "file_citation", URL: "https://file.example"},
					{Type: "url_citation", URL: "https://a.example"},
				},
			},
			want: []string{"https://a.example"},
		},
		{
			name: "markdown then bare urls",
			resp: &CompletedResponse{Text: "Read [B](https://b.example/x) and https://c.example/y."},
			want: []string{"https://b.example/x", "https://c.example/y"},
		},
		{
			name: "duplicates collapse",
			resp: &CompletedResponse{Text: "https://d.example, then https://d.example!"},
			want: []string{"https://d.example"},
		},
		{name: "no urls", resp: &CompletedResponse{Text: "plain answer"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCitations(tt.resp)
			if len(got) != len(tt.want) {
				t.Fatalf("citations = %+v, want %v", got, tt.want)
			}
			for i, url := range tt.want {
				if got[i].URL != url {
					t.Errorf("citation[%d] = %q, want %q", i, got[i].URL, url)
				}
			}
		})
	}
}

func TestExtractWebSources(t *testing.T) {
	tests := []struct {
		name   string
		tool   string
		output string
		want   int
	}{
		{"results array", toolargs.ToolWebSearch, `{"results":[{"url":"https://a","title":"A"},{"link":"https://b"}]}`, 2},
		{"top level array", toolargs.ToolFetchFeed, `[{"href":"https://c"},{"title":"no url"}]`, 1},
		{"entries", toolargs.ToolFetchFeed, `{"entries":[{"url":"https://d"}]}`, 1},
		{"non web tool", toolargs.ToolSearchNotes, `[{"url":"https://e"}]`, 0},
		{"invalid json", toolargs.ToolWebSearch, `not json`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractWebSources(tt.tool, tt.output); len(got) != tt.want {
				t.Errorf("sources = %+v, want %d", got, tt.want)
			}
		})
	}
}

func TestDedupeWebSources(t *testing.T) {
	got := DedupeWebSources([]models.WebSource{
		{URL: "https://a", Title: "first"},
		{URL: "https://b"},
		{URL: "https://a", Title: "second"},
	})
	if len(got) != 2 || got[0].Title != "first" {
		t.Errorf("deduped = %+v", got)
	}
}
