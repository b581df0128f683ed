package agent

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/haasonsaas/agentcore/internal/toolargs"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// Citation is a URL referenced by an answer.
type Citation struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

var (
	markdownLinkPattern = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+)\)`)
	bareURLPattern      = regexp.MustCompile(`https?://[^\s<>()\[\]"']+`)
)

// ExtractCitations returns the URL citations of a completed response.
// Provider url_citation annotations win; without them, markdown links and
// bare URLs in the text are used. Results are deduplicated in order.
func ExtractCitations(resp *CompletedResponse) []Citation {
	if resp == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []Citation
	add := func(url, title string) {
		url = strings.TrimRight(url, ".,;:!?")
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		out = append(out, Citation{URL: url, Title: strings.TrimSpace(title)})
	}

	for _, a := range resp.Annotations {
		if a.Type == "url_citation" && a.URL != "" {
			add(a.URL, a.Title)
		}
	}
	if len(out) > 0 {
		return out
	}

	text := resp.Text
	for _, m := range markdownLinkPattern.FindAllStringSubmatch(text, -1) {
		add(m[2], m[1])
	}
	text = markdownLinkPattern.ReplaceAllString(text, "")
	for _, url := range bareURLPattern.FindAllString(text, -1) {
		add(url, "")
	}
	return out
}

// webSourceLists are the result arrays web tools may return.
var webSourceLists = []string{"results", "items", "sources", "entries"}

// ExtractWebSources reads source URLs from the JSON output of a web tool.
func ExtractWebSources(tool, output string) []models.WebSource {
	if !toolargs.IsWebSource(tool) || !gjson.Valid(output) {
		return nil
	}
	doc := gjson.Parse(output)
	var out []models.WebSource
	collect := func(item gjson.Result) {
		url := firstNonEmpty(item.Get("url").String(), item.Get("link").String(), item.Get("href").String())
		if url == "" {
			return
		}
		out = append(out, models.WebSource{URL: url, Title: item.Get("title").String()})
	}
	if doc.IsArray() {
		doc.ForEach(func(_, item gjson.Result) bool {
			collect(item)
			return true
		})
		return out
	}
	for _, list := range webSourceLists {
		doc.Get(list).ForEach(func(_, item gjson.Result) bool {
			collect(item)
			return true
		})
	}
	return out
}

// DedupeWebSources removes repeated URLs, keeping first occurrences.
func DedupeWebSources(sources []models.WebSource) []models.WebSource {
	seen := make(map[string]bool, len(sources))
	out := make([]models.WebSource, 0, len(sources))
	for _, s := range sources {
		if seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		out = append(out, s)
	}
	return out
}
