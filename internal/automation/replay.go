package automation

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/haasonsaas/agentcore/internal/agent"
	"github.com/haasonsaas/agentcore/internal/toolargs"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// Replay rebuilds a run's output from its recorded events. Nothing is
// re-executed.
//
// Text is the answer of the final round: tokens streamed before a round's
// tool calls are dropped. Mutations are the successful mutating calls,
// deduplicated by idempotency key; simulated dry-run calls are listed but
// not counted in MutationCount.
func Replay(events []agent.Event) models.RunOutput {
	out := emptyOutput()
	var text strings.Builder
	arguments := make(map[string]string)
	seen := make(map[string]bool)

	for _, e := range events {
		switch e.Type {
		case agent.EventToken:
			if p, ok := e.Data.(agent.TokenPayload); ok {
				text.WriteString(p.Delta)
			}
		case agent.EventToolCall:
			text.Reset()
			if p, ok := e.Data.(agent.ToolCallPayload); ok {
				arguments[p.CallID] = p.Arguments
			}
		case agent.EventToolResult:
			p, ok := e.Data.(agent.ToolResultPayload)
			if !ok {
				continue
			}
			if toolargs.IsWebSource(p.Name) {
				out.WebSearchCalls = append(out.WebSearchCalls, webSearchCall(p, arguments[p.CallID]))
			}
			if !p.OK || !p.Mutating || p.IdempotencyKey == "" || seen[p.IdempotencyKey] {
				continue
			}
			seen[p.IdempotencyKey] = true
			output := gjson.ParseBytes(p.Output)
			m := models.RunMutation{
				Tool:           p.Name,
				CallID:         p.CallID,
				IdempotencyKey: p.IdempotencyKey,
				Summary:        summarize(output),
				DryRun:         output.Get("dry_run").Bool(),
			}
			out.Mutations = append(out.Mutations, m)
			if !m.DryRun {
				out.MutationCount++
			}
		}
	}

	out.Text = strings.TrimSpace(text.String())
	if sources := agent.WebSourcesFromEvents(events); len(sources) > 0 {
		out.WebSources = sources
	}
	return out
}

func webSearchCall(p agent.ToolResultPayload, args string) models.WebSearchCall {
	call := models.WebSearchCall{
		Tool:   p.Name,
		CallID: p.CallID,
		Status: string(models.TraceSuccess),
	}
	if gjson.Valid(args) {
		parsed := gjson.Parse(args)
		call.Query = firstString(parsed, "query", "q", "url")
	}
	if !p.OK {
		call.Status = string(models.TraceError)
		if p.ErrorKind == agent.KindValidation {
			call.Status = string(models.TraceValidationError)
		}
		return call
	}
	call.ResultCount = len(agent.ExtractWebSources(p.Name, string(p.Output)))
	return call
}

func summarize(output gjson.Result) string {
	if output.Get("dry_run").Bool() {
		output = output.Get("arguments")
	}
	return firstString(output, "title", "name", "id", "noteId", "taskId")
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := strings.TrimSpace(doc.Get(path).String()); v != "" {
			return v
		}
	}
	return ""
}
