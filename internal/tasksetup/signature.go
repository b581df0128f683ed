package tasksetup

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/haasonsaas/agentcore/internal/toolargs"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// Normalize canonicalizes a proposal: strings are NFC-normalized and trimmed,
// limits are clamped and the spec is fully defaulted.
func Normalize(p models.TaskProposal) models.TaskProposal {
	draft := toolargs.NormalizeDraft(toolargs.TaskDraft{
		Title:                  p.Title,
		Prompt:                 p.Prompt,
		ScopeFolder:            p.ScopeFolder,
		ScheduleType:           p.ScheduleType,
		IntervalMinutes:        p.IntervalMinutes,
		Timezone:               p.Timezone,
		MaxActionsPerRun:       p.MaxActionsPerRun,
		MaxConsecutiveFailures: p.MaxConsecutiveFailures,
		DryRun:                 p.DryRun,
		Spec:                   p.Spec,
	})
	out := draft.Proposal()
	if out.Spec == nil {
		spec := models.TaskSpec{}.Normalized()
		out.Spec = &spec
	}
	out.NextRunAt = p.NextRunAt
	out.ProposalSignature = p.ProposalSignature
	return out
}

// Signature is the content hash of a normalized proposal. NextRunAt and any
// existing signature are excluded.
func Signature(p models.TaskProposal) (string, error) {
	n := Normalize(p)
	n.NextRunAt = nil
	n.ProposalSignature = ""
	body, err := toolargs.StableJSON(n)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:]), nil
}
