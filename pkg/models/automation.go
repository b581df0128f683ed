package models

import (
	"strings"
	"time"
)

// ScheduleType controls when an automation runs.
type ScheduleType string

const (
	ScheduleManual   ScheduleType = "manual"
	ScheduleInterval ScheduleType = "interval"
)

// AutomationStatus is the lifecycle state of a stored automation.
type AutomationStatus string

const (
	AutomationActive    AutomationStatus = "active"
	AutomationPaused    AutomationStatus = "paused"
	AutomationCompleted AutomationStatus = "completed"
)

// SourceMode says where an automation gathers its material.
type SourceMode string

const (
	SourceWorkspace SourceMode = "workspace"
	SourceWeb       SourceMode = "web"
	SourceMixed     SourceMode = "mixed"
)

// OutputMode says how an automation writes its results.
type OutputMode string

const (
	OutputSingleNote   OutputMode = "single_note"
	OutputPerItemNotes OutputMode = "per_item_notes"
)

// DedupeStrategy controls how repeated items across runs are collapsed.
type DedupeStrategy string

const (
	DedupeNone    DedupeStrategy = "none"
	DedupeByURL   DedupeStrategy = "by_url"
	DedupeByTitle DedupeStrategy = "by_title"
)

// TaskSource describes the inputs of an automation.
type TaskSource struct {
	Mode     SourceMode `json:"mode"`
	Queries  []string   `json:"queries"`
	FeedURLs []string   `json:"feed_urls"`
}

// TaskOutput describes the shape of what an automation writes.
type TaskOutput struct {
	Mode          OutputMode `json:"mode"`
	TitleTemplate string     `json:"title_template"`
}

// TaskDedupe describes duplicate suppression.
type TaskDedupe struct {
	Strategy   DedupeStrategy `json:"strategy"`
	WindowDays int            `json:"window_days"`
}

// TaskDestination is where automation output lands.
type TaskDestination struct {
	FolderID   string `json:"folder_id"`
	FolderName string `json:"folder_name"`
}

// TaskSpec is the normalized configuration of an automation.
// Values returned by Normalized never have empty fields.
type TaskSpec struct {
	Source      TaskSource      `json:"source"`
	Output      TaskOutput      `json:"output"`
	Dedupe      TaskDedupe      `json:"dedupe"`
	Destination TaskDestination `json:"destination"`
}

const (
	defaultTitleTemplate   = "{{task}} - {{date}}"
	defaultDestinationName = "Automations"
	defaultDedupeWindow    = 7
	maxDedupeWindow        = 365
)

// Normalized returns a copy of the spec with every field defaulted.
func (s TaskSpec) Normalized() TaskSpec {
	out := TaskSpec{}

	switch SourceMode(strings.ToLower(strings.TrimSpace(string(s.Source.Mode)))) {
	case SourceWeb:
		out.Source.Mode = SourceWeb
	case SourceMixed:
		out.Source.Mode = SourceMixed
	default:
		out.Source.Mode = SourceWorkspace
	}
	out.Source.Queries = compactStrings(s.Source.Queries)
	out.Source.FeedURLs = compactStrings(s.Source.FeedURLs)

	switch OutputMode(strings.ToLower(strings.TrimSpace(string(s.Output.Mode)))) {
	case OutputPerItemNotes:
		out.Output.Mode = OutputPerItemNotes
	default:
		out.Output.Mode = OutputSingleNote
	}
	out.Output.TitleTemplate = strings.TrimSpace(s.Output.TitleTemplate)
	if out.Output.TitleTemplate == "" {
		out.Output.TitleTemplate = defaultTitleTemplate
	}

	switch DedupeStrategy(strings.ToLower(strings.TrimSpace(string(s.Dedupe.Strategy)))) {
	case DedupeNone:
		out.Dedupe.Strategy = DedupeNone
	case DedupeByURL:
		out.Dedupe.Strategy = DedupeByURL
	case DedupeByTitle:
		out.Dedupe.Strategy = DedupeByTitle
	default:
		if out.Source.Mode == SourceWorkspace {
			out.Dedupe.Strategy = DedupeByTitle
		} else {
			out.Dedupe.Strategy = DedupeByURL
		}
	}
	out.Dedupe.WindowDays = s.Dedupe.WindowDays
	if out.Dedupe.WindowDays <= 0 {
		out.Dedupe.WindowDays = defaultDedupeWindow
	}
	if out.Dedupe.WindowDays > maxDedupeWindow {
		out.Dedupe.WindowDays = maxDedupeWindow
	}

	out.Destination.FolderID = strings.TrimSpace(s.Destination.FolderID)
	out.Destination.FolderName = strings.TrimSpace(s.Destination.FolderName)
	if out.Destination.FolderName == "" {
		out.Destination.FolderName = defaultDestinationName
	}
	return out
}

// RequiresExternalSource reports whether the spec needs web or feed retrieval.
func (s TaskSpec) RequiresExternalSource() bool {
	return s.Source.Mode == SourceWeb || s.Source.Mode == SourceMixed
}

func compactStrings(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// TaskProposal is a draft automation the model presents for confirmation.
type TaskProposal struct {
	Title                  string       `json:"title"`
	Prompt                 string       `json:"prompt"`
	ScopeFolder            string       `json:"scope_folder,omitempty"`
	ScheduleType           ScheduleType `json:"schedule_type"`
	IntervalMinutes        int          `json:"interval_minutes,omitempty"`
	Timezone               string       `json:"timezone"`
	NextRunAt              *time.Time   `json:"next_run_at,omitempty"`
	MaxActionsPerRun       int          `json:"max_actions_per_run"`
	MaxConsecutiveFailures int          `json:"max_consecutive_failures"`
	DryRun                 bool         `json:"dry_run"`
	Spec                   *TaskSpec    `json:"spec,omitempty"`
	ProposalSignature      string       `json:"proposal_signature,omitempty"`
}

// TaskSetupState is the per-turn view of the task setup workflow. It is never persisted.
type TaskSetupState struct {
	Phase                     string        `json:"phase"`
	Active                    bool          `json:"active"`
	SawTaskToolInTurn         bool          `json:"saw_task_tool_in_turn"`
	SawTaskProposalInTurn     bool          `json:"saw_task_proposal_in_turn"`
	AcceptedProposal          *TaskProposal `json:"accepted_proposal,omitempty"`
	AcceptedProposalSignature string        `json:"accepted_proposal_signature,omitempty"`

	// Proposal is the draft proposed in this turn, if any. Clients echo it
	// back as the accepted proposal once the user agrees.
	Proposal          *TaskProposal `json:"proposal,omitempty"`
	ProposalSignature string        `json:"proposal_signature,omitempty"`
}

// Automation is a stored, schedulable task definition.
type Automation struct {
	ID                     string           `json:"id"`
	WorkspaceID            string           `json:"workspace_id"`
	CreatedByUserID        string           `json:"created_by_user_id"`
	Title                  string           `json:"title"`
	Prompt                 string           `json:"prompt"`
	ScopeFolder            string           `json:"scope_folder,omitempty"`
	ScheduleType           ScheduleType     `json:"schedule_type"`
	IntervalMinutes        int              `json:"interval_minutes,omitempty"`
	Timezone               string           `json:"timezone"`
	NextRunAt              *time.Time       `json:"next_run_at,omitempty"`
	LastRunAt              *time.Time       `json:"last_run_at,omitempty"`
	Status                 AutomationStatus `json:"status"`
	MaxActionsPerRun       int              `json:"max_actions_per_run"`
	MaxConsecutiveFailures int              `json:"max_consecutive_failures"`
	ConsecutiveFailures    int              `json:"consecutive_failures"`
	DryRun                 bool             `json:"dry_run"`
	// HasSpec is false when the automation was created without an explicit spec.
	HasSpec   bool      `json:"has_spec"`
	Spec      TaskSpec  `json:"spec"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunStatus is the state of one automation run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunTrigger says what started a run.
type RunTrigger string

const (
	TriggerManual   RunTrigger = "manual"
	TriggerSchedule RunTrigger = "schedule"
)

// RunMutation is one committed side effect observed during a run.
type RunMutation struct {
	Tool           string `json:"tool"`
	CallID         string `json:"call_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Summary        string `json:"summary,omitempty"`
	DryRun         bool   `json:"dry_run,omitempty"`
}

// WebSource is a URL surfaced by a web retrieval tool or a citation.
type WebSource struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// WebSearchCall records one web retrieval invocation.
type WebSearchCall struct {
	Tool        string `json:"tool"`
	CallID      string `json:"call_id"`
	Query       string `json:"query,omitempty"`
	ResultCount int    `json:"result_count"`
	Status      string `json:"status"`
}

// RunOutput is the human-readable digest of a run, rebuilt from its event log.
type RunOutput struct {
	Text           string          `json:"text"`
	MutationCount  int             `json:"mutation_count"`
	Mutations      []RunMutation   `json:"mutations"`
	WebSources     []WebSource     `json:"web_sources"`
	WebSearchCalls []WebSearchCall `json:"web_search_calls"`

	// ActionsUsed and ActionsRemaining report the run's action budget.
	ActionsUsed      int `json:"actions_used"`
	ActionsRemaining int `json:"actions_remaining"`
}

// AutomationRun is one execution of an automation.
type AutomationRun struct {
	ID                string      `json:"id"`
	TaskID            string      `json:"task_id"`
	WorkspaceID       string      `json:"workspace_id"`
	Trigger           RunTrigger  `json:"trigger"`
	TriggeredByUserID string      `json:"triggered_by_user_id,omitempty"`
	Status            RunStatus   `json:"status"`
	Summary           string      `json:"summary,omitempty"`
	Error             string      `json:"error,omitempty"`
	Output            RunOutput   `json:"output"`
	Trace             []ToolTrace `json:"trace"`
	StartedAt         time.Time   `json:"started_at"`
	FinishedAt        *time.Time  `json:"finished_at,omitempty"`
}
