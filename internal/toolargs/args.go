package toolargs

import (
	"github.com/haasonsaas/agentcore/pkg/models"
)

// Args is the normalized, typed argument record of one tool call.
type Args interface {
	ToolName() string
}

type SearchNotesArgs struct {
	Query  string `json:"query" jsonschema:"required" jsonschema_description:"Text to search for in note titles and bodies."`
	Folder string `json:"folder,omitempty" jsonschema_description:"Restrict the search to a folder id."`
	Limit  int    `json:"limit" jsonschema:"minimum=1,maximum=50"`
}

func (*SearchNotesArgs) ToolName() string { return ToolSearchNotes }

type GetNoteArgs struct {
	NoteID string `json:"noteId" jsonschema:"required"`
}

func (*GetNoteArgs) ToolName() string { return ToolGetNote }

type ListFoldersArgs struct {
	ParentID string `json:"parentId,omitempty"`
}

func (*ListFoldersArgs) ToolName() string { return ToolListFolders }

type CreateNoteArgs struct {
	Title    string `json:"title" jsonschema:"required"`
	Content  string `json:"content"`
	FolderID string `json:"folderId,omitempty"`
}

func (*CreateNoteArgs) ToolName() string { return ToolCreateNote }

type UpdateNoteArgs struct {
	NoteID  string  `json:"noteId" jsonschema:"required"`
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
	Append  bool    `json:"append" jsonschema_description:"Append content instead of replacing it."`
}

func (*UpdateNoteArgs) ToolName() string { return ToolUpdateNote }

type DeleteNoteArgs struct {
	NoteID string `json:"noteId" jsonschema:"required"`
}

func (*DeleteNoteArgs) ToolName() string { return ToolDeleteNote }

type CreateFolderArgs struct {
	Name     string `json:"name" jsonschema:"required"`
	ParentID string `json:"parentId,omitempty"`
}

func (*CreateFolderArgs) ToolName() string { return ToolCreateFolder }

type MoveNoteArgs struct {
	NoteID   string `json:"noteId" jsonschema:"required"`
	FolderID string `json:"folderId" jsonschema:"required"`
}

func (*MoveNoteArgs) ToolName() string { return ToolMoveNote }

type WebSearchArgs struct {
	Query      string `json:"query" jsonschema:"required"`
	MaxResults int    `json:"maxResults" jsonschema:"minimum=1,maximum=10"`
}

func (*WebSearchArgs) ToolName() string { return ToolWebSearch }

type FetchFeedArgs struct {
	URL   string `json:"url" jsonschema:"required"`
	Limit int    `json:"limit" jsonschema:"minimum=1,maximum=50"`
}

func (*FetchFeedArgs) ToolName() string { return ToolFetchFeed }

type AskQuestionArgs struct {
	Question string   `json:"question" jsonschema:"required"`
	Options  []string `json:"options,omitempty" jsonschema:"maxItems=6"`
}

func (*AskQuestionArgs) ToolName() string { return ToolAskQuestion }

// TaskDraft is the shared shape of propose_task and create_task.
type TaskDraft struct {
	Title                  string              `json:"title" jsonschema:"required"`
	Prompt                 string              `json:"prompt" jsonschema:"required" jsonschema_description:"Instructions replayed on every run."`
	ScopeFolder            string              `json:"scopeFolder,omitempty"`
	ScheduleType           models.ScheduleType `json:"scheduleType" jsonschema:"enum=manual,enum=interval"`
	IntervalMinutes        int                 `json:"intervalMinutes,omitempty" jsonschema:"minimum=5,maximum=10080"`
	Timezone               string              `json:"timezone"`
	MaxActionsPerRun       int                 `json:"maxActionsPerRun" jsonschema:"minimum=1,maximum=25"`
	MaxConsecutiveFailures int                 `json:"maxConsecutiveFailures" jsonschema:"minimum=1,maximum=10"`
	DryRun                 bool                `json:"dryRun"`
	Spec                   *models.TaskSpec    `json:"spec,omitempty"`
}

// Proposal converts the draft into an unsigned proposal.
func (d TaskDraft) Proposal() models.TaskProposal {
	p := models.TaskProposal{
		Title:                  d.Title,
		Prompt:                 d.Prompt,
		ScopeFolder:            d.ScopeFolder,
		ScheduleType:           d.ScheduleType,
		IntervalMinutes:        d.IntervalMinutes,
		Timezone:               d.Timezone,
		MaxActionsPerRun:       d.MaxActionsPerRun,
		MaxConsecutiveFailures: d.MaxConsecutiveFailures,
		DryRun:                 d.DryRun,
	}
	if d.Spec != nil {
		spec := *d.Spec
		p.Spec = &spec
	}
	return p
}

type ProposeTaskArgs struct {
	TaskDraft
}

func (*ProposeTaskArgs) ToolName() string { return ToolProposeTask }

type CreateTaskArgs struct {
	TaskDraft
	Confirmed bool `json:"confirmed" jsonschema_description:"Set only after the user explicitly approved the proposal."`
}

func (*CreateTaskArgs) ToolName() string { return ToolCreateTask }

type UpdateTaskArgs struct {
	TaskID           string                   `json:"taskId" jsonschema:"required"`
	Title            *string                  `json:"title,omitempty"`
	Prompt           *string                  `json:"prompt,omitempty"`
	IntervalMinutes  *int                     `json:"intervalMinutes,omitempty" jsonschema:"minimum=5,maximum=10080"`
	MaxActionsPerRun *int                     `json:"maxActionsPerRun,omitempty" jsonschema:"minimum=1,maximum=25"`
	DryRun           *bool                    `json:"dryRun,omitempty"`
	Status           *models.AutomationStatus `json:"status,omitempty" jsonschema:"enum=active,enum=paused"`
}

func (*UpdateTaskArgs) ToolName() string { return ToolUpdateTask }

type ListTasksArgs struct {
	Status models.AutomationStatus `json:"status,omitempty" jsonschema:"enum=active,enum=paused,enum=completed"`
}

func (*ListTasksArgs) ToolName() string { return ToolListTasks }

type CompleteTaskArgs struct {
	TaskID string `json:"taskId" jsonschema:"required"`
}

func (*CompleteTaskArgs) ToolName() string { return ToolCompleteTask }

type DeleteTaskArgs struct {
	TaskID string `json:"taskId" jsonschema:"required"`
}

func (*DeleteTaskArgs) ToolName() string { return ToolDeleteTask }
