package toolargs

import (
	"net/url"
	"strings"
	"time"

	"github.com/haasonsaas/agentcore/pkg/models"
)

type normalizer func(f *fields) Args

var normalizers = map[string]normalizer{
	ToolSearchNotes:  normalizeSearchNotes,
	ToolGetNote:      normalizeGetNote,
	ToolListFolders:  normalizeListFolders,
	ToolCreateNote:   normalizeCreateNote,
	ToolUpdateNote:   normalizeUpdateNote,
	ToolDeleteNote:   normalizeDeleteNote,
	ToolCreateFolder: normalizeCreateFolder,
	ToolMoveNote:     normalizeMoveNote,
	ToolWebSearch:    normalizeWebSearch,
	ToolFetchFeed:    normalizeFetchFeed,
	ToolAskQuestion:  normalizeAskQuestion,
	ToolProposeTask:  normalizeProposeTask,
	ToolCreateTask:   normalizeCreateTask,
	ToolUpdateTask:   normalizeUpdateTask,
	ToolListTasks:    normalizeListTasks,
	ToolCompleteTask: normalizeCompleteTask,
	ToolDeleteTask:   normalizeDeleteTask,
}

// Normalize validates and canonicalizes the raw arguments of one tool call.
// Unknown fields are dropped, numbers are clamped into range and strings are
// trimmed and capped. Unknown tools and missing required fields fail with a
// *ValidationError.
func Normalize(toolName string, raw map[string]any) (Args, error) {
	fn, ok := normalizers[toolName]
	if !ok {
		return nil, &ValidationError{Tool: toolName, Reason: "tool is not available", Err: ErrUnknownTool}
	}
	f := newFields(toolName, raw)
	args := fn(f)
	if f.err != nil {
		return nil, f.err
	}
	return args, nil
}

func normalizeSearchNotes(f *fields) Args {
	return &SearchNotesArgs{
		Query:  f.requiredStr(MaxQueryLen, "query", "q"),
		Folder: f.str(MaxIDLen, "folder", "folderId", "folder_id"),
		Limit:  f.clampedInt(1, 50, 10, "limit"),
	}
}

func normalizeGetNote(f *fields) Args {
	return &GetNoteArgs{NoteID: f.requiredStr(MaxIDLen, "noteId", "note_id", "id")}
}

func normalizeListFolders(f *fields) Args {
	return &ListFoldersArgs{ParentID: f.str(MaxIDLen, "parentId", "parent_id")}
}

func normalizeCreateNote(f *fields) Args {
	return &CreateNoteArgs{
		Title:    f.requiredStr(MaxTitleLen, "title"),
		Content:  f.str(MaxContentLen, "content", "body"),
		FolderID: f.str(MaxIDLen, "folderId", "folder_id"),
	}
}

func normalizeUpdateNote(f *fields) Args {
	args := &UpdateNoteArgs{
		NoteID: f.requiredStr(MaxIDLen, "noteId", "note_id", "id"),
		Append: f.flag("append"),
	}
	if _, ok := f.lookup("title"); ok {
		title := f.str(MaxTitleLen, "title")
		if title != "" {
			args.Title = &title
		}
	}
	if _, ok := f.lookup("content", "body"); ok {
		content := f.str(MaxContentLen, "content", "body")
		args.Content = &content
	}
	if args.Title == nil && args.Content == nil {
		f.fail(malformed(ToolUpdateNote, "title", "or content must be provided"))
	}
	return args
}

func normalizeDeleteNote(f *fields) Args {
	return &DeleteNoteArgs{NoteID: f.requiredStr(MaxIDLen, "noteId", "note_id", "id")}
}

func normalizeCreateFolder(f *fields) Args {
	return &CreateFolderArgs{
		Name:     f.requiredStr(MaxFolderLen, "name", "title"),
		ParentID: f.str(MaxIDLen, "parentId", "parent_id"),
	}
}

func normalizeMoveNote(f *fields) Args {
	return &MoveNoteArgs{
		NoteID:   f.requiredStr(MaxIDLen, "noteId", "note_id"),
		FolderID: f.requiredStr(MaxIDLen, "folderId", "folder_id"),
	}
}

func normalizeWebSearch(f *fields) Args {
	return &WebSearchArgs{
		Query:      f.requiredStr(MaxQueryLen, "query", "q"),
		MaxResults: f.clampedInt(1, 10, 5, "maxResults", "max_results", "limit"),
	}
}

func normalizeFetchFeed(f *fields) Args {
	raw := f.requiredStr(MaxURLLen, "url", "feedUrl", "feed_url")
	if raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			f.fail(malformed(ToolFetchFeed, "url", "must be an absolute http(s) URL"))
		}
	}
	return &FetchFeedArgs{
		URL:   raw,
		Limit: f.clampedInt(1, 50, 20, "limit"),
	}
}

func normalizeAskQuestion(f *fields) Args {
	return &AskQuestionArgs{
		Question: f.requiredStr(MaxQuestionLen, "question", "prompt"),
		Options:  f.strList(6, MaxTitleLen, "options", "choices"),
	}
}

func normalizeProposeTask(f *fields) Args {
	return &ProposeTaskArgs{TaskDraft: normalizeDraft(f)}
}

func normalizeCreateTask(f *fields) Args {
	return &CreateTaskArgs{
		TaskDraft: normalizeDraft(f),
		Confirmed: f.flag("confirmed", "userConfirmed"),
	}
}

// NormalizeDraft canonicalizes a draft that did not come from a raw tool call,
// so that proposals from any source sign identically.
func NormalizeDraft(d TaskDraft) TaskDraft {
	raw := map[string]any{
		"title":                  d.Title,
		"prompt":                 d.Prompt,
		"scopeFolder":            d.ScopeFolder,
		"scheduleType":           string(d.ScheduleType),
		"timezone":               d.Timezone,
		"maxActionsPerRun":       float64(d.MaxActionsPerRun),
		"maxConsecutiveFailures": float64(d.MaxConsecutiveFailures),
		"dryRun":                 d.DryRun,
	}
	if d.IntervalMinutes != 0 {
		raw["intervalMinutes"] = float64(d.IntervalMinutes)
	}
	if d.MaxActionsPerRun == 0 {
		delete(raw, "maxActionsPerRun")
	}
	if d.MaxConsecutiveFailures == 0 {
		delete(raw, "maxConsecutiveFailures")
	}
	out := normalizeDraft(newFields(ToolProposeTask, raw))
	if d.Spec != nil {
		spec := d.Spec.Normalized()
		out.Spec = &spec
	}
	return out
}

func normalizeDraft(f *fields) TaskDraft {
	d := TaskDraft{
		Title:       f.requiredStr(MaxTitleLen, "title", "name"),
		Prompt:      f.requiredStr(MaxPromptLen, "prompt", "instructions"),
		ScopeFolder: f.str(MaxFolderLen, "scopeFolder", "scope_folder", "folder"),
		DryRun:      f.flag("dryRun", "dry_run"),
	}

	interval := f.optionalClampedInt(MinIntervalMinutes, MaxIntervalMinutes, "intervalMinutes", "interval_minutes")
	switch models.ScheduleType(strings.ToLower(f.str(16, "scheduleType", "schedule_type"))) {
	case models.ScheduleInterval:
		d.ScheduleType = models.ScheduleInterval
	case models.ScheduleManual:
		d.ScheduleType = models.ScheduleManual
	default:
		if interval != nil {
			d.ScheduleType = models.ScheduleInterval
		} else {
			d.ScheduleType = models.ScheduleManual
		}
	}
	if d.ScheduleType == models.ScheduleInterval {
		d.IntervalMinutes = DefaultIntervalMinutes
		if interval != nil {
			d.IntervalMinutes = *interval
		}
	}

	d.Timezone = normalizeTimezone(f.str(64, "timezone", "tz"))
	d.MaxActionsPerRun = f.clampedInt(MinActionsPerRun, MaxActionsPerRun, DefaultActionsPerRun, "maxActionsPerRun", "max_actions_per_run")
	d.MaxConsecutiveFailures = f.clampedInt(MinConsecutiveFailures, MaxConsecutiveFailures, DefaultConsecutiveFailure, "maxConsecutiveFailures", "max_consecutive_failures")

	if obj, ok := f.object("spec"); ok {
		spec := normalizeSpec(f.nested(obj))
		d.Spec = &spec
	}
	return d
}

// normalizeTimezone falls back to UTC for names the runtime cannot load.
func normalizeTimezone(tz string) string {
	if tz == "" {
		return "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "UTC"
	}
	return tz
}

func normalizeSpec(f *fields) models.TaskSpec {
	var spec models.TaskSpec
	if src, ok := f.object("source"); ok {
		s := f.nested(src)
		spec.Source.Mode = models.SourceMode(strings.ToLower(s.str(16, "mode")))
		spec.Source.Queries = s.strList(10, MaxQueryLen, "queries", "query")
		spec.Source.FeedURLs = s.strList(20, MaxURLLen, "feedUrls", "feed_urls", "feeds")
	}
	if out, ok := f.object("output"); ok {
		o := f.nested(out)
		spec.Output.Mode = models.OutputMode(strings.ToLower(o.str(32, "mode")))
		spec.Output.TitleTemplate = o.str(MaxTitleLen, "titleTemplate", "title_template")
	}
	if dd, ok := f.object("dedupe"); ok {
		d := f.nested(dd)
		spec.Dedupe.Strategy = models.DedupeStrategy(strings.ToLower(d.str(16, "strategy")))
		spec.Dedupe.WindowDays = d.clampedInt(1, 365, 0, "windowDays", "window_days")
	}
	if dest, ok := f.object("destination"); ok {
		d := f.nested(dest)
		spec.Destination.FolderID = d.str(MaxIDLen, "folderId", "folder_id")
		spec.Destination.FolderName = d.str(MaxFolderLen, "folderName", "folder_name")
	}
	return spec.Normalized()
}

func normalizeUpdateTask(f *fields) Args {
	args := &UpdateTaskArgs{TaskID: f.requiredStr(MaxIDLen, "taskId", "task_id", "id")}
	if _, ok := f.lookup("title"); ok {
		if title := f.str(MaxTitleLen, "title"); title != "" {
			args.Title = &title
		}
	}
	if _, ok := f.lookup("prompt"); ok {
		if prompt := f.str(MaxPromptLen, "prompt"); prompt != "" {
			args.Prompt = &prompt
		}
	}
	args.IntervalMinutes = f.optionalClampedInt(MinIntervalMinutes, MaxIntervalMinutes, "intervalMinutes", "interval_minutes")
	args.MaxActionsPerRun = f.optionalClampedInt(MinActionsPerRun, MaxActionsPerRun, "maxActionsPerRun", "max_actions_per_run")
	args.DryRun = f.optionalBool("dryRun", "dry_run")
	if raw := strings.ToLower(f.str(16, "status")); raw != "" {
		switch status := models.AutomationStatus(raw); status {
		case models.AutomationActive, models.AutomationPaused:
			args.Status = &status
		default:
			f.fail(malformed(ToolUpdateTask, "status", "must be active or paused"))
		}
	}
	if args.Title == nil && args.Prompt == nil && args.IntervalMinutes == nil &&
		args.MaxActionsPerRun == nil && args.DryRun == nil && args.Status == nil {
		f.fail(malformed(ToolUpdateTask, "update", "must change at least one field"))
	}
	return args
}

func normalizeListTasks(f *fields) Args {
	args := &ListTasksArgs{}
	switch status := models.AutomationStatus(strings.ToLower(f.str(16, "status"))); status {
	case models.AutomationActive, models.AutomationPaused, models.AutomationCompleted:
		args.Status = status
	}
	return args
}

func normalizeCompleteTask(f *fields) Args {
	return &CompleteTaskArgs{TaskID: f.requiredStr(MaxIDLen, "taskId", "task_id", "id")}
}

func normalizeDeleteTask(f *fields) Args {
	return &DeleteTaskArgs{TaskID: f.requiredStr(MaxIDLen, "taskId", "task_id", "id")}
}
