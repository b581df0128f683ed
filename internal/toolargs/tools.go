package toolargs

// Tool names understood by the normalizer.
const (
	ToolSearchNotes  = "search_notes"
	ToolGetNote      = "get_note"
	ToolListFolders  = "list_folders"
	ToolCreateNote   = "create_note"
	ToolUpdateNote   = "update_note"
	ToolDeleteNote   = "delete_note"
	ToolCreateFolder = "create_folder"
	ToolMoveNote     = "move_note"
	ToolWebSearch    = "web_search"
	ToolFetchFeed    = "fetch_feed"
	ToolAskQuestion  = "ask_question"
	ToolProposeTask  = "propose_task"
	ToolCreateTask   = "create_task"
	ToolUpdateTask   = "update_task"
	ToolListTasks    = "list_tasks"
	ToolCompleteTask = "complete_task"
	ToolDeleteTask   = "delete_task"
)

// Length caps, in runes.
const (
	MaxTitleLen    = 200
	MaxContentLen  = 20000
	MaxPromptLen   = 4000
	MaxQueryLen    = 500
	MaxIDLen       = 128
	MaxFolderLen   = 200
	MaxQuestionLen = 1000
	MaxURLLen      = 2048
)

// Numeric ranges.
const (
	MinIntervalMinutes        = 5
	MaxIntervalMinutes        = 10080
	DefaultIntervalMinutes    = 1440
	MinActionsPerRun          = 1
	MaxActionsPerRun          = 25
	DefaultActionsPerRun      = 10
	MinConsecutiveFailures    = 1
	MaxConsecutiveFailures    = 10
	DefaultConsecutiveFailure = 3
)

type toolClass uint8

const (
	classRead toolClass = 1 << iota
	classMutating
	classWeb
	classQuestion
	classTaskLifecycle
)

var toolClasses = map[string]toolClass{
	ToolSearchNotes:  classRead,
	ToolGetNote:      classRead,
	ToolListFolders:  classRead,
	ToolCreateNote:   classMutating,
	ToolUpdateNote:   classMutating,
	ToolDeleteNote:   classMutating,
	ToolCreateFolder: classMutating,
	ToolMoveNote:     classMutating,
	ToolWebSearch:    classRead | classWeb,
	ToolFetchFeed:    classRead | classWeb,
	ToolAskQuestion:  classQuestion,
	ToolProposeTask:  classTaskLifecycle,
	ToolCreateTask:   classTaskLifecycle | classMutating,
	ToolUpdateTask:   classTaskLifecycle | classMutating,
	ToolListTasks:    classTaskLifecycle,
	ToolCompleteTask: classTaskLifecycle | classMutating,
	ToolDeleteTask:   classTaskLifecycle | classMutating,
}

// Known reports whether name is a registered tool.
func Known(name string) bool {
	_, ok := toolClasses[name]
	return ok
}

// IsMutating reports whether the tool writes workspace or automation state.
func IsMutating(name string) bool {
	return toolClasses[name]&classMutating != 0
}

// IsTaskLifecycle reports whether the tool belongs to the automation setup family.
func IsTaskLifecycle(name string) bool {
	return toolClasses[name]&classTaskLifecycle != 0
}

// IsWebSource reports whether the tool retrieves external content.
func IsWebSource(name string) bool {
	return toolClasses[name]&classWeb != 0
}

// IsQuestion reports whether the tool asks the user something.
func IsQuestion(name string) bool {
	return toolClasses[name]&classQuestion != 0
}

// Names returns every registered tool name in a stable order.
func Names() []string {
	return append([]string(nil), orderedNames...)
}

var orderedNames = []string{
	ToolSearchNotes, ToolGetNote, ToolListFolders,
	ToolCreateNote, ToolUpdateNote, ToolDeleteNote, ToolCreateFolder, ToolMoveNote,
	ToolWebSearch, ToolFetchFeed,
	ToolAskQuestion,
	ToolProposeTask, ToolCreateTask, ToolUpdateTask, ToolListTasks, ToolCompleteTask, ToolDeleteTask,
}
