package toolargs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

// Definition describes one tool to a model provider.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

var descriptions = map[string]string{
	ToolSearchNotes:  "Search notes in the workspace by text.",
	ToolGetNote:      "Read one note by id.",
	ToolListFolders:  "List folders, optionally under a parent folder.",
	ToolCreateNote:   "Create a note.",
	ToolUpdateNote:   "Change the title or content of a note.",
	ToolDeleteNote:   "Delete a note.",
	ToolCreateFolder: "Create a folder.",
	ToolMoveNote:     "Move a note into a folder.",
	ToolWebSearch:    "Search the web and return result titles, URLs and snippets.",
	ToolFetchFeed:    "Fetch recent entries from an RSS or Atom feed.",
	ToolAskQuestion:  "Ask the user a clarifying question.",
	ToolProposeTask:  "Propose a scheduled automation for the user to review. Does not create anything.",
	ToolCreateTask:   "Create the automation the user just approved. Arguments must match the accepted proposal exactly.",
	ToolUpdateTask:   "Change an existing automation.",
	ToolListTasks:    "List automations in the workspace.",
	ToolCompleteTask: "Mark an automation as completed so it no longer runs.",
	ToolDeleteTask:   "Delete an automation.",
}

var prototypes = map[string]Args{
	ToolSearchNotes:  &SearchNotesArgs{},
	ToolGetNote:      &GetNoteArgs{},
	ToolListFolders:  &ListFoldersArgs{},
	ToolCreateNote:   &CreateNoteArgs{},
	ToolUpdateNote:   &UpdateNoteArgs{},
	ToolDeleteNote:   &DeleteNoteArgs{},
	ToolCreateFolder: &CreateFolderArgs{},
	ToolMoveNote:     &MoveNoteArgs{},
	ToolWebSearch:    &WebSearchArgs{},
	ToolFetchFeed:    &FetchFeedArgs{},
	ToolAskQuestion:  &AskQuestionArgs{},
	ToolProposeTask:  &ProposeTaskArgs{},
	ToolCreateTask:   &CreateTaskArgs{},
	ToolUpdateTask:   &UpdateTaskArgs{},
	ToolListTasks:    &ListTasksArgs{},
	ToolCompleteTask: &CompleteTaskArgs{},
	ToolDeleteTask:   &DeleteTaskArgs{},
}

var (
	definitionsOnce sync.Once
	definitions     map[string]Definition
	definitionsErr  error
)

// Definitions returns the provider-facing definition of every tool. Parameter
// schemas are reflected from the argument structs and compiled once so that a
// malformed schema is caught at startup instead of by the provider.
func Definitions() (map[string]Definition, error) {
	definitionsOnce.Do(func() {
		definitions, definitionsErr = buildDefinitions()
	})
	return definitions, definitionsErr
}

// Select returns the definitions for names, in the given order.
func Select(names []string) ([]Definition, error) {
	all, err := Definitions()
	if err != nil {
		return nil, err
	}
	out := make([]Definition, 0, len(names))
	for _, name := range names {
		def, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
		}
		out = append(out, def)
	}
	return out, nil
}

func buildDefinitions() (map[string]Definition, error) {
	reflector := &jsonschema.Reflector{
		Anonymous:                  true,
		DoNotReference:             true,
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: true,
		AllowAdditionalProperties:  true,
	}
	out := make(map[string]Definition, len(prototypes))
	for name, proto := range prototypes {
		schema := reflector.Reflect(proto)
		schema.Version = ""
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("marshal schema for %s: %w", name, err)
		}
		if err := compileSchema(name, raw); err != nil {
			return nil, err
		}
		out[name] = Definition{Name: name, Description: descriptions[name], Parameters: raw}
	}
	return out, nil
}

func compileSchema(name string, raw []byte) error {
	compiler := validator.NewCompiler()
	resource := "mem://tools/" + name + ".json"
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("load schema for %s: %w", name, err)
	}
	if _, err := compiler.Compile(resource); err != nil {
		return fmt.Errorf("compile schema for %s: %w", name, err)
	}
	return nil
}
