// Package workspace provides an in-memory note and folder store exposed as
// tool executors. It backs the dev server and tests when no external
// workspace service is configured.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/haasonsaas/agentcore/internal/harness"
	"github.com/haasonsaas/agentcore/internal/toolargs"
)

var (
	ErrNoteNotFound   = errors.New("note not found")
	ErrFolderNotFound = errors.New("folder not found")
)

const snippetLen = 160

// Note is a workspace document.
type Note struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	FolderID    string    `json:"folderId,omitempty"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Folder groups notes.
type Folder struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Name        string    `json:"name"`
	ParentID    string    `json:"parentId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SearchHit is one search_notes result.
type SearchHit struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	FolderID string `json:"folderId,omitempty"`
	Snippet  string `json:"snippet"`
}

// Memory is an in-memory workspace shared by all workspace ids.
type Memory struct {
	mu      sync.RWMutex
	notes   map[string]*Note
	folders map[string]*Folder
	now     func() time.Time
}

// Option configures a Memory workspace.
type Option func(*Memory)

// WithClock sets the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory creates an empty workspace.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		notes:   make(map[string]*Note),
		folders: make(map[string]*Folder),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Executors returns the note and folder tool executors.
func (m *Memory) Executors() map[string]harness.Executor {
	return map[string]harness.Executor{
		toolargs.ToolSearchNotes:  m.searchNotes,
		toolargs.ToolGetNote:      m.getNote,
		toolargs.ToolListFolders:  m.listFolders,
		toolargs.ToolCreateNote:   m.createNote,
		toolargs.ToolUpdateNote:   m.updateNote,
		toolargs.ToolDeleteNote:   m.deleteNote,
		toolargs.ToolCreateFolder: m.createFolder,
		toolargs.ToolMoveNote:     m.moveNote,
	}
}

// Register adds the executors to r.
func (m *Memory) Register(r *harness.Registry) error {
	return r.RegisterAll(m.Executors())
}

// Notes returns the notes of a workspace ordered by creation time.
func (m *Memory) Notes(workspaceID string) []Note {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Note
	for _, n := range m.notes {
		if n.WorkspaceID == workspaceID {
			out = append(out, *n)
		}
	}
	sortNotes(out)
	return out
}

func sortNotes(notes []Note) {
	sort.Slice(notes, func(i, j int) bool {
		if !notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].CreatedAt.Before(notes[j].CreatedAt)
		}
		return notes[i].ID < notes[j].ID
	})
}

func (m *Memory) searchNotes(_ context.Context, args toolargs.Args, actor harness.Actor) (any, error) {
	a := args.(*toolargs.SearchNotesArgs)
	fold := cases.Fold()
	query := fold.String(a.Query)

	m.mu.RLock()
	var matched []Note
	for _, n := range m.notes {
		if n.WorkspaceID != actor.WorkspaceID {
			continue
		}
		if a.Folder != "" && n.FolderID != a.Folder {
			continue
		}
		if strings.Contains(fold.String(n.Title), query) || strings.Contains(fold.String(n.Content), query) {
			matched = append(matched, *n)
		}
	}
	m.mu.RUnlock()

	sortNotes(matched)
	if a.Limit > 0 && len(matched) > a.Limit {
		matched = matched[:a.Limit]
	}
	hits := make([]SearchHit, 0, len(matched))
	for _, n := range matched {
		hits = append(hits, SearchHit{ID: n.ID, Title: n.Title, FolderID: n.FolderID, Snippet: snippet(n.Content)})
	}
	return map[string]any{"results": hits, "count": len(hits)}, nil
}

func snippet(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= snippetLen {
		return string(runes)
	}
	return string(runes[:snippetLen]) + "…"
}

func (m *Memory) getNote(_ context.Context, args toolargs.Args, actor harness.Actor) (any, error) {
	a := args.(*toolargs.GetNoteArgs)
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, err := m.noteLocked(actor.WorkspaceID, a.NoteID)
	if err != nil {
		return nil, err
	}
	return *n, nil
}

func (m *Memory) listFolders(_ context.Context, args toolargs.Args, actor harness.Actor) (any, error) {
	a := args.(*toolargs.ListFoldersArgs)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Folder{}
	for _, f := range m.folders {
		if f.WorkspaceID == actor.WorkspaceID && f.ParentID == a.ParentID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return map[string]any{"folders": out, "count": len(out)}, nil
}

func (m *Memory) createNote(_ context.Context, args toolargs.Args, actor harness.Actor) (any, error) {
	a := args.(*toolargs.CreateNoteArgs)
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.FolderID != "" {
		if _, err := m.folderLocked(actor.WorkspaceID, a.FolderID); err != nil {
			return nil, err
		}
	}
	now := m.now().UTC()
	n := &Note{
		ID:          uuid.NewString(),
		WorkspaceID: actor.WorkspaceID,
		Title:       a.Title,
		Content:     a.Content,
		FolderID:    a.FolderID,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.notes[n.ID] = n
	return *n, nil
}

func (m *Memory) updateNote(_ context.Context, args toolargs.Args, actor harness.Actor) (any, error) {
	a := args.(*toolargs.UpdateNoteArgs)
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.noteLocked(actor.WorkspaceID, a.NoteID)
	if err != nil {
		return nil, err
	}
	if a.Title != nil {
		n.Title = *a.Title
	}
	if a.Content != nil {
		if a.Append && n.Content != "" {
			n.Content += "\n\n" + *a.Content
		} else {
			n.Content = *a.Content
		}
	}
	n.UpdatedAt = m.now().UTC()
	return *n, nil
}

func (m *Memory) deleteNote(_ context.Context, args toolargs.Args, actor harness.Actor) (any, error) {
	a := args.(*toolargs.DeleteNoteArgs)
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.noteLocked(actor.WorkspaceID, a.NoteID)
	if err != nil {
		return nil, err
	}
	delete(m.notes, n.ID)
	return map[string]any{"id": n.ID, "title": n.Title, "deleted": true}, nil
}

func (m *Memory) createFolder(_ context.Context, args toolargs.Args, actor harness.Actor) (any, error) {
	a := args.(*toolargs.CreateFolderArgs)
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ParentID != "" {
		if _, err := m.folderLocked(actor.WorkspaceID, a.ParentID); err != nil {
			return nil, err
		}
	}
	for _, f := range m.folders {
		if f.WorkspaceID == actor.WorkspaceID && f.ParentID == a.ParentID && strings.EqualFold(f.Name, a.Name) {
			return *f, nil
		}
	}
	f := &Folder{
		ID:          uuid.NewString(),
		WorkspaceID: actor.WorkspaceID,
		Name:        a.Name,
		ParentID:    a.ParentID,
		CreatedAt:   m.now().UTC(),
	}
	m.folders[f.ID] = f
	return *f, nil
}

func (m *Memory) moveNote(_ context.Context, args toolargs.Args, actor harness.Actor) (any, error) {
	a := args.(*toolargs.MoveNoteArgs)
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.noteLocked(actor.WorkspaceID, a.NoteID)
	if err != nil {
		return nil, err
	}
	if _, err := m.folderLocked(actor.WorkspaceID, a.FolderID); err != nil {
		return nil, err
	}
	n.FolderID = a.FolderID
	n.UpdatedAt = m.now().UTC()
	return *n, nil
}

func (m *Memory) noteLocked(workspaceID, id string) (*Note, error) {
	n, ok := m.notes[id]
	if !ok || n.WorkspaceID != workspaceID {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	}
	return n, nil
}

func (m *Memory) folderLocked(workspaceID, id string) (*Folder, error) {
	f, ok := m.folders[id]
	if !ok || f.WorkspaceID != workspaceID {
		return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, id)
	}
	return f, nil
}
