package options

import (
	"context"
	"fmt"
)

// Option is one selectable value at a level
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Loader produces a level's options for a given parent selection. The root
// level is called with an empty parent id.
type Loader func(ctx context.Context, parentID string) ([]Option, error)

// Level is one named tier in a hierarchy
type Level struct {
	Name string
	Load Loader
}

// Hierarchy is an ordered list of dependent levels
type Hierarchy struct {
	levels []Level
	index  map[string]int
}

// NewHierarchy builds a hierarchy from ordered levels. Level names must be
// unique and every level needs a loader.
func NewHierarchy(levels ...Level) (*Hierarchy, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("hierarchy needs at least one level")
	}
	index := make(map[string]int, len(levels))
	for i, level := range levels {
		if level.Name == "" {
			return nil, fmt.Errorf("level %d has no name", i)
		}
		if level.Load == nil {
			return nil, fmt.Errorf("level %q has no loader", level.Name)
		}
		if _, dup := index[level.Name]; dup {
			return nil, fmt.Errorf("duplicate level %q", level.Name)
		}
		index[level.Name] = i
	}
	return &Hierarchy{levels: levels, index: index}, nil
}

// Levels returns the level names in order
func (h *Hierarchy) Levels() []string {
	names := make([]string, len(h.levels))
	for i, level := range h.levels {
		names[i] = level.Name
	}
	return names
}

// Selection maps level name to the selected option id
type Selection map[string]string

// Apply records a selection at the named level and clears every descendant
// selection. The input selection is not mutated.
func (h *Hierarchy) Apply(sel Selection, level, optionID string) (Selection, error) {
	pos, ok := h.index[level]
	if !ok {
		return nil, fmt.Errorf("unknown level %q", level)
	}

	next := make(Selection, len(sel))
	for name, id := range sel {
		if h.index[name] < pos {
			next[name] = id
		}
	}
	if optionID != "" {
		next[level] = optionID
	}
	return next, nil
}

// OptionsFor returns the options available at the named level under the
// current selection. Non-root levels require their parent to be selected.
func (h *Hierarchy) OptionsFor(ctx context.Context, sel Selection, level string) ([]Option, error) {
	pos, ok := h.index[level]
	if !ok {
		return nil, fmt.Errorf("unknown level %q", level)
	}

	parentID := ""
	if pos > 0 {
		parent := h.levels[pos-1].Name
		parentID, ok = sel[parent]
		if !ok || parentID == "" {
			return nil, fmt.Errorf("level %q requires a %q selection", level, parent)
		}
	}
	return h.levels[pos].Load(ctx, parentID)
}
