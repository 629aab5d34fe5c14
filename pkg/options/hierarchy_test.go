package options

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticLoader(options map[string][]Option) Loader {
	return func(ctx context.Context, parentID string) ([]Option, error) {
		return options[parentID], nil
	}
}

func newReportHierarchy(t *testing.T) *Hierarchy {
	t.Helper()
	h, err := NewHierarchy(
		Level{Name: "category", Load: staticLoader(map[string][]Option{
			"": {{ID: "C1", Label: "Finance"}, {ID: "C2", Label: "Sales"}},
		})},
		Level{Name: "report", Load: staticLoader(map[string][]Option{
			"C1": {{ID: "R1", Label: "Budget"}},
			"C2": {{ID: "R2", Label: "Pipeline"}, {ID: "R3", Label: "Quota"}},
		})},
		Level{Name: "schedule", Load: staticLoader(map[string][]Option{
			"R1": {{ID: "S1", Label: "Weekly"}},
		})},
	)
	require.NoError(t, err)
	return h
}

func TestNewHierarchy_Validation(t *testing.T) {
	_, err := NewHierarchy()
	assert.Error(t, err)

	_, err = NewHierarchy(Level{Name: "a"})
	assert.Error(t, err, "loader is required")

	loader := staticLoader(nil)
	_, err = NewHierarchy(Level{Name: "a", Load: loader}, Level{Name: "a", Load: loader})
	assert.Error(t, err, "duplicate names rejected")
}

func TestOptionsFor_RootAndChild(t *testing.T) {
	h := newReportHierarchy(t)
	ctx := context.Background()

	roots, err := h.OptionsFor(ctx, nil, "category")
	require.NoError(t, err)
	assert.Len(t, roots, 2)

	sel, err := h.Apply(nil, "category", "C2")
	require.NoError(t, err)

	reports, err := h.OptionsFor(ctx, sel, "report")
	require.NoError(t, err)
	assert.Equal(t, []Option{{ID: "R2", Label: "Pipeline"}, {ID: "R3", Label: "Quota"}}, reports)
}

func TestOptionsFor_RequiresParentSelection(t *testing.T) {
	h := newReportHierarchy(t)

	_, err := h.OptionsFor(context.Background(), nil, "report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "category")
}

func TestApply_ParentChangeClearsDescendants(t *testing.T) {
	h := newReportHierarchy(t)

	sel := Selection{"category": "C1", "report": "R1", "schedule": "S1"}

	next, err := h.Apply(sel, "category", "C2")
	require.NoError(t, err)

	assert.Equal(t, Selection{"category": "C2"}, next,
		"descendant selections must not survive a parent change")
	assert.Equal(t, Selection{"category": "C1", "report": "R1", "schedule": "S1"}, sel,
		"input selection is not mutated")
}

func TestApply_MidLevelChangeKeepsAncestors(t *testing.T) {
	h := newReportHierarchy(t)

	sel := Selection{"category": "C1", "report": "R1", "schedule": "S1"}

	next, err := h.Apply(sel, "report", "R3")
	require.NoError(t, err)
	assert.Equal(t, Selection{"category": "C1", "report": "R3"}, next)
}

func TestApply_EmptySelectionClearsLevel(t *testing.T) {
	h := newReportHierarchy(t)

	sel := Selection{"category": "C1", "report": "R1"}
	next, err := h.Apply(sel, "report", "")
	require.NoError(t, err)
	assert.Equal(t, Selection{"category": "C1"}, next)
}

func TestApply_UnknownLevel(t *testing.T) {
	h := newReportHierarchy(t)
	_, err := h.Apply(nil, "nope", "x")
	assert.Error(t, err)
}
