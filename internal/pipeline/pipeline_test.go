package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

var unitPlan = Plan{
	Status: []string{"broadcast_start"},
	Count:  "update_count",
	Steps:  []string{"parse_ingredient", "save_ingredient"},
	Final:  "check_completion",
}

func TestAssemble_Layout(t *testing.T) {
	f := newTestFactory("broadcast_start", "update_count", "parse_ingredient", "save_ingredient", "check_completion")

	tests := []struct {
		name     string
		tracking Tracking
		want     []string
	}{
		{
			name:     "fully tracked job",
			tracking: Tracking{NoteID: "n1", ImportID: "i1", CurrentIndex: intPtr(0), TotalCount: intPtr(3)},
			want:     []string{"broadcast_start", "update_count", "parse_ingredient", "save_ingredient", "check_completion"},
		},
		{
			name:     "count needs import id",
			tracking: Tracking{NoteID: "n1", CurrentIndex: intPtr(0), TotalCount: intPtr(3)},
			want:     []string{"broadcast_start", "parse_ingredient", "save_ingredient", "check_completion"},
		},
		{
			name:     "count needs both indexes",
			tracking: Tracking{NoteID: "n1", ImportID: "i1", CurrentIndex: intPtr(2)},
			want:     []string{"broadcast_start", "parse_ingredient", "save_ingredient", "check_completion"},
		},
		{
			name:     "zero index still counts",
			tracking: Tracking{ImportID: "i1", CurrentIndex: intPtr(0), TotalCount: intPtr(0)},
			want:     []string{"update_count", "parse_ingredient", "save_ingredient", "check_completion"},
		},
		{
			name:     "no note, no status",
			tracking: Tracking{},
			want:     []string{"parse_ingredient", "save_ingredient", "check_completion"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Assemble(f, testDeps{}, unitPlan, tt.tracking)
			require.NoError(t, err)

			assert.Equal(t, tt.want, p.Names())
			assert.Equal(t, tt.want, unitPlan.Names(tt.tracking))
			assert.Equal(t, len(tt.want), p.Len())
			require.NotNil(t, p.Final)
			assert.Equal(t, "check_completion", p.Final.Name())
		})
	}
}

func TestAssemble_Deterministic(t *testing.T) {
	f := newTestFactory("broadcast_start", "update_count", "parse_ingredient", "save_ingredient", "check_completion")
	tracking := Tracking{NoteID: "n1", ImportID: "i1", CurrentIndex: intPtr(1), TotalCount: intPtr(4)}

	first, err := Assemble(f, testDeps{}, unitPlan, tracking)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := Assemble(f, testDeps{}, unitPlan, tracking)
		require.NoError(t, err)
		assert.Equal(t, first.Len(), again.Len())
		assert.Equal(t, first.Names(), again.Names())
	}
}

func TestAssemble_UnknownAction(t *testing.T) {
	f := newTestFactory("parse_ingredient")

	_, err := Assemble(f, testDeps{}, unitPlan, Tracking{NoteID: "n1"})

	require.Error(t, err)
	var unknown *UnknownActionError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, KindUnknownAction, Classify(err))
	assert.Contains(t, err.Error(), "save_ingredient")
	assert.Contains(t, err.Error(), "check_completion")
}

func TestValidate(t *testing.T) {
	f := newTestFactory("broadcast_start", "update_count", "parse_ingredient", "save_ingredient")

	err := Validate(f, unitPlan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check_completion")

	require.NoError(t, f.Register("check_completion", func(testDeps) Action[testData, testDeps] { return appendAction("check_completion") }))
	assert.NoError(t, Validate(f, unitPlan))
}

func TestPipeline_WithoutFinal(t *testing.T) {
	p := Pipeline[testData, testDeps]{Steps: []Action[testData, testDeps]{appendAction("a"), appendAction("b")}}

	assert.Equal(t, []string{"a", "b"}, p.Names())
	assert.Equal(t, 2, p.Len())
}
