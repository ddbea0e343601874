package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/studyloop-backend/internal/types"
)

func TestParseConceptsClampsComplexity(t *testing.T) {
	obj := map[string]any{
		"concepts": []any{
			map[string]any{"title": "Vectors", "explanation": "x", "complexity": float64(0)},
			map[string]any{"title": "Matrices", "explanation": "y", "complexity": float64(9)},
			map[string]any{"title": "Spans", "explanation": "z", "complexity": float64(3)},
		},
	}

	concepts, err := parseConcepts(obj)
	require.NoError(t, err)
	require.Len(t, concepts, 3)
	require.Equal(t, 1, concepts[0].Complexity)
	require.Equal(t, 5, concepts[1].Complexity)
	require.Equal(t, 3, concepts[2].Complexity)
}

func TestParseConceptsRejectsMissingTitle(t *testing.T) {
	obj := map[string]any{
		"concepts": []any{
			map[string]any{"title": "  ", "explanation": "x", "complexity": float64(2)},
		},
	}
	_, err := parseConcepts(obj)
	require.Error(t, err)
}

func TestParseQuestionsDropsMalformedEntries(t *testing.T) {
	g := &generationService{log: newTestLogger(t)}
	valid := map[string]any{
		"question_text": "What is a vector?",
		"options":       []any{"a", "b", "c"},
		"correct_index": float64(2),
		"explanation":   "because",
	}

	tests := []struct {
		name    string
		mutate  func(map[string]any)
		dropped bool
	}{
		{name: "valid", mutate: func(q map[string]any) {}},
		{name: "one option", mutate: func(q map[string]any) { q["options"] = []any{"a"} }, dropped: true},
		{name: "index past end", mutate: func(q map[string]any) { q["correct_index"] = float64(3) }, dropped: true},
		{name: "negative index", mutate: func(q map[string]any) { q["correct_index"] = float64(-1) }, dropped: true},
		{name: "empty text", mutate: func(q map[string]any) { q["question_text"] = "" }, dropped: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := map[string]any{}
			for k, v := range valid {
				q[k] = v
			}
			tt.mutate(q)

			questions, err := g.parseQuestions(map[string]any{"questions": []any{q}})
			require.NoError(t, err)
			if tt.dropped {
				require.Empty(t, questions)
				return
			}
			require.Len(t, questions, 1)
			require.Equal(t, 2, questions[0].CorrectIndex)
		})
	}
}

func TestParseQuestionsKeepsValidSiblingsOfMalformedEntry(t *testing.T) {
	g := &generationService{log: newTestLogger(t)}

	questions, err := g.parseQuestions(map[string]any{"questions": []any{
		map[string]any{
			"question_text": "What is a vector?",
			"options":       []any{"a", "b"},
			"correct_index": float64(0),
			"explanation":   "",
		},
		map[string]any{
			"question_text": "Broken",
			"options":       []any{"only one"},
			"correct_index": float64(0),
			"explanation":   "",
		},
		map[string]any{
			"question_text": "What is a matrix?",
			"options":       []any{"a", "b", "c"},
			"correct_index": float64(1),
			"explanation":   "",
		},
	}})
	require.NoError(t, err)
	require.Len(t, questions, 2)
	require.Equal(t, "What is a vector?", questions[0].QuestionText)
	require.Equal(t, "What is a matrix?", questions[1].QuestionText)
}

func TestParsePlanRequiresUnits(t *testing.T) {
	_, err := parsePlan(map[string]any{"title": "Basics", "description": "", "units": []any{}})
	require.Error(t, err)

	plan, err := parsePlan(map[string]any{
		"title":       "Basics",
		"description": "from the ground up",
		"units": []any{
			map[string]any{"title": "Intro", "description": "d", "concept_title": "Vectors"},
		},
	})
	require.NoError(t, err)
	require.Len(t, plan.Units, 1)
	require.Equal(t, "Vectors", plan.Units[0].ConceptTitle)
}

func TestCommitPlanDropsUnmatchedUnits(t *testing.T) {
	gdb := newTestDB(t)
	svc := newPipelineForTest(t, gdb, &fakeGenerator{})

	user := seedUser(t, gdb)
	item := seedMediaItem(t, gdb, user.ID, types.MediaTypeText, "/tmp/doc.txt")

	concepts := []*types.Concept{
		{ID: uuid.New(), MediaItemID: item.ID, Title: "Vectors", Complexity: 1},
		{ID: uuid.New(), MediaItemID: item.ID, Title: "Matrices", Complexity: 2},
	}
	require.NoError(t, gdb.Create(&concepts).Error)

	draft := &DraftPlan{
		Title: "Basics",
		Units: []DraftUnit{
			{Title: "Unit 1", ConceptTitle: "Vectors"},
			{Title: "Unit 2", ConceptTitle: "Eigenvalues"}, // not extracted
			{Title: "Unit 3", ConceptTitle: "Matrices"},
		},
	}
	require.NoError(t, svc.commitPlan(context.Background(), user.ID, item.ID, draft, concepts))

	var units []types.StudyUnit
	require.NoError(t, gdb.Order("position ASC").Find(&units).Error)
	require.Len(t, units, 2, "units naming unknown concepts are dropped")
	require.Equal(t, concepts[0].ID, units[0].ConceptID)
	require.Equal(t, concepts[1].ID, units[1].ConceptID)
	require.Equal(t, []int{0, 1}, []int{units[0].Position, units[1].Position}, "positions stay dense after drops")
}

func TestCommitPlanFailsWhenNothingMatches(t *testing.T) {
	gdb := newTestDB(t)
	svc := newPipelineForTest(t, gdb, &fakeGenerator{})

	user := seedUser(t, gdb)
	item := seedMediaItem(t, gdb, user.ID, types.MediaTypeText, "/tmp/doc.txt")
	concepts := []*types.Concept{{ID: uuid.New(), MediaItemID: item.ID, Title: "Vectors", Complexity: 1}}
	require.NoError(t, gdb.Create(&concepts).Error)

	draft := &DraftPlan{Title: "Basics", Units: []DraftUnit{{Title: "U", ConceptTitle: "Unknown"}}}
	require.Error(t, svc.commitPlan(context.Background(), user.ID, item.ID, draft, concepts))
}
