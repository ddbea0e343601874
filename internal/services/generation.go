package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/types"
)

// DraftConcept is an LLM-proposed concept before persistence.
type DraftConcept struct {
	Title       string
	Explanation string
	Complexity  int
}

// DraftPlan is an LLM-proposed study plan. Unit concept titles are matched
// against stored concepts by exact title, best effort.
type DraftPlan struct {
	Title       string
	Description string
	Units       []DraftUnit
}

type DraftUnit struct {
	Title        string
	Description  string
	ConceptTitle string
}

// DraftQuestion is an LLM-proposed multiple-choice question.
type DraftQuestion struct {
	QuestionText string
	Options      []string
	CorrectIndex int
	Explanation  string
}

// GenerationService wraps every structured-output call the pipeline makes.
// Each method resolves the provider from the settings row it is handed, so a
// settings change applies to the next run without a restart.
type GenerationService interface {
	Summarize(ctx context.Context, settings *types.ProjectSettings, text string) (string, error)
	ExtractConcepts(ctx context.Context, settings *types.ProjectSettings, text string) ([]DraftConcept, error)
	GeneratePlan(ctx context.Context, settings *types.ProjectSettings, summary string, concepts []DraftConcept) (*DraftPlan, error)
	GenerateQuestions(ctx context.Context, settings *types.ProjectSettings, concept *types.Concept, count int) ([]DraftQuestion, error)
}

type generationService struct {
	log     *logger.Logger
	clients *LLMClients
}

func NewGenerationService(log *logger.Logger, clients *LLMClients) GenerationService {
	return &generationService{
		log:     log.With("service", "GenerationService"),
		clients: clients,
	}
}

// Source texts can exceed the model context; the summarizer sees at most this
// many runes and the extractor the same window.
const maxPromptRunes = 60000

func clampPrompt(text string) string {
	runes := []rune(text)
	if len(runes) <= maxPromptRunes {
		return text
	}
	return string(runes[:maxPromptRunes])
}

func (g *generationService) Summarize(ctx context.Context, settings *types.ProjectSettings, text string) (string, error) {
	client := g.clients.For(settings.LLMProvider)

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{"type": "string"},
		},
		"required":             []string{"summary"},
		"additionalProperties": false,
	}

	obj, err := client.GenerateJSON(ctx, settings.SummarizationPrompt, clampPrompt(text), "summary", schema)
	if err != nil {
		return "", fmt.Errorf("summarization: %w", err)
	}
	summary := strings.TrimSpace(stringFromAny(obj["summary"]))
	if summary == "" {
		return "", fmt.Errorf("summarization: model returned empty summary")
	}
	return summary, nil
}

func (g *generationService) ExtractConcepts(ctx context.Context, settings *types.ProjectSettings, text string) ([]DraftConcept, error) {
	client := g.clients.For(settings.LLMProvider)

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"concepts": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":       map[string]any{"type": "string"},
						"explanation": map[string]any{"type": "string"},
						"complexity":  map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
					},
					"required":             []string{"title", "explanation", "complexity"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"concepts"},
		"additionalProperties": false,
	}

	obj, err := client.GenerateJSON(ctx, settings.ConceptExtractionPrompt, clampPrompt(text), "concept_list", schema)
	if err != nil {
		return nil, fmt.Errorf("concept extraction: %w", err)
	}

	concepts, err := parseConcepts(obj)
	if err != nil {
		return nil, fmt.Errorf("concept extraction: %w", err)
	}
	if len(concepts) == 0 {
		return nil, fmt.Errorf("concept extraction: model returned no concepts")
	}
	return concepts, nil
}

// parseConcepts validates the model payload. Entries with an out-of-range
// complexity are clamped into [1,5]; entries missing a title are rejected.
func parseConcepts(obj map[string]any) ([]DraftConcept, error) {
	rawList, ok := obj["concepts"].([]any)
	if !ok {
		return nil, fmt.Errorf("missing concepts array")
	}

	out := make([]DraftConcept, 0, len(rawList))
	for i, raw := range rawList {
		item, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("concept %d is not an object", i)
		}
		title := strings.TrimSpace(stringFromAny(item["title"]))
		if title == "" {
			return nil, fmt.Errorf("concept %d has no title", i)
		}
		complexity, ok := intFromAny(item["complexity"])
		if !ok {
			complexity = 3
		}
		if complexity < 1 {
			complexity = 1
		}
		if complexity > 5 {
			complexity = 5
		}
		out = append(out, DraftConcept{
			Title:       title,
			Explanation: strings.TrimSpace(stringFromAny(item["explanation"])),
			Complexity:  complexity,
		})
	}
	return out, nil
}

func (g *generationService) GeneratePlan(ctx context.Context, settings *types.ProjectSettings, summary string, concepts []DraftConcept) (*DraftPlan, error) {
	client := g.clients.For(settings.LLMProvider)

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":       map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"units": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":         map[string]any{"type": "string"},
						"description":   map[string]any{"type": "string"},
						"concept_title": map[string]any{"type": "string"},
					},
					"required":             []string{"title", "description", "concept_title"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"title", "description", "units"},
		"additionalProperties": false,
	}

	var sb strings.Builder
	sb.WriteString("Summary of the material:\n")
	sb.WriteString(clampPrompt(summary))
	sb.WriteString("\n\nConcepts (ordered by complexity):\n")
	for _, c := range concepts {
		fmt.Fprintf(&sb, "- %s (complexity %d): %s\n", c.Title, c.Complexity, truncate(c.Explanation, 300))
	}

	obj, err := client.GenerateJSON(ctx, settings.PlanGenerationPrompt, sb.String(), "study_plan", schema)
	if err != nil {
		return nil, fmt.Errorf("plan generation: %w", err)
	}

	plan, err := parsePlan(obj)
	if err != nil {
		return nil, fmt.Errorf("plan generation: %w", err)
	}
	return plan, nil
}

func parsePlan(obj map[string]any) (*DraftPlan, error) {
	title := strings.TrimSpace(stringFromAny(obj["title"]))
	if title == "" {
		return nil, fmt.Errorf("plan has no title")
	}

	rawUnits, ok := obj["units"].([]any)
	if !ok || len(rawUnits) == 0 {
		return nil, fmt.Errorf("plan has no units")
	}

	plan := &DraftPlan{
		Title:       title,
		Description: strings.TrimSpace(stringFromAny(obj["description"])),
	}
	for i, raw := range rawUnits {
		item, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unit %d is not an object", i)
		}
		unitTitle := strings.TrimSpace(stringFromAny(item["title"]))
		if unitTitle == "" {
			return nil, fmt.Errorf("unit %d has no title", i)
		}
		plan.Units = append(plan.Units, DraftUnit{
			Title:        unitTitle,
			Description:  strings.TrimSpace(stringFromAny(item["description"])),
			ConceptTitle: strings.TrimSpace(stringFromAny(item["concept_title"])),
		})
	}
	return plan, nil
}

func (g *generationService) GenerateQuestions(ctx context.Context, settings *types.ProjectSettings, concept *types.Concept, count int) ([]DraftQuestion, error) {
	client := g.clients.For(settings.LLMProvider)
	if count <= 0 {
		count = 3
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"question_text": map[string]any{"type": "string"},
						"options":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 2},
						"correct_index": map[string]any{"type": "integer", "minimum": 0},
						"explanation":   map[string]any{"type": "string"},
					},
					"required":             []string{"question_text", "options", "correct_index", "explanation"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"questions"},
		"additionalProperties": false,
	}

	user := fmt.Sprintf("Concept: %s\n\nExplanation: %s\n\nGenerate %d multiple-choice questions.",
		concept.Title, clampPrompt(concept.Description), count)

	obj, err := client.GenerateJSON(ctx, settings.QuizGenerationPrompt, user, "quiz_questions", schema)
	if err != nil {
		return nil, fmt.Errorf("quiz generation for %q: %w", concept.Title, err)
	}

	questions, err := g.parseQuestions(obj)
	if err != nil {
		return nil, fmt.Errorf("quiz generation for %q: %w", concept.Title, err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("quiz generation for %q: model returned no usable questions", concept.Title)
	}
	return questions, nil
}

// parseQuestions drops malformed entries (no text, fewer than two options,
// correct_index outside the options range) and keeps the rest. The caller
// rejects the payload only when nothing usable remains.
func (g *generationService) parseQuestions(obj map[string]any) ([]DraftQuestion, error) {
	rawList, ok := obj["questions"].([]any)
	if !ok {
		return nil, fmt.Errorf("missing questions array")
	}

	out := make([]DraftQuestion, 0, len(rawList))
	for i, raw := range rawList {
		item, ok := raw.(map[string]any)
		if !ok {
			g.log.Warn("dropping malformed question", "index", i, "reason", "not an object")
			continue
		}
		text := strings.TrimSpace(stringFromAny(item["question_text"]))
		if text == "" {
			g.log.Warn("dropping malformed question", "index", i, "reason", "empty question text")
			continue
		}
		options := toStringSlice(item["options"])
		if len(options) < 2 {
			g.log.Warn("dropping malformed question", "index", i, "reason", "fewer than two options")
			continue
		}
		correct, ok := intFromAny(item["correct_index"])
		if !ok || correct < 0 || correct >= len(options) {
			g.log.Warn("dropping malformed question", "index", i, "reason", "correct_index out of range")
			continue
		}
		out = append(out, DraftQuestion{
			QuestionText: text,
			Options:      options,
			CorrectIndex: correct,
			Explanation:  strings.TrimSpace(stringFromAny(item["explanation"])),
		})
	}
	return out, nil
}
