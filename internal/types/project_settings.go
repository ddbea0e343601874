package types

import "time"

type TranscriptionEngine string

const (
	TranscriptionEngineOpenAI   TranscriptionEngine = "openai"   // hosted API
	TranscriptionEngineWhisperX TranscriptionEngine = "whisperx" // local batch server
	TranscriptionEngineTOne     TranscriptionEngine = "t_one"    // local streaming server
)

type LLMProvider string

const (
	LLMProviderOpenAI   LLMProvider = "openai"
	LLMProviderDeepSeek LLMProvider = "deepseek"
)

// ProjectSettings is a single-row table (ID is forced to 1) holding the
// runtime-tunable knobs: engine selection and generation prompts. Access goes
// through SettingsService, which caches the row with an explicit TTL.
type ProjectSettings struct {
	ID                      int                 `gorm:"primaryKey" json:"id"`
	TranscriptionEngine     TranscriptionEngine `gorm:"column:transcription_engine;not null;default:'whisperx'" json:"transcription_engine"`
	LLMProvider             LLMProvider         `gorm:"column:llm_provider;not null;default:'openai'" json:"llm_provider"`
	SummarizationPrompt     string              `gorm:"column:summarization_prompt;type:text" json:"summarization_prompt"`
	ConceptExtractionPrompt string              `gorm:"column:concept_extraction_prompt;type:text" json:"concept_extraction_prompt"`
	PlanGenerationPrompt    string              `gorm:"column:plan_generation_prompt;type:text" json:"plan_generation_prompt"`
	QuizGenerationPrompt    string              `gorm:"column:quiz_generation_prompt;type:text" json:"quiz_generation_prompt"`
	TutorPrompt             string              `gorm:"column:tutor_prompt;type:text" json:"tutor_prompt"`
	UpdatedAt               time.Time           `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ProjectSettings) TableName() string { return "project_settings" }

// DefaultProjectSettings mirrors the seed row created on first load.
func DefaultProjectSettings() *ProjectSettings {
	return &ProjectSettings{
		ID:                      1,
		TranscriptionEngine:     TranscriptionEngineWhisperX,
		LLMProvider:             LLMProviderOpenAI,
		SummarizationPrompt:     "Please provide a concise summary of the following text.",
		ConceptExtractionPrompt: "You extract atomic, self-contained concepts from learning materials.",
		PlanGenerationPrompt:    "You design a focused study plan ordering concepts from simple to advanced.",
		QuizGenerationPrompt:    "You generate fair multiple-choice questions that test understanding of a single concept.",
		TutorPrompt:             "You are a patient tutor. Ground every answer in the provided excerpts from the user's library.",
	}
}
