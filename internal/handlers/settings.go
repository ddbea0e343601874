package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/services"
	"github.com/yungbote/studyloop-backend/internal/types"
)

type SettingsHandler struct {
	log      *logger.Logger
	settings services.SettingsService
}

func NewSettingsHandler(log *logger.Logger, settings services.SettingsService) *SettingsHandler {
	return &SettingsHandler{log: log.With("handler", "SettingsHandler"), settings: settings}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.settings.Load(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, settings)
}

type updateSettingsRequest struct {
	TranscriptionEngine     *string `json:"transcription_engine"`
	LLMProvider             *string `json:"llm_provider"`
	SummarizationPrompt     *string `json:"summarization_prompt"`
	ConceptExtractionPrompt *string `json:"concept_extraction_prompt"`
	PlanGenerationPrompt    *string `json:"plan_generation_prompt"`
	QuizGenerationPrompt    *string `json:"quiz_generation_prompt"`
	TutorPrompt             *string `json:"tutor_prompt"`
}

var validEngines = map[types.TranscriptionEngine]bool{
	types.TranscriptionEngineOpenAI:   true,
	types.TranscriptionEngineWhisperX: true,
	types.TranscriptionEngineTOne:     true,
}

var validProviders = map[types.LLMProvider]bool{
	types.LLMProviderOpenAI:   true,
	types.LLMProviderDeepSeek: true,
}

func (h *SettingsHandler) Update(c *gin.Context) {
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "invalid settings payload")
		return
	}

	updates := map[string]any{}
	if req.TranscriptionEngine != nil {
		engine := types.TranscriptionEngine(*req.TranscriptionEngine)
		if !validEngines[engine] {
			RespondError(c, fmt.Errorf("%w: unknown transcription engine %q", services.ErrValidation, engine))
			return
		}
		updates["transcription_engine"] = engine
	}
	if req.LLMProvider != nil {
		provider := types.LLMProvider(*req.LLMProvider)
		if !validProviders[provider] {
			RespondError(c, fmt.Errorf("%w: unknown LLM provider %q", services.ErrValidation, provider))
			return
		}
		updates["llm_provider"] = provider
	}
	if req.SummarizationPrompt != nil {
		updates["summarization_prompt"] = *req.SummarizationPrompt
	}
	if req.ConceptExtractionPrompt != nil {
		updates["concept_extraction_prompt"] = *req.ConceptExtractionPrompt
	}
	if req.PlanGenerationPrompt != nil {
		updates["plan_generation_prompt"] = *req.PlanGenerationPrompt
	}
	if req.QuizGenerationPrompt != nil {
		updates["quiz_generation_prompt"] = *req.QuizGenerationPrompt
	}
	if req.TutorPrompt != nil {
		updates["tutor_prompt"] = *req.TutorPrompt
	}
	if len(updates) == 0 {
		RespondBadRequest(c, "no recognized settings fields in payload")
		return
	}

	settings, err := h.settings.Update(c.Request.Context(), updates)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, settings)
}
