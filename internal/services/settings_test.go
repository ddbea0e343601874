package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/studyloop-backend/internal/repos"
	"github.com/yungbote/studyloop-backend/internal/types"
)

func TestSettingsSeedsDefaultsOnFirstLoad(t *testing.T) {
	gdb := newTestDB(t)
	log := newTestLogger(t)
	svc := NewSettingsService(repos.NewSettingsRepo(gdb, log), log)

	settings, err := svc.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, settings.ID)
	require.Equal(t, types.TranscriptionEngineWhisperX, settings.TranscriptionEngine)
	require.Equal(t, types.LLMProviderOpenAI, settings.LLMProvider)
	require.NotEmpty(t, settings.SummarizationPrompt)
}

func TestSettingsCacheServesUntilInvalidated(t *testing.T) {
	gdb := newTestDB(t)
	log := newTestLogger(t)
	svc := NewSettingsService(repos.NewSettingsRepo(gdb, log), log)
	ctx := context.Background()

	_, err := svc.Load(ctx)
	require.NoError(t, err)

	// A write that bypasses the service is invisible while the cache holds.
	require.NoError(t, gdb.Model(&types.ProjectSettings{}).
		Where("id = ?", 1).
		Update("llm_provider", types.LLMProviderDeepSeek).Error)

	cached, err := svc.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, types.LLMProviderOpenAI, cached.LLMProvider)

	svc.Invalidate()
	fresh, err := svc.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, types.LLMProviderDeepSeek, fresh.LLMProvider)
}

func TestSettingsUpdateWritesThrough(t *testing.T) {
	gdb := newTestDB(t)
	log := newTestLogger(t)
	svc := NewSettingsService(repos.NewSettingsRepo(gdb, log), log)
	ctx := context.Background()

	updated, err := svc.Update(ctx, map[string]any{"transcription_engine": types.TranscriptionEngineOpenAI})
	require.NoError(t, err)
	require.Equal(t, types.TranscriptionEngineOpenAI, updated.TranscriptionEngine)

	reloaded, err := svc.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, types.TranscriptionEngineOpenAI, reloaded.TranscriptionEngine)
}
