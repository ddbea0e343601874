package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/repos"
	"github.com/yungbote/studyloop-backend/internal/types"
)

const (
	tutorHistoryLimit  = 20
	tutorContextChunks = 5
)

// TutorService runs the retrieval-grounded chat: each question is answered
// with the most similar chunks of the user's own materials injected into the
// system prompt.
type TutorService interface {
	GetOrCreateSession(ctx context.Context, userID uuid.UUID) (*types.TutorChatSession, error)
	GetMessages(ctx context.Context, userID, sessionID uuid.UUID) ([]*types.TutorChatMessage, error)
	Ask(ctx context.Context, userID, sessionID uuid.UUID, question string) (*types.TutorChatMessage, error)
}

type tutorService struct {
	log       *logger.Logger
	db        *gorm.DB
	sessions  repos.TutorChatRepo
	retrieval RetrievalService
	settings  SettingsService
	clients   *LLMClients
}

func NewTutorService(
	log *logger.Logger,
	db *gorm.DB,
	sessions repos.TutorChatRepo,
	retrieval RetrievalService,
	settings SettingsService,
	clients *LLMClients,
) TutorService {
	return &tutorService{
		log:       log.With("service", "TutorService"),
		db:        db,
		sessions:  sessions,
		retrieval: retrieval,
		settings:  settings,
		clients:   clients,
	}
}

func (s *tutorService) GetOrCreateSession(ctx context.Context, userID uuid.UUID) (*types.TutorChatSession, error) {
	session, err := s.sessions.FirstSessionByUserID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}
	return s.sessions.CreateSession(ctx, nil, &types.TutorChatSession{
		ID:     uuid.New(),
		UserID: userID,
	})
}

func (s *tutorService) GetMessages(ctx context.Context, userID, sessionID uuid.UUID) ([]*types.TutorChatMessage, error) {
	session, err := s.sessions.GetSessionOwnedByID(ctx, nil, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}
	return s.sessions.GetMessagesBySessionID(ctx, nil, sessionID, 0)
}

func (s *tutorService) Ask(ctx context.Context, userID, sessionID uuid.UUID, question string) (*types.TutorChatMessage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrValidation)
	}

	session, err := s.sessions.GetSessionOwnedByID(ctx, nil, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}

	retrieved, err := s.retrieval.Search(ctx, userID, question, tutorContextChunks)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}

	history, err := s.sessions.GetMessagesBySessionID(ctx, nil, sessionID, tutorHistoryLimit)
	if err != nil {
		return nil, err
	}

	system := buildTutorSystemPrompt(settings.TutorPrompt, retrieved)
	messages := make([]ChatMessage, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, ChatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: question})

	answer, err := s.clients.For(settings.LLMProvider).GenerateText(ctx, system, messages)
	if err != nil {
		return nil, fmt.Errorf("tutor answer: %w", err)
	}

	userMsg := &types.TutorChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      "user",
		Content:   question,
	}
	assistantMsg := &types.TutorChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      "assistant",
		Content:   strings.TrimSpace(answer),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.sessions.CreateMessages(ctx, tx, []*types.TutorChatMessage{userMsg, assistantMsg})
		return err
	})
	if err != nil {
		return nil, err
	}
	return assistantMsg, nil
}

func buildTutorSystemPrompt(base string, retrieved []RetrievedChunk) string {
	var sb strings.Builder
	sb.WriteString(base)
	if len(retrieved) == 0 {
		sb.WriteString("\n\nNo excerpts from the user's library matched this question. Say so when the answer would require their materials.")
		return sb.String()
	}
	sb.WriteString("\n\nExcerpts from the user's study materials:\n")
	for i, r := range retrieved {
		fmt.Fprintf(&sb, "\n[%d] %s\n", i+1, truncate(r.Chunk.Text, 1500))
	}
	sb.WriteString("\nGround your answer in these excerpts and cite them by number when relevant.")
	return sb.String()
}
