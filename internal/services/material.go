package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/repos"
	"github.com/yungbote/studyloop-backend/internal/types"
	"github.com/yungbote/studyloop-backend/internal/utils"
)

var extensionKinds = map[string]types.MediaType{
	".mp3": types.MediaTypeAudio, ".wav": types.MediaTypeAudio, ".m4a": types.MediaTypeAudio,
	".flac": types.MediaTypeAudio, ".ogg": types.MediaTypeAudio, ".aac": types.MediaTypeAudio,
	".mp4": types.MediaTypeVideo, ".mov": types.MediaTypeVideo, ".avi": types.MediaTypeVideo,
	".mkv": types.MediaTypeVideo, ".webm": types.MediaTypeVideo,
	".png": types.MediaTypeImage, ".jpg": types.MediaTypeImage, ".jpeg": types.MediaTypeImage,
	".gif": types.MediaTypeImage, ".bmp": types.MediaTypeImage, ".tiff": types.MediaTypeImage,
	".webp": types.MediaTypeImage,
}

// MediaKindForFilename classifies an upload by extension; anything
// unrecognized is treated as a text document.
func MediaKindForFilename(name string) types.MediaType {
	ext := strings.ToLower(filepath.Ext(name))
	if kind, ok := extensionKinds[ext]; ok {
		return kind
	}
	return types.MediaTypeText
}

// MediaItemDetail is the library detail view.
type MediaItemDetail struct {
	Item     *types.MediaItem   `json:"item"`
	Concepts []*types.Concept   `json:"concepts"`
	Run      *types.AnalysisRun `json:"latest_run,omitempty"`
}

// MaterialService owns the upload library: files on local disk, rows in
// media_item, and the fan-in to analysis on upload and re-trigger.
type MaterialService interface {
	Upload(ctx context.Context, userID uuid.UUID, title string, file *multipart.FileHeader) (*types.MediaItem, error)
	List(ctx context.Context, userID uuid.UUID) ([]*types.MediaItem, error)
	Get(ctx context.Context, userID, itemID uuid.UUID) (*MediaItemDetail, error)
	Delete(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) error
	Reanalyze(ctx context.Context, userID, itemID uuid.UUID) (*types.AnalysisRun, error)
}

type materialService struct {
	log      *logger.Logger
	db       *gorm.DB
	items    repos.MediaItemRepo
	concepts repos.ConceptRepo
	chunks   repos.MediaChunkRepo
	runs     repos.AnalysisRunRepo
	analysis AnalysisService

	uploadDir string
}

func NewMaterialService(
	log *logger.Logger,
	db *gorm.DB,
	items repos.MediaItemRepo,
	concepts repos.ConceptRepo,
	chunks repos.MediaChunkRepo,
	runs repos.AnalysisRunRepo,
	analysis AnalysisService,
) (MaterialService, error) {
	uploadDir := utils.GetEnv("UPLOAD_DIR", "./uploads", log)
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &materialService{
		log:       log.With("service", "MaterialService"),
		db:        db,
		items:     items,
		concepts:  concepts,
		chunks:    chunks,
		runs:      runs,
		analysis:  analysis,
		uploadDir: uploadDir,
	}, nil
}

func (s *materialService) Upload(ctx context.Context, userID uuid.UUID, title string, file *multipart.FileHeader) (*types.MediaItem, error) {
	if file == nil {
		return nil, fmt.Errorf("%w: file is required", ErrValidation)
	}
	originalName := filepath.Base(file.Filename)
	title = strings.TrimSpace(title)
	if title == "" {
		title = strings.TrimSuffix(originalName, filepath.Ext(originalName))
	}

	itemID := uuid.New()
	destPath := filepath.Join(s.uploadDir, itemID.String()+strings.ToLower(filepath.Ext(originalName)))
	if err := saveUpload(file, destPath); err != nil {
		return nil, err
	}

	item := &types.MediaItem{
		ID:           itemID,
		UserID:       userID,
		Title:        title,
		OriginalName: originalName,
		FilePath:     destPath,
		MediaType:    MediaKindForFilename(originalName),
		Status:       types.MediaStatusPending,
	}
	if _, err := s.items.Create(ctx, nil, []*types.MediaItem{item}); err != nil {
		s.removeFile(destPath)
		return nil, err
	}

	if _, err := s.analysis.Enqueue(ctx, userID, item.ID); err != nil {
		s.log.Error("failed to enqueue analysis after upload",
			"media_item_id", item.ID, "error", err.Error())
	}
	return item, nil
}

func saveUpload(file *multipart.FileHeader, destPath string) error {
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (s *materialService) List(ctx context.Context, userID uuid.UUID) ([]*types.MediaItem, error) {
	return s.items.ListByUserID(ctx, nil, userID)
}

func (s *materialService) Get(ctx context.Context, userID, itemID uuid.UUID) (*MediaItemDetail, error) {
	item, err := s.items.GetOwnedByID(ctx, nil, itemID, userID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}

	concepts, err := s.concepts.GetByMediaItemIDs(ctx, nil, []uuid.UUID{itemID})
	if err != nil {
		return nil, err
	}
	run, err := s.runs.GetLatestByMediaItemID(ctx, nil, itemID)
	if err != nil {
		return nil, err
	}
	return &MediaItemDetail{Item: item, Concepts: concepts, Run: run}, nil
}

// Delete soft-deletes the items, drops their retrieval chunks so removed
// materials stop grounding tutor answers, and unlinks the uploaded files
// once the rows are gone.
func (s *materialService) Delete(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) error {
	if len(itemIDs) == 0 {
		return nil
	}
	items, err := s.items.GetByIDs(ctx, nil, itemIDs)
	if err != nil {
		return err
	}
	owned := make([]uuid.UUID, 0, len(items))
	paths := make([]string, 0, len(items))
	for _, item := range items {
		if item.UserID == userID {
			owned = append(owned, item.ID)
			paths = append(paths, item.FilePath)
		}
	}
	if len(owned) != len(itemIDs) {
		return ErrNotFound
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.chunks.DeleteByMediaItemIDs(ctx, tx, owned); err != nil {
			return err
		}
		return s.items.SoftDeleteByIDs(ctx, tx, owned)
	})
	if err != nil {
		return err
	}

	for _, path := range paths {
		s.removeFile(path)
	}
	return nil
}

func (s *materialService) Reanalyze(ctx context.Context, userID, itemID uuid.UUID) (*types.AnalysisRun, error) {
	return s.analysis.Enqueue(ctx, userID, itemID)
}

func (s *materialService) removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove uploaded file", "path", path, "error", err.Error())
	}
}
