package services

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/repos"
	"github.com/yungbote/studyloop-backend/internal/types"
)

func newMaterialForTest(t *testing.T, gdb *gorm.DB) MaterialService {
	t.Helper()
	t.Setenv("UPLOAD_DIR", t.TempDir())
	log := newTestLogger(t)
	svc, err := NewMaterialService(
		log,
		gdb,
		repos.NewMediaItemRepo(gdb, log),
		repos.NewConceptRepo(gdb, log),
		repos.NewMediaChunkRepo(gdb, log),
		repos.NewAnalysisRunRepo(gdb, log),
		nil,
	)
	require.NoError(t, err)
	return svc
}

func TestDeleteRemovesRowsChunksAndFiles(t *testing.T) {
	gdb := newTestDB(t)
	svc := newMaterialForTest(t, gdb)
	user := seedUser(t, gdb)

	path := writeTempDoc(t, "vectors are arrows")
	item := seedMediaItem(t, gdb, user.ID, types.MediaTypeText, path)

	chunk := &types.MediaChunk{ID: uuid.New(), MediaItemID: item.ID, Index: 0, Text: "vectors are arrows"}
	require.NoError(t, gdb.Create(chunk).Error)

	require.NoError(t, svc.Delete(context.Background(), user.ID, []uuid.UUID{item.ID}))

	var chunkCount int64
	require.NoError(t, gdb.Model(&types.MediaChunk{}).Where("media_item_id = ?", item.ID).Count(&chunkCount).Error)
	require.Zero(t, chunkCount, "retrieval chunks are dropped with the item")

	remaining, err := svc.List(context.Background(), user.ID)
	require.NoError(t, err)
	require.Empty(t, remaining)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "uploaded file is unlinked after delete")
}

func TestDeleteRejectsForeignItemsAndKeepsEverything(t *testing.T) {
	gdb := newTestDB(t)
	svc := newMaterialForTest(t, gdb)
	owner := seedUser(t, gdb)
	stranger := seedUser(t, gdb)

	path := writeTempDoc(t, "owner material")
	item := seedMediaItem(t, gdb, owner.ID, types.MediaTypeText, path)

	err := svc.Delete(context.Background(), stranger.ID, []uuid.UUID{item.ID})
	require.ErrorIs(t, err, ErrNotFound)

	remaining, err := svc.List(context.Background(), owner.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr, "a rejected delete must not touch the file")
}
