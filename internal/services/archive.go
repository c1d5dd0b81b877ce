package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lexvoice/casecall-backend/internal/clients/gcp"
	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/repos"
	"github.com/lexvoice/casecall-backend/internal/types"
	"github.com/lexvoice/casecall-backend/internal/utils"
)

// TranscriptArchiver moves transcript turns past the hot retention window
// into object storage, leaving a cold-tier row with the archive key behind.
type TranscriptArchiver interface {
	ArchiveBatch(ctx context.Context) (int, error)
	Run(ctx context.Context)
}

type transcriptArchiver struct {
	log       *logger.Logger
	turns     repos.CallTurnRepo
	bucket    gcp.BucketService
	retention time.Duration
	batchSize int
	interval  time.Duration
}

func NewTranscriptArchiver(log *logger.Logger, turns repos.CallTurnRepo, bucket gcp.BucketService) TranscriptArchiver {
	retentionDays := utils.GetEnvAsInt("TRANSCRIPT_HOT_RETENTION_DAYS", 30, nil)
	batchSize := utils.GetEnvAsInt("TRANSCRIPT_ARCHIVE_BATCH_SIZE", 200, nil)
	intervalMinutes := utils.GetEnvAsInt("TRANSCRIPT_ARCHIVE_INTERVAL_MINUTES", 60, nil)
	return &transcriptArchiver{
		log:       log.With("service", "TranscriptArchiver"),
		turns:     turns,
		bucket:    bucket,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		batchSize: batchSize,
		interval:  time.Duration(intervalMinutes) * time.Minute,
	}
}

// ArchiveBatch uploads one batch of hot turns older than the retention
// cutoff. A turn is marked cold only after its object write succeeds, so a
// crash mid-batch re-archives at worst.
func (a *transcriptArchiver) ArchiveBatch(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-a.retention)
	turns, err := a.turns.ListHotBefore(ctx, nil, cutoff, a.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list hot turns: %w", err)
	}

	archived := 0
	for _, turn := range turns {
		key := archiveKey(turn)
		payload, err := json.Marshal(turn)
		if err != nil {
			a.log.Error("Turn marshal failed", "turn_id", turn.ID, "error", err)
			continue
		}
		if err := a.bucket.UploadObject(ctx, key, "application/json", payload); err != nil {
			a.log.Error("Turn upload failed", "turn_id", turn.ID, "key", key, "error", err)
			continue
		}
		if err := a.turns.MarkCold(ctx, nil, turn.ID, key); err != nil {
			a.log.Error("Mark cold failed", "turn_id", turn.ID, "key", key, "error", err)
			continue
		}
		archived++
	}
	if archived > 0 {
		a.log.Info("Archived transcript turns", "count", archived, "cutoff", cutoff)
	}
	return archived, nil
}

// Run loops ArchiveBatch on the configured interval until the context ends.
func (a *transcriptArchiver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.ArchiveBatch(ctx); err != nil {
				a.log.Error("Archive pass failed", "error", err)
			}
		}
	}
}

func archiveKey(turn *types.CallTranscriptTurn) string {
	return fmt.Sprintf("transcripts/%s/%06d-%s.json", turn.SessionID, turn.TurnNumber, turn.ID)
}
