package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/mobilenet-retail/backoffice/internal/jobs"
	"github.com/mobilenet-retail/backoffice/internal/sales"
	"github.com/mobilenet-retail/backoffice/internal/shared"
)

// AuditSink persists audit entries; shared.AuditLogger in production.
type AuditSink interface {
	Record(ctx context.Context, entry shared.AuditEntry) error
}

// BatchSavedJob writes one audit entry per record of a committed batch.
type BatchSavedJob struct {
	Sink    AuditSink
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewBatchSavedJob wires the handler.
func NewBatchSavedJob(sink AuditSink, logger *slog.Logger, metrics *jobmetrics.Metrics) *BatchSavedJob {
	return &BatchSavedJob{Sink: sink, Logger: logger, Metrics: metrics}
}

// Handle processes TaskSalesBatchSaved.
func (j *BatchSavedJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sink == nil {
		return errors.New("batch saved: sink not configured")
	}
	var evt sales.BatchSaved
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskSalesBatchSaved)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(slog.Int64("actor_id", evt.ActorID), slog.Int("records", len(evt.RecordIDs)))
	meta := map[string]any{
		"store_ids": evt.StoreIDs,
		"created":   evt.Created,
		"updated":   evt.Updated,
	}
	for _, id := range evt.RecordIDs {
		entry := shared.AuditEntry{
			ActorID:  evt.ActorID,
			Action:   "sales.bulk_upsert",
			Entity:   "sale",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     meta,
			At:       evt.At,
		}
		if err := j.Sink.Record(ctx, entry); err != nil {
			logger.Error("audit sale record", slog.Int64("record_id", id), slog.Any("error", err))
			return err
		}
	}
	j.Metrics.AddAudited(len(evt.RecordIDs))
	logger.Info("audited sales batch")
	return nil
}

func (j *BatchSavedJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
