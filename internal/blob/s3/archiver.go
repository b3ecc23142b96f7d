package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// ExecutionArchiveStore is the slice of domain.ArbStore the archiver needs.
type ExecutionArchiveStore interface {
	ListExecutedBefore(ctx context.Context, before time.Time) ([]domain.ArbRecord, error)
	DeleteExecutedBefore(ctx context.Context, before time.Time) (int64, error)
}

// ExecutionArchiver implements domain.Archiver. It exports settled
// executions older than a cutoff to JSONL in object storage, records the
// export in the audit log, and then removes the rows from the primary store.
type ExecutionArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	arbs   ExecutionArchiveStore
	audit  domain.AuditStore
}

// NewArchiver creates a new ExecutionArchiver.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	arbs ExecutionArchiveStore,
	audit domain.AuditStore,
) *ExecutionArchiver {
	return &ExecutionArchiver{
		writer: writer,
		reader: reader,
		arbs:   arbs,
		audit:  audit,
	}
}

// ArchiveExecutions uploads every terminal record executed before the cutoff
// to archive/arb_history/YYYY-MM/<cutoff>.jsonl and returns how many were
// archived. An object already present at that path is kept as is, so a run
// that failed after uploading can be retried.
func (a *ExecutionArchiver) ArchiveExecutions(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.arbs.ListExecutedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions query: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	path := archivePath("arb_history", before)
	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions: %w", err)
	}
	if !exists {
		buf, err := marshalJSONL(recs)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive executions marshal: %w", err)
		}
		if err := a.writer.Upload(ctx, path, bytes.NewReader(buf), int64(len(buf))); err != nil {
			return 0, fmt.Errorf("s3blob: archive executions upload: %w", err)
		}
	}

	count := int64(len(recs))
	if err := a.audit.Log(ctx, "archive.arb_history", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive executions audit log: %w", err)
	}

	// executed_at is stamped at write time, so no row can newly fall before
	// a cutoff in the past between the list and the delete.
	if _, err := a.arbs.DeleteExecutedBefore(ctx, before); err != nil {
		return count, fmt.Errorf("s3blob: archive executions prune: %w", err)
	}
	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// month of the cutoff time.
//
//	archive/arb_history/2025-01/2025-01-31T030000Z.jsonl
func archivePath(kind string, before time.Time) string {
	before = before.UTC()
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, before.Format("2006-01"), before.Format("2006-01-02T150405Z"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ExecutionArchiver)(nil)
