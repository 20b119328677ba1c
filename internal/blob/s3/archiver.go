package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Zijian-Wang/tradesync/internal/domain"
)

// ReportArchiver stores one JSON report per sync run.
type ReportArchiver struct {
	writer domain.BlobWriter
}

// NewReportArchiver creates a ReportArchiver that writes through w.
func NewReportArchiver(w domain.BlobWriter) *ReportArchiver {
	return &ReportArchiver{writer: w}
}

// ReportKey returns the object key for a run:
// sync-reports/{user}/{yyyy}/{mm}/{dd}/{run_id}.json, dated by SyncedAt in UTC.
func ReportKey(res domain.SyncResult) string {
	t := res.SyncedAt.UTC()
	return fmt.Sprintf("sync-reports/%s/%04d/%02d/%02d/%s.json",
		res.UserID, t.Year(), int(t.Month()), t.Day(), res.RunID)
}

// Archive uploads res and returns the key it was written to.
func (a *ReportArchiver) Archive(ctx context.Context, res domain.SyncResult) (string, error) {
	body, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal report: %w", err)
	}

	key := ReportKey(res)
	if err := a.writer.Put(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
		return "", err
	}
	return key, nil
}
