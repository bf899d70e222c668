package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/predictswipe/predictd/internal/domain"
)

// BetArchiveStore is the slice of the bet store the archiver needs: the
// time-ranged query plus the matching delete.
type BetArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time) ([]domain.BetRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArchiveImpl implements domain.Archiver. Old bet history is serialized to
// JSONL, uploaded to object storage, recorded in the audit log, and only
// then removed from the primary store. Snapshots are archived as single
// JSON documents partitioned by capture date.
type ArchiveImpl struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	bets   BetArchiveStore
	audit  domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, bets BetArchiveStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		reader: reader,
		bets:   bets,
		audit:  audit,
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveBets moves all bets created before the cutoff to cold storage at
// archive/bets/YYYY-MM.jsonl and deletes them from the primary store. Runs
// falling in the same month append to the month's object: the rows already
// uploaded by an earlier run are gone from the primary store, so the object
// must never be replaced wholesale. The delete runs only after the upload
// succeeds, so a failed upload leaves the primary store untouched. Returns
// the number of records archived.
func (a *ArchiveImpl) ArchiveBets(ctx context.Context, before time.Time) (int64, error) {
	bets, err := a.bets.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets query: %w", err)
	}
	if len(bets) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(bets)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets marshal: %w", err)
	}

	path := fmt.Sprintf("archive/bets/%s.jsonl", before.Format("2006-01"))
	prior, err := a.existing(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets read prior: %w", err)
	}
	buf = append(prior, buf...)

	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive bets upload: %w", err)
	}

	deleted, err := a.bets.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(bets)), fmt.Errorf("s3blob: archive bets delete: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.bets", map[string]any{
		"path":    path,
		"count":   len(bets),
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return int64(len(bets)), fmt.Errorf("s3blob: archive bets audit log: %w", err)
	}

	return int64(len(bets)), nil
}

// existing returns the current content of the object at path, or nil when no
// object exists yet.
func (a *ArchiveImpl) existing(ctx context.Context, path string) ([]byte, error) {
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	return data, nil
}

// ArchiveSnapshot uploads a snapshot as a JSON document under a
// date-partitioned key, e.g. snapshots/2026/08/30/143000.json.
func (a *ArchiveImpl) ArchiveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("s3blob: archive snapshot marshal: %w", err)
	}

	ts := snap.TakenAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	path := fmt.Sprintf("snapshots/%s.json", ts.UTC().Format("2006/01/02/150405"))

	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive snapshot upload: %w", err)
	}
	return nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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
