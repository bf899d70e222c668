package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictswipe/predictd/internal/domain"
)

type memBucket struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func (b *memBucket) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if b.putErr != nil {
		return b.putErr
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if b.objects == nil {
		b.objects = map[string][]byte{}
		b.types = map[string]string{}
	}
	b.objects[path] = buf
	b.types[path] = contentType
	return nil
}

func (b *memBucket) Get(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBucket) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, data := range b.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(data))})
		}
	}
	return infos, nil
}

type memBetStore struct {
	bets    []domain.BetRecord
	deleted int64
}

func (s *memBetStore) ListBefore(_ context.Context, _ time.Time) ([]domain.BetRecord, error) {
	return s.bets, nil
}

func (s *memBetStore) DeleteBefore(_ context.Context, _ time.Time) (int64, error) {
	s.deleted = int64(len(s.bets))
	s.bets = nil
	return s.deleted, nil
}

type memAudit struct {
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func oldBet(id string) domain.BetRecord {
	return domain.BetRecord{
		ID:        id,
		Account:   "0xabc",
		MarketID:  1,
		Side:      domain.SideOptionA,
		Stake:     big.NewInt(10_000),
		State:     domain.BetStatePurchaseConfirmed,
		CreatedAt: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestArchiveBetsUploadsThenDeletes(t *testing.T) {
	writer := &memBucket{}
	store := &memBetStore{bets: []domain.BetRecord{oldBet("b1"), oldBet("b2")}}
	audit := &memAudit{}
	arch := NewArchiver(writer, writer, store, audit)

	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	count, err := arch.ArchiveBets(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, int64(2), store.deleted)
	assert.Equal(t, []string{"archive.bets"}, audit.events)

	data, ok := writer.objects["archive/bets/2026-06.jsonl"]
	require.True(t, ok)
	assert.Equal(t, "application/x-ndjson", writer.types["archive/bets/2026-06.jsonl"])

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "b1", rec["ID"])
}

func TestArchiveBetsAppendsAcrossSameMonthRuns(t *testing.T) {
	writer := &memBucket{}
	store := &memBetStore{bets: []domain.BetRecord{oldBet("day1")}}
	arch := NewArchiver(writer, writer, store, &memAudit{})

	cutoff := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	_, err := arch.ArchiveBets(context.Background(), cutoff)
	require.NoError(t, err)

	// A day later the first run's rows exist only in cold storage; the
	// second run must extend the month's object, not replace it.
	store.bets = []domain.BetRecord{oldBet("day2")}
	_, err = arch.ArchiveBets(context.Background(), cutoff.AddDate(0, 0, 1))
	require.NoError(t, err)

	data, ok := writer.objects["archive/bets/2026-05.jsonl"]
	require.True(t, ok)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "day1", first["ID"])
	assert.Equal(t, "day2", second["ID"])
}

func TestArchiveBetsNothingToDo(t *testing.T) {
	writer := &memBucket{}
	arch := NewArchiver(writer, writer, &memBetStore{}, &memAudit{})

	count, err := arch.ArchiveBets(context.Background(), time.Now())

	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.objects)
}

func TestArchiveBetsKeepsPrimaryOnUploadFailure(t *testing.T) {
	writer := &memBucket{putErr: errors.New("bucket unavailable")}
	store := &memBetStore{bets: []domain.BetRecord{oldBet("b1")}}
	arch := NewArchiver(writer, writer, store, &memAudit{})

	_, err := arch.ArchiveBets(context.Background(), time.Now())

	require.Error(t, err)
	assert.Zero(t, store.deleted)
	require.Len(t, store.bets, 1)
}

func TestArchiveSnapshotPartitionsByCaptureTime(t *testing.T) {
	writer := &memBucket{}
	arch := NewArchiver(writer, writer, &memBetStore{}, &memAudit{})

	snap := domain.Snapshot{
		Status:  domain.SnapshotReady,
		TakenAt: time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC),
	}
	require.NoError(t, arch.ArchiveSnapshot(context.Background(), snap))

	data, ok := writer.objects["snapshots/2026/08/30/143000.json"]
	require.True(t, ok)
	assert.True(t, bytes.Contains(data, []byte(`"ready"`)))
}
