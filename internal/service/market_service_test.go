package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictswipe/predictd/internal/contract"
	"github.com/predictswipe/predictd/internal/domain"
	"github.com/predictswipe/predictd/internal/snapshot"
)

type stubReader struct {
	calls int
}

func (r *stubReader) GetMarketInfo(_ context.Context, id int64) (contract.MarketInfo, error) {
	r.calls++
	return contract.MarketInfo{
		Question:           "Live market?",
		OptionA:            "Yes",
		OptionB:            "No",
		EndTime:            big.NewInt(time.Now().Add(time.Hour).Unix()),
		TotalOptionAShares: big.NewInt(id),
		TotalOptionBShares: big.NewInt(id),
	}, nil
}

func (r *stubReader) MarketCount(_ context.Context) (int64, error) {
	return 0, errors.New("not exposed")
}

type stubCache struct {
	snap   domain.Snapshot
	getErr error
	sets   int
}

func (c *stubCache) Set(_ context.Context, snap domain.Snapshot) error {
	c.snap = snap
	c.sets++
	return nil
}

func (c *stubCache) Latest(_ context.Context) (domain.Snapshot, error) {
	if c.getErr != nil {
		return domain.Snapshot{}, c.getErr
	}
	return c.snap, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAggregator(reader snapshot.MarketReader, ids ...int64) *snapshot.Aggregator {
	return snapshot.NewAggregator(reader, nil, snapshot.Config{MarketIDs: ids}, testLogger())
}

func TestSnapshotServesFromCache(t *testing.T) {
	reader := &stubReader{}
	cache := &stubCache{snap: domain.Snapshot{
		Status:  domain.SnapshotReady,
		Markets: []domain.MarketRecord{{ID: 1, Question: "Cached?"}},
		TakenAt: time.Now().UTC(),
	}}
	svc := NewMarketService(testAggregator(reader, 1), cache, testLogger())

	snap, err := svc.Snapshot(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "Cached?", snap.Markets[0].Question)
	assert.Zero(t, reader.calls, "cache hit must not touch the chain")
}

func TestSnapshotFallsThroughOnCacheMiss(t *testing.T) {
	reader := &stubReader{}
	cache := &stubCache{getErr: domain.ErrNoSnapshot}
	svc := NewMarketService(testAggregator(reader, 1, 2), cache, testLogger())

	snap, err := svc.Snapshot(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.SnapshotReady, snap.Status)
	assert.Len(t, snap.Markets, 2)
	assert.Equal(t, 2, reader.calls)
	// The fresh snapshot is written back.
	assert.Equal(t, 1, cache.sets)
}

func TestMarketByID(t *testing.T) {
	reader := &stubReader{}
	svc := NewMarketService(testAggregator(reader, 1, 2), nil, testLogger())

	m, err := svc.Market(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.ID)

	_, err = svc.Market(context.Background(), 5)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
