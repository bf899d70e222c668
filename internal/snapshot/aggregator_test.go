package snapshot

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
)

type fakeReader struct {
	infos    map[int64]contract.MarketInfo
	errs     map[int64]error
	count    int64
	countErr error
}

func (f *fakeReader) GetMarketInfo(_ context.Context, id int64) (contract.MarketInfo, error) {
	if err, ok := f.errs[id]; ok {
		return contract.MarketInfo{}, err
	}
	return f.infos[id], nil
}

func (f *fakeReader) MarketCount(_ context.Context) (int64, error) {
	return f.count, f.countErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func marketInfo(question string, sharesA, sharesB int64) contract.MarketInfo {
	return contract.MarketInfo{
		Question:           question,
		OptionA:            "Yes",
		OptionB:            "No",
		EndTime:            big.NewInt(time.Now().Add(24 * time.Hour).Unix()),
		TotalOptionAShares: big.NewInt(sharesA),
		TotalOptionBShares: big.NewInt(sharesB),
	}
}

func TestFetchSortsMarketsByID(t *testing.T) {
	reader := &fakeReader{infos: map[int64]contract.MarketInfo{
		3: marketInfo("Market three?", 10, 20),
		1: marketInfo("Market one?", 1, 2),
		5: marketInfo("Market five?", 5, 5),
	}}
	agg := NewAggregator(reader, nil, Config{MarketIDs: []int64{3, 1, 5}}, testLogger())

	snap := agg.Fetch(context.Background())

	require.Equal(t, domain.SnapshotReady, snap.Status)
	require.Len(t, snap.Markets, 3)
	assert.Equal(t, int64(1), snap.Markets[0].ID)
	assert.Equal(t, int64(3), snap.Markets[1].ID)
	assert.Equal(t, int64(5), snap.Markets[2].ID)
	assert.Empty(t, snap.FailedIDs)
	assert.False(t, snap.TakenAt.IsZero())
}

func TestFetchFiltersUnpopulatedSlots(t *testing.T) {
	reader := &fakeReader{infos: map[int64]contract.MarketInfo{
		1: marketInfo("Real market?", 1, 1),
		2: marketInfo("", 0, 0), // unassigned slot
	}}
	agg := NewAggregator(reader, nil, Config{MarketIDs: []int64{1, 2}}, testLogger())

	snap := agg.Fetch(context.Background())

	require.Equal(t, domain.SnapshotReady, snap.Status)
	require.Len(t, snap.Markets, 1)
	assert.Equal(t, int64(1), snap.Markets[0].ID)
	// An empty slot is not a read failure.
	assert.Empty(t, snap.FailedIDs)
}

func TestFetchIsolatesReadFailures(t *testing.T) {
	reader := &fakeReader{
		infos: map[int64]contract.MarketInfo{
			1: marketInfo("One?", 1, 1),
			3: marketInfo("Three?", 3, 3),
		},
		errs: map[int64]error{
			2: &domain.ReadError{MarketID: 2, Err: errors.New("rpc timeout")},
		},
	}
	agg := NewAggregator(reader, nil, Config{MarketIDs: []int64{1, 2, 3}}, testLogger())

	snap := agg.Fetch(context.Background())

	require.Equal(t, domain.SnapshotReady, snap.Status)
	require.Len(t, snap.Markets, 2)
	assert.Equal(t, int64(1), snap.Markets[0].ID)
	assert.Equal(t, int64(3), snap.Markets[1].ID)
	assert.Equal(t, []int64{2}, snap.FailedIDs)
}

func TestFetchAllReadsFailed(t *testing.T) {
	reader := &fakeReader{errs: map[int64]error{
		1: errors.New("boom"),
		2: errors.New("boom"),
	}}
	agg := NewAggregator(reader, nil, Config{MarketIDs: []int64{1, 2}}, testLogger())

	snap := agg.Fetch(context.Background())

	assert.Equal(t, domain.SnapshotError, snap.Status)
	assert.Empty(t, snap.Markets)
	assert.ElementsMatch(t, []int64{1, 2}, snap.FailedIDs)
}

func TestFetchDerivesTotalPool(t *testing.T) {
	reader := &fakeReader{infos: map[int64]contract.MarketInfo{
		1: marketInfo("Pool?", 70, 30),
	}}
	agg := NewAggregator(reader, nil, Config{MarketIDs: []int64{1}}, testLogger())

	snap := agg.Fetch(context.Background())

	require.Len(t, snap.Markets, 1)
	m := snap.Markets[0]
	assert.Equal(t, big.NewInt(70), m.TotalOptionAShares)
	assert.Equal(t, big.NewInt(30), m.TotalOptionBShares)
	assert.Equal(t, big.NewInt(100), m.TotalPool)
}

func TestDiscoverEnumeratesFromCount(t *testing.T) {
	reader := &fakeReader{
		count: 3,
		infos: map[int64]contract.MarketInfo{
			1: marketInfo("One?", 1, 1),
			2: marketInfo("Two?", 2, 2),
			3: marketInfo("Three?", 3, 3),
		},
	}
	agg := NewAggregator(reader, nil, Config{MarketIDs: []int64{9}, Discover: true}, testLogger())

	snap := agg.Fetch(context.Background())

	require.Len(t, snap.Markets, 3)
	assert.Equal(t, int64(1), snap.Markets[0].ID)
	assert.Equal(t, int64(3), snap.Markets[2].ID)
}

func TestDiscoverFallsBackToConfiguredIDs(t *testing.T) {
	reader := &fakeReader{
		countErr: errors.New("execution reverted"),
		infos: map[int64]contract.MarketInfo{
			7: marketInfo("Seven?", 1, 1),
		},
	}
	agg := NewAggregator(reader, nil, Config{MarketIDs: []int64{7}, Discover: true}, testLogger())

	snap := agg.Fetch(context.Background())

	require.Len(t, snap.Markets, 1)
	assert.Equal(t, int64(7), snap.Markets[0].ID)
}
