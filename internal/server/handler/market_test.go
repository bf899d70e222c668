package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictswipe/predictd/internal/domain"
)

type stubMarketService struct {
	snap    domain.Snapshot
	snapErr error
}

func (s *stubMarketService) Snapshot(_ context.Context) (domain.Snapshot, error) {
	return s.snap, s.snapErr
}

func (s *stubMarketService) Market(_ context.Context, id int64) (domain.MarketRecord, error) {
	for _, m := range s.snap.Markets {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.MarketRecord{}, fmt.Errorf("service: market %d: %w", id, domain.ErrNotFound)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Status: domain.SnapshotReady,
		Markets: []domain.MarketRecord{{
			ID:                 1,
			Question:           "Will it ship?",
			OptionA:            "Yes",
			OptionB:            "No",
			EndTime:            time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC),
			TotalOptionAShares: big.NewInt(60),
			TotalOptionBShares: big.NewInt(40),
			TotalPool:          big.NewInt(100),
		}},
		FailedIDs: []int64{4},
		TakenAt:   time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func TestListMarkets(t *testing.T) {
	h := NewMarketHandler(&stubMarketService{snap: testSnapshot()}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	rr := httptest.NewRecorder()
	h.ListMarkets(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

	var view snapshotView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, "ready", view.Status)
	require.Len(t, view.Markets, 1)
	assert.Equal(t, "Will it ship?", view.Markets[0].Question)
	// Wei amounts cross the wire as decimal strings.
	assert.Equal(t, "60", view.Markets[0].SharesA)
	assert.Equal(t, "100", view.Markets[0].TotalPool)
	assert.Equal(t, []int64{4}, view.FailedIDs)
}

func TestListMarketsServiceFailure(t *testing.T) {
	h := NewMarketHandler(&stubMarketService{snapErr: errors.New("rpc down")}, testLogger())

	rr := httptest.NewRecorder()
	h.ListMarkets(rr, httptest.NewRequest(http.MethodGet, "/api/markets", nil))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestGetMarket(t *testing.T) {
	h := NewMarketHandler(&stubMarketService{snap: testSnapshot()}, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{id}", h.GetMarket)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/markets/1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var view marketView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, int64(1), view.ID)
	assert.Equal(t, "unresolved", view.Outcome)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/markets/99", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/markets/zero", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestParseListOpts(t *testing.T) {
	opts := parseListOpts(httptest.NewRequest(http.MethodGet, "/api/bets", nil))
	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)

	opts = parseListOpts(httptest.NewRequest(http.MethodGet, "/api/bets?limit=10&offset=30", nil))
	assert.Equal(t, 10, opts.Limit)
	assert.Equal(t, 30, opts.Offset)

	opts = parseListOpts(httptest.NewRequest(http.MethodGet, "/api/bets?limit=9999", nil))
	assert.Equal(t, 500, opts.Limit)
}

func TestWorkflowStatus(t *testing.T) {
	status, _ := workflowStatus(&domain.ValidationError{Field: "side", Reason: "required"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, msg := workflowStatus(domain.ErrWorkflowBusy)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "another transaction is in flight", msg)

	status, _ = workflowStatus(fmt.Errorf("workflow: acquire account lock: %w", domain.ErrLockHeld))
	assert.Equal(t, http.StatusConflict, status)

	status, _ = workflowStatus(&domain.SubmissionError{Op: "approve", Err: errors.New("rpc down")})
	assert.Equal(t, http.StatusBadGateway, status)
}
