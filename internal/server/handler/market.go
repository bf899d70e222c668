package handler

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/predictswipe/predictd/internal/domain"
)

// MarketService defines what the market handler needs from the service
// layer. It is declared locally so the handler package does not depend on
// the concrete service implementation.
type MarketService interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
	Market(ctx context.Context, id int64) (domain.MarketRecord, error)
}

// MarketHandler serves market snapshot endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// marketView is the wire representation of a market. Share totals are wei
// amounts rendered as decimal strings; JSON numbers cannot hold them.
type marketView struct {
	ID        int64  `json:"id"`
	Question  string `json:"question"`
	OptionA   string `json:"option_a"`
	OptionB   string `json:"option_b"`
	EndTime   string `json:"end_time"`
	Outcome   string `json:"outcome"`
	SharesA   string `json:"total_option_a_shares"`
	SharesB   string `json:"total_option_b_shares"`
	TotalPool string `json:"total_pool"`
	Resolved  bool   `json:"resolved"`
}

// snapshotView is the wire representation of a snapshot.
type snapshotView struct {
	Status    string       `json:"status"`
	Markets   []marketView `json:"markets"`
	FailedIDs []int64      `json:"failed_ids,omitempty"`
	TakenAt   string       `json:"taken_at"`
}

func toMarketView(m domain.MarketRecord) marketView {
	return marketView{
		ID:        m.ID,
		Question:  m.Question,
		OptionA:   m.OptionA,
		OptionB:   m.OptionB,
		EndTime:   m.EndTime.UTC().Format(time.RFC3339),
		Outcome:   m.Outcome.String(),
		SharesA:   weiString(m.TotalOptionAShares),
		SharesB:   weiString(m.TotalOptionBShares),
		TotalPool: weiString(m.TotalPool),
		Resolved:  m.Resolved,
	}
}

func toSnapshotView(snap domain.Snapshot) snapshotView {
	out := snapshotView{
		Status:    string(snap.Status),
		Markets:   make([]marketView, 0, len(snap.Markets)),
		FailedIDs: snap.FailedIDs,
		TakenAt:   snap.TakenAt.UTC().Format(time.RFC3339),
	}
	for _, m := range snap.Markets {
		out.Markets = append(out.Markets, toMarketView(m))
	}
	return out
}

func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// ListMarkets returns the current market snapshot.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	snap, err := h.markets.Snapshot(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: snapshot failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to load markets")
		return
	}

	writeJSON(w, http.StatusOK, toSnapshotView(snap))
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	market, err := h.markets.Market(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.Int64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, toMarketView(market))
}
