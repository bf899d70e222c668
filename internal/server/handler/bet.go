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
	"time"

	"github.com/predictswipe/predictd/internal/domain"
	"github.com/predictswipe/predictd/internal/workflow"
)

// BetService defines what the bet handler needs from the service layer.
type BetService interface {
	PlaceBet(ctx context.Context, intent domain.BettingIntent) (workflow.BetResult, error)
	GetBet(ctx context.Context, id string) (domain.BetRecord, error)
	ListBets(ctx context.Context, opts domain.ListOpts) ([]domain.BetRecord, error)
	Account() string
	Balance(ctx context.Context) (*big.Int, error)
	Allowance(ctx context.Context) (*big.Int, error)
}

// BetHandler serves the betting and account endpoints. archive may be nil
// when cold storage is not configured.
type BetHandler struct {
	bets    BetService
	archive domain.BlobReader
	logger  *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(bets BetService, archive domain.BlobReader, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:    bets,
		archive: archive,
		logger:  logger,
	}
}

// placeBetRequest is the POST body for placing a bet. The stake is fixed
// server-side; clients choose only the market and side.
type placeBetRequest struct {
	MarketID int64  `json:"market_id"`
	Side     string `json:"side"` // "option_a" or "option_b"
}

// betResultView is the wire representation of a completed bet run.
type betResultView struct {
	BetID       string `json:"bet_id"`
	ApprovalTx  string `json:"approval_tx"`
	PurchaseTx  string `json:"purchase_tx"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
}

// betRecordView is the wire representation of a bet history entry.
type betRecordView struct {
	ID         string `json:"id"`
	Account    string `json:"account"`
	MarketID   int64  `json:"market_id"`
	Side       string `json:"side"`
	Stake      string `json:"stake"`
	State      string `json:"state"`
	ApprovalTx string `json:"approval_tx,omitempty"`
	PurchaseTx string `json:"purchase_tx,omitempty"`
	FailReason string `json:"fail_reason,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func toBetRecordView(b domain.BetRecord) betRecordView {
	return betRecordView{
		ID:         b.ID,
		Account:    b.Account,
		MarketID:   b.MarketID,
		Side:       string(b.Side),
		Stake:      weiString(b.Stake),
		State:      string(b.State),
		ApprovalTx: b.ApprovalTx,
		PurchaseTx: b.PurchaseTx,
		FailReason: b.FailReason,
		CreatedAt:  b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// PlaceBet runs the full two-phase betting sequence and blocks until both
// transactions confirm or the run fails.
// POST /api/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	intent := domain.BettingIntent{
		MarketID: req.MarketID,
		Side:     domain.BetSide(req.Side),
	}

	result, err := h.bets.PlaceBet(r.Context(), intent)
	if err != nil {
		status, msg := workflowStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: place bet failed",
				slog.Int64("market_id", req.MarketID),
				slog.String("error", err.Error()),
			)
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusCreated, betResultView{
		BetID:       result.BetID,
		ApprovalTx:  result.ApprovalTx.Hash,
		PurchaseTx:  result.PurchaseTx.Hash,
		BlockNumber: result.Confirmed.BlockNumber,
		GasUsed:     result.Confirmed.GasUsed,
	})
}

// GetBet returns one bet history entry.
// GET /api/bets/{id}
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing bet id")
		return
	}

	bet, err := h.bets.GetBet(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "bet not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get bet failed",
			slog.String("bet_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get bet")
		return
	}

	writeJSON(w, http.StatusOK, toBetRecordView(bet))
}

// ListBets returns bet history, newest first.
// GET /api/bets?limit=50&offset=0
func (h *BetHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	bets, err := h.bets.ListBets(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list bets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}

	views := make([]betRecordView, 0, len(bets))
	for _, b := range bets {
		views = append(views, toBetRecordView(b))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bets":   views,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// GetAccount reports the connected account's address, stake-token balance,
// and the prediction contract's current spending allowance.
// GET /api/account
func (h *BetHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	balance, err := h.bets.Balance(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read balance failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to read account state")
		return
	}
	allowance, err := h.bets.Allowance(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read allowance failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to read account state")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address":   h.bets.Account(),
		"balance":   weiString(balance),
		"allowance": weiString(allowance),
	})
}

// archiveView is the wire representation of one cold-storage object.
type archiveView struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
}

// ListArchivedBets lists the monthly bet archives in cold storage.
// GET /api/bets/archive
func (h *BetHandler) ListArchivedBets(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "archive not configured")
		return
	}

	infos, err := h.archive.List(r.Context(), "archive/bets/")
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archives failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to list archives")
		return
	}

	views := make([]archiveView, 0, len(infos))
	for _, info := range infos {
		views = append(views, archiveView{
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"archives": views})
}

// GetArchivedBets streams one month's archived bets as JSON lines.
// GET /api/bets/archive/{month}
func (h *BetHandler) GetArchivedBets(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "archive not configured")
		return
	}

	month := r.PathValue("month")
	if _, err := time.Parse("2006-01", month); err != nil {
		writeError(w, http.StatusBadRequest, "month must be formatted YYYY-MM")
		return
	}

	rc, err := h.archive.Get(r.Context(), fmt.Sprintf("archive/bets/%s.jsonl", month))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no archive for that month")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get archive failed",
			slog.String("month", month),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to fetch archive")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: stream archive failed",
			slog.String("month", month),
			slog.String("error", err.Error()),
		)
	}
}
