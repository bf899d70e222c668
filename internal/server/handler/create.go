package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/predictswipe/predictd/internal/domain"
	"github.com/predictswipe/predictd/internal/workflow"
)

// CreateService defines what the market-creation handler needs from the
// service layer.
type CreateService interface {
	CreateMarket(ctx context.Context, params workflow.CreateParams) (workflow.CreateResult, error)
	ListCreations(ctx context.Context, opts domain.ListOpts) ([]domain.CreationRecord, error)
}

// CreateHandler serves the market-creation endpoints.
type CreateHandler struct {
	svc    CreateService
	logger *slog.Logger
}

// NewCreateHandler creates a CreateHandler.
func NewCreateHandler(svc CreateService, logger *slog.Logger) *CreateHandler {
	return &CreateHandler{
		svc:    svc,
		logger: logger,
	}
}

// createMarketRequest is the POST body for creating a market. EndTime is
// RFC 3339.
type createMarketRequest struct {
	Question string `json:"question"`
	OptionA  string `json:"option_a"`
	OptionB  string `json:"option_b"`
	EndTime  string `json:"end_time"`
}

// creationRecordView is the wire representation of a creation history entry.
type creationRecordView struct {
	ID         string `json:"id"`
	Account    string `json:"account"`
	Question   string `json:"question"`
	OptionA    string `json:"option_a"`
	OptionB    string `json:"option_b"`
	EndTime    string `json:"end_time"`
	State      string `json:"state"`
	CreateTx   string `json:"create_tx,omitempty"`
	FailReason string `json:"fail_reason,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// CreateMarket runs the market-creation sequence and blocks until the
// transaction confirms or the run fails.
// POST /api/markets
func (h *CreateHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var endTime time.Time
	if req.EndTime != "" {
		var err error
		endTime, err = time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end_time must be RFC 3339")
			return
		}
	}

	result, err := h.svc.CreateMarket(r.Context(), workflow.CreateParams{
		Question: req.Question,
		OptionA:  req.OptionA,
		OptionB:  req.OptionB,
		EndTime:  endTime,
	})
	if err != nil {
		status, msg := workflowStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: create market failed",
				slog.String("question", req.Question),
				slog.String("error", err.Error()),
			)
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"record_id":    result.RecordID,
		"create_tx":    result.CreateTx.Hash,
		"block_number": result.Confirmed.BlockNumber,
		"gas_used":     result.Confirmed.GasUsed,
	})
}

// ListCreations returns market-creation history, newest first.
// GET /api/markets/created
func (h *CreateHandler) ListCreations(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	recs, err := h.svc.ListCreations(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list creations failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list creations")
		return
	}

	views := make([]creationRecordView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, creationRecordView{
			ID:         rec.ID,
			Account:    rec.Account,
			Question:   rec.Question,
			OptionA:    rec.OptionA,
			OptionB:    rec.OptionB,
			EndTime:    rec.EndTime.UTC().Format(time.RFC3339),
			State:      string(rec.State),
			CreateTx:   rec.CreateTx,
			FailReason: rec.FailReason,
			CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"creations": views,
		"limit":     opts.Limit,
		"offset":    opts.Offset,
	})
}
