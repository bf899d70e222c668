package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/predictswipe/predictd/internal/crypto"
	"github.com/predictswipe/predictd/internal/domain"
)

// MarketCreator submits the create-market write call.
type MarketCreator interface {
	CreateMarket(ctx context.Context, signer *crypto.Signer, question, optionA, optionB string, endTime time.Time) (domain.TxHandle, error)
}

// CreateParams are the new market's fields. All four are required.
type CreateParams struct {
	Question string
	OptionA  string
	OptionB  string
	EndTime  time.Time
}

// CreateResult reports a successful creation run.
type CreateResult struct {
	RecordID  string
	CreateTx  domain.TxHandle
	Confirmed domain.Confirmation
}

// Creation runs the single-phase market-creation sequence:
// Idle -> AwaitingCreate -> Created, with Failed on any error.
type Creation struct {
	confirmer Confirmer
	market    MarketCreator
	signer    *crypto.Signer

	locks     domain.LockManager   // optional
	creations domain.CreationStore // optional
	notifier  Notifier             // optional
	logger    *slog.Logger

	mu    sync.Mutex
	state domain.CreateState
}

// CreationDeps bundles the optional collaborators.
type CreationDeps struct {
	Locks     domain.LockManager
	Creations domain.CreationStore
	Notifier  Notifier
}

// NewCreation creates a market-creation workflow instance in Idle.
func NewCreation(confirmer Confirmer, market MarketCreator, signer *crypto.Signer, deps CreationDeps, logger *slog.Logger) *Creation {
	return &Creation{
		confirmer: confirmer,
		market:    market,
		signer:    signer,
		locks:     deps.Locks,
		creations: deps.Creations,
		notifier:  deps.Notifier,
		logger:    logger.With(slog.String("component", "creation_workflow")),
		state:     domain.CreateStateIdle,
	}
}

// State returns the workflow's current state.
func (c *Creation) State() domain.CreateState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit validates the four fields and runs the creation sequence. A
// *domain.ValidationError leaves the instance in Idle with no write
// submitted.
func (c *Creation) Submit(ctx context.Context, params CreateParams) (CreateResult, error) {
	if err := validateCreate(params); err != nil {
		return CreateResult{}, err
	}

	if err := c.begin(); err != nil {
		return CreateResult{}, err
	}

	account := c.signer.Address()
	if c.locks != nil {
		unlock, err := c.locks.Acquire(ctx, "account:"+account.Hex(), accountLockTTL)
		if err != nil {
			c.setState(domain.CreateStateIdle)
			return CreateResult{}, fmt.Errorf("workflow: acquire account lock: %w", err)
		}
		defer unlock()
	}

	rec := domain.CreationRecord{
		ID:        uuid.New().String(),
		Account:   account.Hex(),
		Question:  params.Question,
		OptionA:   params.OptionA,
		OptionB:   params.OptionB,
		EndTime:   params.EndTime,
		State:     domain.CreateStateAwaiting,
		CreatedAt: time.Now().UTC(),
	}

	c.record(ctx, &rec, true)

	createTx, err := c.market.CreateMarket(ctx, c.signer, params.Question, params.OptionA, params.OptionB, params.EndTime)
	if err != nil {
		return CreateResult{}, c.fail(ctx, &rec, err)
	}
	rec.CreateTx = createTx.Hash
	c.record(ctx, &rec, false)

	conf, err := c.confirmer.AwaitConfirmation(ctx, createTx)
	if err != nil {
		return CreateResult{}, c.fail(ctx, &rec, err)
	}

	c.setState(domain.CreateStateCreated)
	rec.State = domain.CreateStateCreated
	c.record(ctx, &rec, false)

	if c.notifier != nil {
		msg := fmt.Sprintf("Market %q created (tx %s)", params.Question, createTx.Hash)
		if nerr := c.notifier.Notify(ctx, "market_created", "Market created", msg); nerr != nil {
			c.logger.WarnContext(ctx, "notify failed", slog.String("error", nerr.Error()))
		}
	}

	c.logger.InfoContext(ctx, "market created",
		slog.String("record_id", rec.ID),
		slog.String("question", params.Question),
		slog.String("tx", createTx.Hash),
	)

	return CreateResult{RecordID: rec.ID, CreateTx: createTx, Confirmed: conf}, nil
}

// begin claims the instance for one run under the same lock as the busy
// check, so a second Submit arriving during the lock acquisition is already
// rejected.
func (c *Creation) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.CreateStateIdle && c.state != domain.CreateStateFailed {
		return domain.ErrWorkflowBusy
	}
	c.state = domain.CreateStateAwaiting
	return nil
}

func (c *Creation) setState(s domain.CreateState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Creation) fail(ctx context.Context, rec *domain.CreationRecord, cause error) error {
	c.setState(domain.CreateStateFailed)
	rec.State = domain.CreateStateFailed
	rec.FailReason = cause.Error()
	c.record(ctx, rec, false)

	if c.notifier != nil {
		msg := fmt.Sprintf("Market creation %q failed: %v", rec.Question, cause)
		if nerr := c.notifier.Notify(ctx, "market_create_failed", "Market creation failed", msg); nerr != nil {
			c.logger.WarnContext(ctx, "notify failed", slog.String("error", nerr.Error()))
		}
	}

	c.logger.ErrorContext(ctx, "market creation failed",
		slog.String("record_id", rec.ID),
		slog.String("error", cause.Error()),
	)
	return cause
}

func (c *Creation) record(ctx context.Context, rec *domain.CreationRecord, insert bool) {
	if c.creations == nil {
		return
	}
	rec.UpdatedAt = time.Now().UTC()

	var err error
	if insert {
		err = c.creations.Insert(ctx, *rec)
	} else {
		err = c.creations.Update(ctx, *rec)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "creation store write failed",
			slog.String("record_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

func validateCreate(params CreateParams) error {
	if params.Question == "" {
		return &domain.ValidationError{Field: "question", Reason: "required"}
	}
	if params.OptionA == "" {
		return &domain.ValidationError{Field: "option_a", Reason: "required"}
	}
	if params.OptionB == "" {
		return &domain.ValidationError{Field: "option_b", Reason: "required"}
	}
	if params.EndTime.IsZero() {
		return &domain.ValidationError{Field: "end_time", Reason: "required"}
	}
	return nil
}
