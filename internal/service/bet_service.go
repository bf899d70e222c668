package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/predictswipe/predictd/internal/contract"
	"github.com/predictswipe/predictd/internal/domain"
	"github.com/predictswipe/predictd/internal/ledger"
	"github.com/predictswipe/predictd/internal/workflow"
)

// BetService runs the transaction workflows on behalf of the HTTP surface
// and the one-shot CLI modes. Each call builds a fresh workflow instance;
// concurrent calls against the same signer are serialized by the account
// lock inside the workflow.
type BetService struct {
	session    *ledger.Session
	prediction *contract.PredictionMarket
	token      *contract.Token
	stake      *big.Int

	locks     domain.LockManager   // optional
	bets      domain.BetStore      // optional
	creations domain.CreationStore // optional
	audit     domain.AuditStore    // optional
	notifier  workflow.Notifier    // optional
	logger    *slog.Logger
}

// BetServiceDeps bundles the optional collaborators.
type BetServiceDeps struct {
	Locks     domain.LockManager
	Bets      domain.BetStore
	Creations domain.CreationStore
	Audit     domain.AuditStore
	Notifier  workflow.Notifier
}

// NewBetService creates a BetService. stake is the fixed per-bet amount in
// wei.
func NewBetService(
	session *ledger.Session,
	prediction *contract.PredictionMarket,
	token *contract.Token,
	stake *big.Int,
	deps BetServiceDeps,
	logger *slog.Logger,
) *BetService {
	return &BetService{
		session:    session,
		prediction: prediction,
		token:      token,
		stake:      new(big.Int).Set(stake),
		locks:      deps.Locks,
		bets:       deps.Bets,
		creations:  deps.Creations,
		audit:      deps.Audit,
		notifier:   deps.Notifier,
		logger:     logger.With(slog.String("component", "bet_service")),
	}
}

// Account returns the connected account's hex address.
func (s *BetService) Account() string {
	return s.session.Account()
}

// Stake returns a copy of the fixed per-bet amount.
func (s *BetService) Stake() *big.Int {
	return new(big.Int).Set(s.stake)
}

// PlaceBet runs one approve-then-buy betting sequence to completion.
func (s *BetService) PlaceBet(ctx context.Context, intent domain.BettingIntent) (workflow.BetResult, error) {
	bw := workflow.NewBetting(
		s.session.Gateway, s.prediction, s.token, s.session.Signer,
		s.prediction.Address(), s.stake,
		workflow.BettingDeps{
			Locks:    s.locks,
			Bets:     s.bets,
			Audit:    s.audit,
			Notifier: s.notifier,
		},
		s.logger,
	)
	return bw.Submit(ctx, intent)
}

// CreateMarket runs one market-creation sequence to completion.
func (s *BetService) CreateMarket(ctx context.Context, params workflow.CreateParams) (workflow.CreateResult, error) {
	cw := workflow.NewCreation(
		s.session.Gateway, s.prediction, s.session.Signer,
		workflow.CreationDeps{
			Locks:     s.locks,
			Creations: s.creations,
			Notifier:  s.notifier,
		},
		s.logger,
	)
	return cw.Submit(ctx, params)
}

// GetBet returns one bet record from history.
func (s *BetService) GetBet(ctx context.Context, id string) (domain.BetRecord, error) {
	if s.bets == nil {
		return domain.BetRecord{}, fmt.Errorf("service: bet history: %w", domain.ErrNotFound)
	}
	return s.bets.GetByID(ctx, id)
}

// ListBets returns the signer's bet history, newest first.
func (s *BetService) ListBets(ctx context.Context, opts domain.ListOpts) ([]domain.BetRecord, error) {
	if s.bets == nil {
		return nil, nil
	}
	return s.bets.List(ctx, s.Account(), opts)
}

// ListCreations returns the signer's market-creation history, newest first.
func (s *BetService) ListCreations(ctx context.Context, opts domain.ListOpts) ([]domain.CreationRecord, error) {
	if s.creations == nil {
		return nil, nil
	}
	return s.creations.List(ctx, s.Account(), opts)
}

// Allowance reports the prediction contract's current spending allowance for
// the connected account.
func (s *BetService) Allowance(ctx context.Context) (*big.Int, error) {
	return s.token.Allowance(ctx, s.session.Signer.Address(), s.prediction.Address())
}

// Balance reports the connected account's stake-token balance.
func (s *BetService) Balance(ctx context.Context) (*big.Int, error) {
	return s.token.BalanceOf(ctx, s.session.Signer.Address())
}
