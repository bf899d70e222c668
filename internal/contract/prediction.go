package contract

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predictswipe/predictd/internal/crypto"
	"github.com/predictswipe/predictd/internal/domain"
	"github.com/predictswipe/predictd/internal/ledger"
)

// MarketInfo is the raw getMarketInfo tuple. Integer fields stay *big.Int;
// normalization into a domain.MarketRecord happens in the snapshot layer.
type MarketInfo struct {
	Question           string
	OptionA            string
	OptionB            string
	EndTime            *big.Int
	Outcome            uint8
	TotalOptionAShares *big.Int
	TotalOptionBShares *big.Int
	Resolved           bool
}

// Populated reports whether the market slot holds a real market. The
// contract returns zero values for unassigned ids, so an empty question
// marks an unpopulated slot.
func (m MarketInfo) Populated() bool {
	return m.Question != ""
}

// PredictionMarket binds the prediction-market contract at a fixed address.
type PredictionMarket struct {
	addr common.Address
	gw   *ledger.Gateway
}

// NewPredictionMarket creates a binding for the contract at addr.
func NewPredictionMarket(addr common.Address, gw *ledger.Gateway) *PredictionMarket {
	return &PredictionMarket{addr: addr, gw: gw}
}

// Address returns the bound contract address.
func (p *PredictionMarket) Address() common.Address {
	return p.addr
}

// GetMarketInfo reads one market's on-chain record. Failures are reported as
// *domain.ReadError carrying the market id, so the aggregator can isolate
// them per slot.
func (p *PredictionMarket) GetMarketInfo(ctx context.Context, marketID int64) (MarketInfo, error) {
	values, err := p.gw.ReadView(ctx, p.addr, &predictionABI, "getMarketInfo", big.NewInt(marketID))
	if err != nil {
		return MarketInfo{}, &domain.ReadError{MarketID: marketID, Err: err}
	}
	if len(values) != 8 {
		return MarketInfo{}, &domain.ReadError{
			MarketID: marketID,
			Err:      fmt.Errorf("expected 8 output values, got %d", len(values)),
		}
	}

	info := MarketInfo{}
	var ok bool
	if info.Question, ok = values[0].(string); !ok {
		return MarketInfo{}, decodeErr(marketID, 0, "string", values[0])
	}
	if info.OptionA, ok = values[1].(string); !ok {
		return MarketInfo{}, decodeErr(marketID, 1, "string", values[1])
	}
	if info.OptionB, ok = values[2].(string); !ok {
		return MarketInfo{}, decodeErr(marketID, 2, "string", values[2])
	}
	if info.EndTime, ok = values[3].(*big.Int); !ok {
		return MarketInfo{}, decodeErr(marketID, 3, "uint256", values[3])
	}
	if info.Outcome, ok = values[4].(uint8); !ok {
		return MarketInfo{}, decodeErr(marketID, 4, "uint8", values[4])
	}
	if info.TotalOptionAShares, ok = values[5].(*big.Int); !ok {
		return MarketInfo{}, decodeErr(marketID, 5, "uint256", values[5])
	}
	if info.TotalOptionBShares, ok = values[6].(*big.Int); !ok {
		return MarketInfo{}, decodeErr(marketID, 6, "uint256", values[6])
	}
	if info.Resolved, ok = values[7].(bool); !ok {
		return MarketInfo{}, decodeErr(marketID, 7, "bool", values[7])
	}
	return info, nil
}

// MarketCount reads the total number of markets, for deployments that expose
// the counter. Callers fall back to a static id list when this fails.
func (p *PredictionMarket) MarketCount(ctx context.Context) (int64, error) {
	values, err := p.gw.ReadView(ctx, p.addr, &predictionABI, "marketCount")
	if err != nil {
		return 0, fmt.Errorf("contract: market count: %w", err)
	}
	count, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("contract: market count: unexpected type %T", values[0])
	}
	return count.Int64(), nil
}

// BuyShares submits the share-purchase transaction. The prior token approval
// must already be confirmed on-chain or the contract's transferFrom reverts.
func (p *PredictionMarket) BuyShares(ctx context.Context, signer *crypto.Signer, marketID int64, isOptionA bool, amount *big.Int) (domain.TxHandle, error) {
	return p.gw.SubmitWrite(ctx, signer, p.addr, &predictionABI, "buyShares",
		nil, big.NewInt(marketID), isOptionA, amount)
}

// CreateMarket submits the create-market transaction.
func (p *PredictionMarket) CreateMarket(ctx context.Context, signer *crypto.Signer, question, optionA, optionB string, endTime time.Time) (domain.TxHandle, error) {
	return p.gw.SubmitWrite(ctx, signer, p.addr, &predictionABI, "createMarket",
		nil, question, optionA, optionB, big.NewInt(endTime.Unix()))
}

func decodeErr(marketID int64, index int, want string, got any) error {
	return &domain.ReadError{
		MarketID: marketID,
		Err:      fmt.Errorf("output %d: expected %s, got %T", index, want, got),
	}
}
