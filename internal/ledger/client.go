package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Client owns the JSON-RPC connection to the chain node.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
}

// Dial connects to the RPC endpoint and verifies the node serves the
// expected chain. A chain-id mismatch is a configuration error: writes
// signed for one chain are invalid on another.
func Dial(ctx context.Context, rpcURL string, wantChainID int64) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %w", rpcURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("ledger: chain id: %w", err)
	}
	if wantChainID > 0 && chainID.Int64() != wantChainID {
		eth.Close()
		return nil, fmt.Errorf("ledger: node serves chain %d, config expects %d", chainID.Int64(), wantChainID)
	}

	return &Client{eth: eth, chainID: chainID}, nil
}

// Backend returns the RPC backend for constructing a Gateway.
func (c *Client) Backend() Backend {
	return c.eth
}

// ChainID returns the chain id reported by the node.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Close tears down the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
