// Package contract provides typed bindings for the prediction-market
// contract and its ERC-20 stake token, layered over the ledger gateway.
package contract

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// predictionABIJSON describes the subset of the prediction-market contract
// this service calls. marketCount is optional on older deployments; callers
// fall back to a configured id list when it is absent.
const predictionABIJSON = `[
  {"name":"getMarketInfo","type":"function","stateMutability":"view",
   "inputs":[{"name":"_marketId","type":"uint256"}],
   "outputs":[
     {"name":"question","type":"string"},
     {"name":"optionA","type":"string"},
     {"name":"optionB","type":"string"},
     {"name":"endTime","type":"uint256"},
     {"name":"outcome","type":"uint8"},
     {"name":"totalOptionAShares","type":"uint256"},
     {"name":"totalOptionBShares","type":"uint256"},
     {"name":"resolved","type":"bool"}]},
  {"name":"buyShares","type":"function","stateMutability":"nonpayable",
   "inputs":[
     {"name":"_marketId","type":"uint256"},
     {"name":"_isOptionA","type":"bool"},
     {"name":"_amount","type":"uint256"}],
   "outputs":[]},
  {"name":"createMarket","type":"function","stateMutability":"nonpayable",
   "inputs":[
     {"name":"_question","type":"string"},
     {"name":"_optionA","type":"string"},
     {"name":"_optionB","type":"string"},
     {"name":"_endTime","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"name":"marketCount","type":"function","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint256"}]}
]`

// tokenABIJSON covers the ERC-20 calls the betting workflow needs: approve
// for the two-phase bet, balanceOf and allowance for preflight checks.
const tokenABIJSON = `[
  {"name":"approve","type":"function","stateMutability":"nonpayable",
   "inputs":[
     {"name":"spender","type":"address"},
     {"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"name":"balanceOf","type":"function","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"name":"allowance","type":"function","stateMutability":"view",
   "inputs":[
     {"name":"owner","type":"address"},
     {"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

var (
	predictionABI = mustParseABI("prediction", predictionABIJSON)
	tokenABI      = mustParseABI("token", tokenABIJSON)
)

// mustParseABI parses a compile-time ABI constant. A failure here is a
// programming error, not a runtime condition.
func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("contract: parsing %s ABI: %v", name, err))
	}
	return parsed
}
