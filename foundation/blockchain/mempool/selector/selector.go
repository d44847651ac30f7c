// Package selector provides transaction selection algorithms for block
// building.
package selector

import (
	"fmt"
	"sort"

	"github.com/agorachain/agora/foundation/blockchain/database"
)

// List of select strategies.
const (
	StrategyPrice = "price"
)

// Map of select strategies with functions.
var strategies = map[string]Func{
	StrategyPrice: priceSelect,
}

// Func defines a function that takes the mempool transactions grouped by
// sender and selects howMany of them in the strategy's order. Every
// strategy MUST respect per-sender nonce ordering. Receiving -1 for howMany
// returns all transactions in the strategy's order.
type Func func(transactions map[database.AccountID][]database.BlockTx, howMany int) []database.BlockTx

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// byNonce sorts a sender's transactions into processing order.
type byNonce []database.BlockTx

func (bn byNonce) Len() int           { return len(bn) }
func (bn byNonce) Less(i, j int) bool { return bn[i].Nonce < bn[j].Nonce }
func (bn byNonce) Swap(i, j int)      { bn[i], bn[j] = bn[j], bn[i] }

// byPrice sorts by gas price descending, ties broken by arrival order.
type byPrice []database.BlockTx

func (bp byPrice) Len() int { return len(bp) }

func (bp byPrice) Less(i, j int) bool {
	switch bp[i].GasPrice.Cmp(bp[j].GasPrice) {
	case 1:
		return true
	case -1:
		return false
	}
	return bp[i].TimeStamp < bp[j].TimeStamp
}

func (bp byPrice) Swap(i, j int) { bp[i], bp[j] = bp[j], bp[i] }

// =============================================================================

// priceSelect orders transactions by the best gas price while respecting
// the nonce order for each sender: only the lowest pending nonce of a
// sender is eligible in any selection row, the rest wait behind it.
var priceSelect = func(m map[database.AccountID][]database.BlockTx, howMany int) []database.BlockTx {

	// Sort each sender's transactions into nonce order.
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byNonce(m[key]))
		}
	}

	// Build rows: row N holds the Nth pending transaction of every sender.
	var rows [][]database.BlockTx
	for {
		var row []database.BlockTx
		for key := range m {
			if len(m[key]) > 0 {
				row = append(row, m[key][0])
				m[key] = m[key][1:]
			}
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	if howMany == -1 {
		howMany = 0
		for _, row := range rows {
			howMany += len(row)
		}
	}

	// Take the best priced transactions row by row so a sender's later
	// nonces never jump ahead of its earlier ones.
	var final []database.BlockTx
	for _, row := range rows {
		sort.Sort(byPrice(row))

		need := howMany - len(final)
		if len(row) > need {
			final = append(final, row[:need]...)
			break
		}
		final = append(final, row...)
	}

	return final
}
