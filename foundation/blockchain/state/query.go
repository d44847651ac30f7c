package state

import (
	"math/big"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/genesis"
)

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Role returns the role this node is running in.
func (s *State) Role() string {
	return s.role
}

// BeneficiaryID returns the account that collects fees and rewards on
// blocks this node proposes.
func (s *State) BeneficiaryID() database.AccountID {
	return s.beneficiaryID
}

// =============================================================================

// QueryAccount returns the committed state for the specified account.
func (s *State) QueryAccount(id database.AccountID) (database.Account, bool) {
	return s.db.Account(id)
}

// QueryAccounts returns a copy of every account on the chain.
func (s *State) QueryAccounts() map[database.AccountID]database.Account {
	return s.db.CopyAccounts()
}

// QueryReceipt returns the receipt for the specified transaction hash.
func (s *State) QueryReceipt(txHash string) (database.Receipt, bool) {
	return s.db.Receipt(txHash)
}

// QueryContractCode returns the runtime bytecode of the specified contract.
func (s *State) QueryContractCode(id database.AccountID) ([]byte, bool) {
	return s.db.ContractCode(id)
}

// QueryContractStorage returns a copy of the specified contract's storage.
func (s *State) QueryContractStorage(id database.AccountID) map[string]uint64 {
	return s.db.CopyContractStorage(id)
}

// TotalSupply returns the sum of every account balance.
func (s *State) TotalSupply() *big.Int {
	return s.db.TotalSupply()
}

// =============================================================================

// LatestBlock returns the current head of the chain.
func (s *State) LatestBlock() database.Block {
	return s.db.LatestBlock()
}

// QueryBlocksByHeight returns blocks in the closed range. Passing from=1,
// to=latest walks the whole chain.
func (s *State) QueryBlocksByHeight(from uint64, to uint64) ([]database.Block, error) {
	var blocks []database.Block
	for height := from; height <= to; height++ {
		block, err := s.db.GetBlock(height)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// QueryBlockByHash returns the block with the specified hash.
func (s *State) QueryBlockByHash(hash string) (database.Block, error) {
	return s.db.GetBlockByHash(hash)
}

// =============================================================================

// MempoolCount returns how many transactions are pending.
func (s *State) MempoolCount() int {
	return s.mempool.Count()
}

// EvictExpired drops pending transactions that aged past the mempool TTL
// and returns how many were removed.
func (s *State) EvictExpired() int {
	return s.mempool.EvictExpired()
}

// Mempool returns a copy of the pending transactions.
func (s *State) Mempool() []database.BlockTx {
	return s.mempool.Copy()
}
