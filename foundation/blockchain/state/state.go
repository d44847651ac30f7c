// Package state is the core API for the node and implements the business
// rules for transaction admission, block proposal, and block verification.
package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/exec"
	"github.com/agorachain/agora/foundation/blockchain/genesis"
	"github.com/agorachain/agora/foundation/blockchain/limiter"
	"github.com/agorachain/agora/foundation/blockchain/mempool"
	"github.com/agorachain/agora/foundation/blockchain/mempool/selector"
	"github.com/agorachain/agora/foundation/blockchain/signature"
)

// Set of node roles. A proposer produces blocks on a timer; a replica
// verifies propagated blocks and never produces its own.
const (
	RoleProposer = "proposer"
	RoleReplica  = "replica"
)

// ErrNotProposer is returned when a block production operation is invoked
// on a node running in the replica role.
var ErrNotProposer = errors.New("node is not running in the proposer role")

// =============================================================================

// EventHandler defines a function that is called when events occur in the
// processing of transactions and blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by
// any package providing support for block production or replication and
// transaction sharing.
type Worker interface {
	Shutdown()
	SignalShareTx(blockTx database.BlockTx)
}

// =============================================================================

// Config represents the configuration required to start the node.
type Config struct {
	Role           string
	BeneficiaryID  database.AccountID
	ProposerKey    signature.Key    // Set on the proposer only.
	ProposerScheme signature.Scheme // Identity every replica verifies blocks against.
	ProposerPubKey []byte
	Genesis        genesis.Genesis
	Storage        database.Store
	SelectStrategy string // Mempool selection strategy. Price ordered when unset.
	EvHandler      EventHandler
}

// State manages the blockchain database and serializes every mutation
// against it.
type State struct {
	mu sync.Mutex

	role           string
	beneficiaryID  database.AccountID
	proposerKey    signature.Key
	proposerScheme signature.Scheme
	proposerPubKey []byte
	evHandler      EventHandler

	genesis genesis.Genesis
	db      *database.Database
	engine  *exec.Engine
	mempool *mempool.Mempool
	limiter *limiter.Limiter

	Worker Worker
}

// New constructs a new node state for data management.
func New(cfg Config) (*State, error) {
	switch cfg.Role {
	case RoleProposer, RoleReplica:
	default:
		return nil, fmt.Errorf("unknown role %q", cfg.Role)
	}

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	db, err := database.New(cfg.Genesis, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	engine := exec.New(cfg.Genesis)

	// An unset strategy means price ordered selection.
	strategy := cfg.SelectStrategy
	if strategy == "" {
		strategy = selector.StrategyPrice
	}

	pool, err := mempool.NewWithStrategy(strategy)
	if err != nil {
		return nil, err
	}

	state := State{
		role:           cfg.Role,
		beneficiaryID:  cfg.BeneficiaryID,
		proposerKey:    cfg.ProposerKey,
		proposerScheme: cfg.ProposerScheme,
		proposerPubKey: cfg.ProposerPubKey,
		evHandler:      ev,

		genesis: cfg.Genesis,
		db:      db,
		engine:  engine,
		mempool: pool,
		limiter: limiter.New(limiter.DefaultLimit, limiter.DefaultWindow),
	}

	// Rebuild the in-memory state by replaying every stored block through
	// the execution engine. The chain on disk is the source of truth.
	if err := state.replay(); err != nil {
		return nil, fmt.Errorf("replaying chain: %w", err)
	}

	// Reload the transactions that were in flight at the last shutdown.
	if err := state.reloadMempool(); err != nil {
		return nil, fmt.Errorf("reloading mempool: %w", err)
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down: stop the worker, flush the mempool
// to the store, and close the database.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	defer s.db.Close()

	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	// Any transaction still pending survives the restart.
	if err := s.db.WriteMempool(s.mempool.Copy()); err != nil {
		return fmt.Errorf("flushing mempool: %w", err)
	}

	return nil
}

// =============================================================================

// replay walks the stored blocks in height order and re-executes every
// transaction so the in-memory accounts, contracts, and receipts match what
// the chain produced. Replay determinism makes this equivalent to having
// processed the blocks live.
func (s *State) replay() error {
	iter := s.db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return err
		}

		delta := database.NewDelta(s.db)
		var receipts []database.Receipt

		for _, tx := range block.Transactions() {
			receipt, err := s.engine.Apply(delta, tx, block.Header.Height, block.Header.ProposerID)
			if err != nil {
				return fmt.Errorf("block %d tx %s: %w", block.Header.Height, tx.SignedTx.Hash(), err)
			}
			receipts = append(receipts, receipt)
		}
		s.engine.ApplyReward(delta, block.Header.ProposerID)

		if err := s.db.Commit(block, delta, receipts, false); err != nil {
			return fmt.Errorf("block %d: %w", block.Header.Height, err)
		}

		s.evHandler("state: replay: blk[%d] applied: txs[%d]", block.Header.Height, len(block.Transactions()))
	}

	return nil
}

// reloadMempool restores the transactions persisted at the last shutdown,
// dropping any that no longer validate against the replayed state. Nonce
// order per sender matters here: each admitted transaction extends the
// pending chain the next one validates against.
func (s *State) reloadMempool() error {
	txs, err := s.db.ReadMempool()
	if err != nil {
		return err
	}

	sort.Slice(txs, func(i, j int) bool {
		if txs[i].FromID != txs[j].FromID {
			return txs[i].FromID < txs[j].FromID
		}
		return txs[i].Nonce < txs[j].Nonce
	})

	for _, tx := range txs {
		if _, err := validateTx(tx.SignedTx, s.genesis, s.admissionView()); err != nil {
			s.evHandler("state: reloadMempool: drop tx[%s]: %s", tx.SignedTx, err)
			continue
		}
		if err := s.mempool.Upsert(tx); err != nil {
			return err
		}
	}

	return nil
}
