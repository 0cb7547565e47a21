package core

import (
	"fmt"
	"log/slog"
	"sync"

	"marketnet/core/events"
	"marketnet/core/state"
	"marketnet/core/types"
	"marketnet/native/common"
	"marketnet/native/market"
	"marketnet/observability/metrics"
)

// Node owns the ledger and applies atomic call groups one at a time. Each
// group is staged in a changeset: outer value movements first, then the
// application call through the marketplace dispatcher. Any failure discards
// the whole changeset, so a group either lands in full at one round or leaves
// no trace.
type Node struct {
	mu sync.Mutex

	ledger     *state.Ledger
	engine     *market.Engine
	dispatcher *market.Dispatcher
	halts      *common.HaltRegistry
	metrics    *metrics.MarketMetrics
	logger     *slog.Logger
}

// NewNode assembles a node on top of the ledger. The emitter and metrics
// registry may be nil.
func NewNode(ledger *state.Ledger, emitter events.Emitter, registry *metrics.MarketMetrics, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	engine := market.NewEngine()
	engine.SetEmitter(emitter)
	halts := common.NewHaltRegistry()
	engine.SetHalts(halts)
	return &Node{
		ledger:     ledger,
		engine:     engine,
		dispatcher: market.NewDispatcher(engine),
		halts:      halts,
		metrics:    registry,
		logger:     logger,
	}
}

// Halts exposes the operational halt switch for the marketplace module.
func (n *Node) Halts() *common.HaltRegistry { return n.halts }

// SubmitGroup applies one atomic call group. The first member must be the
// application call; remaining members are the payments and asset transfers
// the operation requires. On success the group is committed under the next
// round number.
func (n *Node) SubmitGroup(group []types.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(group) == 0 || len(group) > types.MaxGroupSize {
		return fmt.Errorf("%w: group size %d", market.ErrMalformedRequest, len(group))
	}
	op := n.operationTag(&group[0])

	cs := n.ledger.Begin(&group[0])
	err := n.applyGroup(cs, group)
	n.metrics.ObserveOperation(op, err)
	if err != nil {
		cs.Discard()
		n.logger.Info("group rejected", "op", op, "round", cs.CurrentRound(), "error", err.Error())
		return err
	}
	if err := cs.Commit(); err != nil {
		return fmt.Errorf("commit group: %w", err)
	}
	n.logger.Info("group applied", "op", op, "round", n.ledger.Round())
	n.publishGauges(op)
	return nil
}

func (n *Node) applyGroup(cs *state.Changeset, group []types.Transaction) error {
	for i := range group {
		if i > 0 && group[i].Type == types.TxAppCall {
			return fmt.Errorf("%w: application call must lead the group", market.ErrMalformedRequest)
		}
		if err := cs.ApplyTransaction(&group[i]); err != nil {
			return fmt.Errorf("group member %d: %w", i, err)
		}
	}
	if group[0].Type != types.TxAppCall {
		// Plain value group: payments and asset opt-ins with no
		// marketplace operation attached.
		return nil
	}
	n.engine.SetState(cs)
	defer n.engine.SetState(nil)
	return n.dispatcher.Dispatch(group)
}

// operationTag names the operation for logs and metrics without validating
// the group; the dispatcher rejects anything malformed.
func (n *Node) operationTag(lead *types.Transaction) string {
	if lead.Type != types.TxAppCall {
		return "transfer"
	}
	if _, ok := n.ledger.Config(); !ok {
		return "initialize"
	}
	switch lead.OnCompletion {
	case types.OnOptIn:
		return "optIn"
	case types.OnCloseOut:
		return "closeOut"
	}
	if len(lead.Args) == 0 {
		return "unknown"
	}
	return string(lead.Args[0])
}

func (n *Node) publishGauges(op string) {
	if n.metrics == nil {
		return
	}
	switch op {
	case market.TagExecuteTransfer:
		n.metrics.ObserveSettlement()
	case market.TagRefund:
		n.metrics.ObserveRefund()
	}
	if cfg, ok := n.ledger.Config(); ok {
		n.metrics.SetCollectedFees(cfg.CollectedFees)
	}
	n.metrics.SetOpenListings(len(n.ledger.Listings()))
}

// Ledger returns the node's ledger for read-only queries.
func (n *Node) Ledger() *state.Ledger { return n.ledger }

// Round returns the last committed round.
func (n *Node) Round() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.Round()
}

// Config returns the committed marketplace configuration.
func (n *Node) Config() (*market.MarketConfig, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.Config()
}

// Listing returns the committed listing for the seller.
func (n *Node) Listing(seller types.Address) (*market.Listing, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.Listing(seller)
}

// Listings returns every committed listing in deterministic order.
func (n *Node) Listings() []state.ListedSale {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.Listings()
}

// Account returns the committed account state for the address.
func (n *Node) Account(addr types.Address) *types.Account {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.Account(addr)
}

// AppAddress returns the escrow application account.
func (n *Node) AppAddress() types.Address { return n.ledger.AppAddress() }
