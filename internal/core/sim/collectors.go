package sim

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// CollectedEvent describes something a peer did, as opposed to a scheduler
// Event which asks a peer to do something.
type CollectedEvent interface {
	isEvent()
}

// MainCreatedEvent fires when a peer mines a main block.
type MainCreatedEvent struct {
	Block *MainBlock
}

func (MainCreatedEvent) isEvent() {}

// BatchCreatedEvent fires for every batch block created with a main block.
type BatchCreatedEvent struct {
	Block *BatchBlock
}

func (BatchCreatedEvent) isEvent() {}

// AckCreatedEvent fires when a peer creates an ack block.
type AckCreatedEvent struct {
	Block *AckBlock
}

func (AckCreatedEvent) isEvent() {}

// ReceiveEvent fires when a peer accepts a block into one of its trees.
// From is NoPeer for genesis seeding and self-insertion.
type ReceiveEvent struct {
	Block Block
	From  PeerID
}

func (ReceiveEvent) isEvent() {}

// OrphanEvent fires when a received block is dropped.
type OrphanEvent struct {
	Block Block
	From  PeerID
	Err   error
}

func (OrphanEvent) isEvent() {}

// SwitchEvent fires when a peer moves one of its heads to a deeper block.
// Chain is the ack-chain id, or -1 for the main chain.
type SwitchEvent struct {
	Kind  ChainKind
	Chain int
	Reorg Reorg
}

func (SwitchEvent) isEvent() {}

// MustIncludeEvent fires when a peer sees a batch block become finalized.
type MustIncludeEvent struct {
	Block *BatchBlock
}

func (MustIncludeEvent) isEvent() {}

// MainFinalizedEvent fires when a peer sees a main block acknowledged on
// every ack-chain.
type MainFinalizedEvent struct {
	Block *MainBlock
}

func (MainFinalizedEvent) isEvent() {}

// StaleTimerEvent fires when a production timer is discarded because the
// head it was armed for is no longer current.
type StaleTimerEvent struct {
	Kind  ChainKind
	Chain int
}

func (StaleTimerEvent) isEvent() {}

// Collector collects events from the simulation for analysis.
type Collector interface {
	// On is called when an event occurs.
	On(peer PeerID, when SimTime, event CollectedEvent)
}

// CollectorFunc is a function adapter for Collector.
type CollectorFunc func(peer PeerID, when SimTime, event CollectedEvent)

func (f CollectorFunc) On(peer PeerID, when SimTime, event CollectedEvent) {
	f(peer, when, event)
}

// Collectors manages a set of collectors.
type Collectors struct {
	collectors []Collector
}

// NewCollectors creates a new collector manager.
func NewCollectors() *Collectors {
	return &Collectors{}
}

// Add adds a collector.
func (c *Collectors) Add(collector Collector) {
	c.collectors = append(c.collectors, collector)
}

// On dispatches an event to all collectors.
func (c *Collectors) On(peer PeerID, when SimTime, event CollectedEvent) {
	for _, collector := range c.collectors {
		collector.On(peer, when, event)
	}
}

// CountingCollector counts collected events by type.
type CountingCollector struct {
	MainCreated    int
	BatchCreated   int
	AckCreated     int
	Received       int
	Orphans        int
	Switches       int
	Reorgs         int
	MustIncludes   int
	MainFinalized  int
	StaleTimers    int
	OrphansByCause map[string]int
}

// NewCountingCollector creates an empty counting collector.
func NewCountingCollector() *CountingCollector {
	return &CountingCollector{OrphansByCause: make(map[string]int)}
}

func (c *CountingCollector) On(peer PeerID, when SimTime, event CollectedEvent) {
	switch e := event.(type) {
	case MainCreatedEvent:
		c.MainCreated++
	case BatchCreatedEvent:
		c.BatchCreated++
	case AckCreatedEvent:
		c.AckCreated++
	case ReceiveEvent:
		c.Received++
	case OrphanEvent:
		c.Orphans++
		c.OrphansByCause[orphanCause(e.Err)]++
	case SwitchEvent:
		c.Switches++
		if e.Reorg.Detached > 0 {
			c.Reorgs++
		}
	case MustIncludeEvent:
		c.MustIncludes++
	case MainFinalizedEvent:
		c.MainFinalized++
	case StaleTimerEvent:
		c.StaleTimers++
	}
}

// TraceCollector writes a line per collected event to a zerolog logger.
type TraceCollector struct {
	log zerolog.Logger
}

// NewTraceCollector creates a trace collector logging at debug level.
func NewTraceCollector(l zerolog.Logger) *TraceCollector {
	return &TraceCollector{log: l}
}

func (c *TraceCollector) On(peer PeerID, when SimTime, event CollectedEvent) {
	ev := c.log.Debug().Float64("t", when.Seconds())
	if peer != NoPeer {
		ev = ev.Uint32("peer", uint32(peer))
	}
	ev.Msg(Describe(event))
}

// Describe renders a collected event as a single line of trace text.
func Describe(event CollectedEvent) string {
	switch e := event.(type) {
	case MainCreatedEvent:
		return fmt.Sprintf("R-block %s created (%s) and broadcasting %d txn_blocks",
			e.Block.ID, describeParent(&e.Block.Header), len(e.Block.Batches))
	case BatchCreatedEvent:
		return fmt.Sprintf("txn block %s created", e.Block.ID)
	case AckCreatedEvent:
		return fmt.Sprintf("A-block %s created (%s) in ack_chain AC%d acking %v",
			e.Block.ID, describeParent(&e.Block.Header), e.Block.Chain, e.Block.AckFor)
	case ReceiveEvent:
		return describeReceive(e)
	case OrphanEvent:
		return fmt.Sprintf("dropped %s from N%d: %v", e.Block.header().ID, e.From, e.Err)
	case SwitchEvent:
		return fmt.Sprintf("%s head %s -> %s (joint %s, -%d +%d)",
			describeChain(e.Kind, e.Chain), e.Reorg.From, e.Reorg.To, e.Reorg.Joint,
			e.Reorg.Detached, e.Reorg.Attached)
	case MustIncludeEvent:
		return fmt.Sprintf("%s became MustInclude", e.Block.ID)
	case MainFinalizedEvent:
		return fmt.Sprintf("%s acknowledged on all ack chains", e.Block.ID)
	case StaleTimerEvent:
		return fmt.Sprintf("stale %s timer ignored", describeChain(e.Kind, e.Chain))
	default:
		return fmt.Sprintf("%T", event)
	}
}

func describeReceive(e ReceiveEvent) string {
	h := e.Block.header()
	var name string
	switch b := e.Block.(type) {
	case *MainBlock:
		name = "R-block " + h.ID.String()
	case *BatchBlock:
		name = "Txn block " + h.ID.String()
	case *AckBlock:
		name = fmt.Sprintf("A-block %s in ack_chain AC%d", h.ID, b.Chain)
	}
	switch {
	case h.IsGenesis():
		return "Setting Genesis " + name
	case e.From == NoPeer:
		return name + " self-inserted"
	default:
		return fmt.Sprintf("%s received from N%d", name, e.From)
	}
}

func describeChain(kind ChainKind, chain int) string {
	if kind == KindAck {
		return fmt.Sprintf("ack_chain AC%d", chain)
	}
	return kind.String()
}

func orphanCause(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, ErrUnknownParent):
		return "unknown parent"
	case errors.Is(err, ErrDepthMismatch):
		return "depth mismatch"
	case errors.Is(err, ErrInactiveOwner):
		return "inactive owner"
	default:
		return "other"
	}
}
