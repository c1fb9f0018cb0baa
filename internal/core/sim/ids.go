// Package sim implements a deterministic discrete event simulation of a
// multi-chain acknowledgment ledger: a mined main chain, a transaction batch
// chain anchored per main period, and a fixed number of parallel ack-chains
// whose blocks acknowledge main and batch blocks.
//
// Time is purely logical. A Simulation drains its Scheduler one event at a
// time and every handler runs to completion before the next event fires.
package sim

import "fmt"

// PeerID uniquely identifies a peer in the simulation.
type PeerID uint32

// NoPeer is used as the source of locally originated events and as the
// creator of genesis blocks.
const NoPeer PeerID = ^PeerID(0)

// ChainKind is the namespace a block identifier belongs to.
type ChainKind uint8

const (
	KindMain ChainKind = iota
	KindAck
	KindBatch
	KindTx
)

func (k ChainKind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindAck:
		return "ack"
	case KindBatch:
		return "batch"
	case KindTx:
		return "tx"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// prefix is the short tag used in trace output (R5, A12, TB3).
func (k ChainKind) prefix() string {
	switch k {
	case KindMain:
		return "R"
	case KindAck:
		return "A"
	case KindBatch:
		return "TB"
	default:
		return "T"
	}
}

// BlockID is a tagged identifier. Ids from different namespaces never compare
// equal even when their sequence numbers match.
type BlockID struct {
	Kind ChainKind
	Seq  uint64
}

func (id BlockID) String() string {
	return fmt.Sprintf("%s%d", id.Kind.prefix(), id.Seq)
}

// IDAllocator hands out unique sequence numbers per namespace.
type IDAllocator struct {
	next [4]uint64
}

// NewIDAllocator creates an allocator with every namespace starting at 0.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{}
}

func (a *IDAllocator) alloc(kind ChainKind) BlockID {
	id := BlockID{Kind: kind, Seq: a.next[kind]}
	a.next[kind]++
	return id
}

// NextMain returns a new main-chain block id.
func (a *IDAllocator) NextMain() BlockID { return a.alloc(KindMain) }

// NextAck returns a new ack-chain block id.
func (a *IDAllocator) NextAck() BlockID { return a.alloc(KindAck) }

// NextBatch returns a new batch-chain block id.
func (a *IDAllocator) NextBatch() BlockID { return a.alloc(KindBatch) }

// NextTxRange reserves n consecutive transaction ids and returns the first.
func (a *IDAllocator) NextTxRange(n uint64) uint64 {
	first := a.next[KindTx]
	a.next[KindTx] += n
	return first
}
