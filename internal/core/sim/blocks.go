package sim

import "fmt"

// Block sizes on the wire, in bits.
const (
	MainBlockBits     = 128 * 8
	AckBlockBits      = 16 * 8
	BatchAckExtraBits = 8 * 8
	// AvgTxBits is the average transaction size used to fill batch blocks.
	AvgTxBits = 150 * 8
)

// Header holds the fields shared by every block kind. A header is immutable
// once the block has been handed to the network.
type Header struct {
	ID        BlockID
	Creator   PeerID
	Created   SimTime
	Depth     uint64
	Parent    BlockID
	HasParent bool
	SizeBits  uint64
}

func (h *Header) header() *Header { return h }

func (*Header) isPayload() {}

// IsGenesis reports whether the block has no parent.
func (h *Header) IsGenesis() bool { return !h.HasParent }

// Block is implemented by every block kind stored in a BlockTree. Blocks
// travel as event payloads.
type Block interface {
	Payload
	header() *Header
}

// MainBlock is a block of the periodically mined main chain (R-chain).
// Batches is filled by the creator before the block is broadcast.
type MainBlock struct {
	Header
	Batches []*BatchBlock
}

// BatchBlock carries a fixed quota of transactions. Batch blocks form a single
// chain that is not tied to main-chain branches; Owner is only used to decide
// whether the block belongs to a period the receiver considers active.
type BatchBlock struct {
	Header
	Owner     *MainBlock
	TxCount   uint64
	FirstTxID uint64
	// Position is the index of the block within its main period.
	Position int
}

// AckBlock is a block of one of the parallel ack-chains.
type AckBlock struct {
	Header
	Chain  int
	AckFor []AckTarget
}

// AckTargetKind distinguishes the two kinds of acknowledgment.
type AckTargetKind uint8

const (
	MainAck AckTargetKind = iota
	BatchAck
)

// AckTarget names a block acknowledged by an AckBlock. Exactly one of Main or
// Batch is set, according to Kind.
type AckTarget struct {
	Kind  AckTargetKind
	Main  *MainBlock
	Batch *BatchBlock
}

// MainAckOf acknowledges a main block.
func MainAckOf(m *MainBlock) AckTarget {
	return AckTarget{Kind: MainAck, Main: m}
}

// BatchAckOf acknowledges a batch block.
func BatchAckOf(b *BatchBlock) AckTarget {
	return AckTarget{Kind: BatchAck, Batch: b}
}

// ID returns the identifier of the acknowledged block.
func (t AckTarget) ID() BlockID {
	if t.Kind == BatchAck {
		return t.Batch.ID
	}
	return t.Main.ID
}

// Created returns the creation time of the acknowledged block.
func (t AckTarget) Created() SimTime {
	if t.Kind == BatchAck {
		return t.Batch.Created
	}
	return t.Main.Created
}

func (t AckTarget) String() string {
	return t.ID().String()
}

// newGenesis builds the shared genesis header for a namespace.
func newGenesis(id BlockID) Header {
	return Header{ID: id, Creator: NoPeer}
}

// Genesis is the set of genesis blocks every peer starts from.
type Genesis struct {
	Main  *MainBlock
	Batch *BatchBlock
	Acks  []*AckBlock
}

// NewGenesis allocates genesis blocks for the main chain, the batch chain and
// each of the ack-chains.
func NewGenesis(ids *IDAllocator, ackChains int) *Genesis {
	main := &MainBlock{Header: newGenesis(ids.NextMain())}
	g := &Genesis{
		Main:  main,
		Batch: &BatchBlock{Header: newGenesis(ids.NextBatch()), Owner: main},
		Acks:  make([]*AckBlock, ackChains),
	}
	for c := 0; c < ackChains; c++ {
		g.Acks[c] = &AckBlock{Header: newGenesis(ids.NextAck()), Chain: c}
	}
	return g
}

func describeParent(h *Header) string {
	if !h.HasParent {
		return "genesis"
	}
	return fmt.Sprintf("parent %s", h.Parent)
}
