package sim

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrInactiveOwner indicates a batch block whose main period the receiving
// peer does not consider active.
var ErrInactiveOwner = errors.New("owner main block not in an active period")

// ErrUnknownChain indicates an ack block for a chain id out of range.
var ErrUnknownChain = errors.New("unknown ack chain")

// mainTimer is the payload of a CreateMainBlock event: the main head at the
// time the timer was armed.
type mainTimer struct {
	Head BlockID
}

func (mainTimer) isPayload() {}

// ackTimer is the payload of a CreateAckBlock event.
type ackTimer struct {
	Chain int
	Head  BlockID
}

func (ackTimer) isPayload() {}

// env is the state a Simulation shares with its peers.
type env struct {
	params     Params
	sched      *Scheduler
	net        *Network
	rng        *rand.Rand
	ids        *IDAllocator
	ledger     *Ledger
	collectors *Collectors
}

// Peer is a single simulated node. It keeps its own view of every chain and
// derives ack sets and must-include sets from that view alone. All methods
// run on the simulation goroutine.
type Peer struct {
	ID  PeerID
	env *env

	mainTree  *BlockTree[*MainBlock]
	batchTree *BlockTree[*BatchBlock]
	ackTrees  []*BlockTree[*AckBlock]

	mainHead  BlockID
	ackHeads  []BlockID
	ackSeeded []bool
	lastBatch *BatchBlock

	// active is the main lineage from the head upward, oldest first. The head
	// is always included; ancestors stop before the first fully acknowledged
	// block.
	active    []*MainBlock
	activeSet map[BlockID]struct{}

	received    map[BlockID]struct{}
	acks        map[BlockID]*ChainSet
	mustInclude map[BlockID][]*BatchBlock
	finalized   map[BlockID]struct{}
	confirmedTx uint64
}

func newPeer(id PeerID, e *env) *Peer {
	chains := e.params.AckChains
	return &Peer{
		ID:          id,
		env:         e,
		mainTree:    NewBlockTree[*MainBlock](KindMain),
		batchTree:   NewBlockTree[*BatchBlock](KindBatch),
		ackTrees:    newAckTrees(chains),
		ackHeads:    make([]BlockID, chains),
		ackSeeded:   make([]bool, chains),
		activeSet:   make(map[BlockID]struct{}),
		received:    make(map[BlockID]struct{}),
		acks:        make(map[BlockID]*ChainSet),
		mustInclude: make(map[BlockID][]*BatchBlock),
		finalized:   make(map[BlockID]struct{}),
	}
}

func newAckTrees(chains int) []*BlockTree[*AckBlock] {
	trees := make([]*BlockTree[*AckBlock], chains)
	for c := range trees {
		trees[c] = NewBlockTree[*AckBlock](KindAck)
	}
	return trees
}

func (p *Peer) emit(event CollectedEvent) {
	p.env.collectors.On(p.ID, p.env.sched.Now(), event)
}

func (p *Peer) orphan(b Block, from PeerID, err error) {
	p.env.ledger.orphaned()
	p.emit(OrphanEvent{Block: b, From: from, Err: err})
}

// Seed installs the genesis blocks as roots and heads of every chain.
func (p *Peer) Seed(g *Genesis) error {
	if len(g.Acks) != len(p.ackTrees) {
		return fmt.Errorf("seed peer %d: %d ack genesis blocks for %d chains", p.ID, len(g.Acks), len(p.ackTrees))
	}
	if err := p.mainTree.Insert(g.Main); err != nil {
		return fmt.Errorf("seed peer %d: %w", p.ID, err)
	}
	p.received[g.Main.ID] = struct{}{}
	p.mainHead = g.Main.ID
	p.emit(ReceiveEvent{Block: g.Main, From: NoPeer})

	if err := p.batchTree.Insert(g.Batch); err != nil {
		return fmt.Errorf("seed peer %d: %w", p.ID, err)
	}
	p.received[g.Batch.ID] = struct{}{}
	p.lastBatch = g.Batch
	p.emit(ReceiveEvent{Block: g.Batch, From: NoPeer})

	for c, a := range g.Acks {
		if err := p.ackTrees[c].Insert(a); err != nil {
			return fmt.Errorf("seed peer %d: %w", p.ID, err)
		}
		p.received[a.ID] = struct{}{}
		p.ackHeads[c] = a.ID
		p.ackSeeded[c] = true
		p.emit(ReceiveEvent{Block: a, From: NoPeer})
	}
	p.recomputeActive()
	return nil
}

// Start arms the main timer and one timer per ack-chain.
func (p *Peer) Start() {
	p.armMain()
	for c := range p.ackTrees {
		p.armAck(c)
	}
}

func (p *Peer) exp(mean SimDuration) SimDuration {
	return SimDuration(p.env.rng.ExpFloat64() * float64(mean))
}

func (p *Peer) armMain() {
	p.env.sched.In(p.exp(p.env.params.MainMean()), Event{
		Kind:    CreateMainBlock,
		From:    p.ID,
		To:      p.ID,
		Payload: mainTimer{Head: p.mainHead},
	})
}

func (p *Peer) armAck(chain int) {
	p.env.sched.In(p.exp(p.env.params.AckMean()), Event{
		Kind:    CreateAckBlock,
		From:    p.ID,
		To:      p.ID,
		Payload: ackTimer{Chain: chain, Head: p.ackHeads[chain]},
	})
}

// Handle dispatches a scheduler event addressed to this peer.
func (p *Peer) Handle(ev Event) {
	switch ev.Kind {
	case CreateMainBlock:
		if t, ok := ev.Payload.(mainTimer); ok {
			p.createMain(t)
		}
	case ReceiveMainBlock:
		if m, ok := ev.Payload.(*MainBlock); ok {
			p.receiveMain(ev.From, m)
		}
	case ReceiveBatchBlock:
		if b, ok := ev.Payload.(*BatchBlock); ok {
			p.receiveBatch(ev.From, b)
		}
	case CreateAckBlock:
		if t, ok := ev.Payload.(ackTimer); ok {
			p.createAck(t)
		}
	case ReceiveAckBlock:
		if a, ok := ev.Payload.(*AckBlock); ok {
			p.receiveAck(ev.From, a)
		}
	}
}

// createMain mines a main block on the current head together with its batch
// blocks, which extend the batch chain from the last finalized batch block.
func (p *Peer) createMain(t mainTimer) {
	if t.Head != p.mainHead {
		p.emit(StaleTimerEvent{Kind: KindMain, Chain: -1})
		return
	}
	e := p.env
	parent, _ := p.mainTree.Get(p.mainHead)
	now := e.sched.Now()

	m := &MainBlock{Header: Header{
		ID:        e.ids.NextMain(),
		Creator:   p.ID,
		Created:   now,
		Depth:     parent.Depth + 1,
		Parent:    parent.ID,
		HasParent: true,
		SizeBits:  MainBlockBits,
	}}
	txCount := e.params.TxPerBatch()
	follow := p.lastBatch
	m.Batches = make([]*BatchBlock, 0, e.params.BatchesPerMain)
	for i := 0; i < e.params.BatchesPerMain; i++ {
		b := &BatchBlock{
			Header: Header{
				ID:        e.ids.NextBatch(),
				Creator:   p.ID,
				Created:   now,
				Depth:     follow.Depth + 1,
				Parent:    follow.ID,
				HasParent: true,
				SizeBits:  txCount * AvgTxBits,
			},
			Owner:     m,
			TxCount:   txCount,
			FirstTxID: e.ids.NextTxRange(txCount),
			Position:  i,
		}
		m.Batches = append(m.Batches, b)
		follow = b
	}

	e.ledger.mainCreated()
	p.emit(MainCreatedEvent{Block: m})
	p.receiveMain(NoPeer, m)

	for _, b := range m.Batches {
		e.ledger.batchCreated()
		p.emit(BatchCreatedEvent{Block: b})
		p.receiveBatch(NoPeer, b)
	}
}

func (p *Peer) receiveMain(from PeerID, m *MainBlock) {
	if _, ok := p.received[m.ID]; ok {
		return
	}
	p.received[m.ID] = struct{}{}

	if err := p.mainTree.Insert(m); err != nil {
		p.orphan(m, from, err)
		return
	}
	p.emit(ReceiveEvent{Block: m, From: from})

	head, _ := p.mainTree.Get(p.mainHead)
	if m.Depth > head.Depth {
		p.switchMain(m.ID)
	}
	p.env.net.Broadcast(p.ID, from, ReceiveMainBlock, m)
}

func (p *Peer) switchMain(newHead BlockID) {
	r, err := p.mainTree.Switch(p.mainHead, newHead, nil, nil)
	if err != nil {
		// Every main block descends from the shared genesis.
		panic(fmt.Sprintf("peer %d: %v", p.ID, err))
	}
	p.mainHead = newHead
	p.recomputeActive()
	p.armMain()
	if r.Detached > 0 {
		p.env.ledger.reorged()
	}
	p.emit(SwitchEvent{Kind: KindMain, Chain: -1, Reorg: r})
}

func (p *Peer) receiveBatch(from PeerID, b *BatchBlock) {
	if _, ok := p.received[b.ID]; ok {
		return
	}
	p.received[b.ID] = struct{}{}

	if _, ok := p.activeSet[b.Owner.ID]; !ok {
		p.orphan(b, from, fmt.Errorf("%w: %s (owner %s)", ErrInactiveOwner, b.ID, b.Owner.ID))
		return
	}
	if err := p.batchTree.Insert(b); err != nil {
		p.orphan(b, from, err)
		return
	}
	p.emit(ReceiveEvent{Block: b, From: from})
	p.env.net.Broadcast(p.ID, from, ReceiveBatchBlock, b)
}

// createAck builds an ack block for one chain. Every active main block the
// chain has not acknowledged yet gets a main ack; the first active period the
// chain has acknowledged contributes a batch ack for its first batch block
// the chain has not acknowledged.
func (p *Peer) createAck(t ackTimer) {
	c := t.Chain
	if c < 0 || c >= len(p.ackTrees) || !p.ackSeeded[c] {
		return
	}
	if t.Head != p.ackHeads[c] {
		p.emit(StaleTimerEvent{Kind: KindAck, Chain: c})
		return
	}
	e := p.env
	parent, _ := p.ackTrees[c].Get(p.ackHeads[c])

	a := &AckBlock{
		Header: Header{
			ID:        e.ids.NextAck(),
			Creator:   p.ID,
			Created:   e.sched.Now(),
			Depth:     parent.Depth + 1,
			Parent:    parent.ID,
			HasParent: true,
			SizeBits:  AckBlockBits,
		},
		Chain: c,
	}

	batchAcked := false
	for _, m := range p.active {
		if !p.hasAck(m.ID, c) {
			a.AckFor = append(a.AckFor, MainAckOf(m))
			continue
		}
		if batchAcked {
			continue
		}
		for _, b := range m.Batches {
			if !p.hasAck(b.ID, c) && p.batchTree.Has(b.ID) {
				a.AckFor = append(a.AckFor, BatchAckOf(b))
				a.SizeBits += BatchAckExtraBits
				batchAcked = true
				break
			}
		}
	}

	e.ledger.ackCreated()
	p.emit(AckCreatedEvent{Block: a})
	p.receiveAck(NoPeer, a)
}

func (p *Peer) receiveAck(from PeerID, a *AckBlock) {
	if _, ok := p.received[a.ID]; ok {
		return
	}
	p.received[a.ID] = struct{}{}

	c := a.Chain
	if c < 0 || c >= len(p.ackTrees) {
		p.orphan(a, from, fmt.Errorf("%w: %d", ErrUnknownChain, c))
		return
	}
	if err := p.ackTrees[c].Insert(a); err != nil {
		p.orphan(a, from, err)
		return
	}
	p.emit(ReceiveEvent{Block: a, From: from})

	if head, _ := p.ackTrees[c].Get(p.ackHeads[c]); a.Depth > head.Depth {
		p.switchAck(c, a.ID)
	}
	p.env.net.Broadcast(p.ID, from, ReceiveAckBlock, a)
}

func (p *Peer) switchAck(c int, newHead BlockID) {
	r, err := p.ackTrees[c].Switch(p.ackHeads[c], newHead, p.detachAck, p.attachAck)
	if err != nil {
		panic(fmt.Sprintf("peer %d chain %d: %v", p.ID, c, err))
	}
	p.ackHeads[c] = newHead
	p.recomputeActive()
	p.armAck(c)
	if r.Detached > 0 {
		p.env.ledger.reorged()
	}
	p.emit(SwitchEvent{Kind: KindAck, Chain: c, Reorg: r})
}

func (p *Peer) attachAck(a *AckBlock) {
	full := p.env.params.AckChains
	for _, t := range a.AckFor {
		id := t.ID()
		set, ok := p.acks[id]
		if !ok {
			set = newChainSet(full)
			p.acks[id] = set
		}
		if set.Add(a.Chain) && set.Len() == full {
			p.onFinalized(t)
		}
	}
}

func (p *Peer) detachAck(a *AckBlock) {
	for _, t := range a.AckFor {
		if set, ok := p.acks[t.ID()]; ok {
			set.Remove(a.Chain)
		}
	}
}

// onFinalized runs when a target's ack set crosses the threshold. Peer-local
// effects happen once per peer, network-wide counters once per block.
func (p *Peer) onFinalized(t AckTarget) {
	now := p.env.sched.Now()
	id := t.ID()
	_, seen := p.finalized[id]
	p.finalized[id] = struct{}{}

	switch t.Kind {
	case MainAck:
		p.env.ledger.finalizeMain(t.Main, now)
		if !seen {
			p.emit(MainFinalizedEvent{Block: t.Main})
		}
	case BatchAck:
		b := t.Batch
		p.env.ledger.finalizeBatch(b, now)
		if seen {
			return
		}
		p.mustInclude[b.Owner.ID] = append(p.mustInclude[b.Owner.ID], b)
		p.confirmedTx += b.TxCount
		if p.batchTree.Has(b.ID) && b.Depth > p.lastBatch.Depth {
			p.lastBatch = b
		}
		p.emit(MustIncludeEvent{Block: b})
	}
}

func (p *Peer) hasAck(id BlockID, chain int) bool {
	set, ok := p.acks[id]
	return ok && set.Has(chain)
}

func (p *Peer) fullyAcked(id BlockID) bool {
	set, ok := p.acks[id]
	return ok && set.Len() == p.env.params.AckChains
}

func (p *Peer) recomputeActive() {
	var lineage []*MainBlock
	_ = p.mainTree.Walk(p.mainHead, func(m *MainBlock) bool {
		if m.ID != p.mainHead && p.fullyAcked(m.ID) {
			return false
		}
		lineage = append(lineage, m)
		return true
	})
	for i, j := 0, len(lineage)-1; i < j; i, j = i+1, j-1 {
		lineage[i], lineage[j] = lineage[j], lineage[i]
	}
	p.active = lineage
	p.activeSet = make(map[BlockID]struct{}, len(lineage))
	for _, m := range lineage {
		p.activeSet[m.ID] = struct{}{}
	}
}

// MainHead returns the id of the peer's main-chain head.
func (p *Peer) MainHead() BlockID { return p.mainHead }

// AckHead returns the head of an ack-chain, if the chain has been seeded.
func (p *Peer) AckHead(chain int) (BlockID, bool) {
	if chain < 0 || chain >= len(p.ackHeads) || !p.ackSeeded[chain] {
		return BlockID{}, false
	}
	return p.ackHeads[chain], true
}

// LastBatch returns the batch block new batch blocks will extend.
func (p *Peer) LastBatch() BlockID { return p.lastBatch.ID }

// ActivePeriods returns the active main lineage, oldest first.
func (p *Peer) ActivePeriods() []BlockID {
	out := make([]BlockID, len(p.active))
	for i, m := range p.active {
		out[i] = m.ID
	}
	return out
}

// AckChains returns the ack-chain ids whose current lineage acknowledges id.
func (p *Peer) AckChains(id BlockID) []int {
	set, ok := p.acks[id]
	if !ok {
		return nil
	}
	return set.Chains()
}

// MustInclude returns the batch blocks of a main block this peer has seen
// finalized, in finalization order.
func (p *Peer) MustInclude(main BlockID) []BlockID {
	batches := p.mustInclude[main]
	out := make([]BlockID, len(batches))
	for i, b := range batches {
		out[i] = b.ID
	}
	return out
}

// ConfirmedTx returns the transactions this peer has seen confirmed.
func (p *Peer) ConfirmedTx() uint64 { return p.confirmedTx }

// Received reports whether the peer has seen a block id.
func (p *Peer) Received(id BlockID) bool {
	_, ok := p.received[id]
	return ok
}

// MainTree returns the peer's main-chain tree.
func (p *Peer) MainTree() *BlockTree[*MainBlock] { return p.mainTree }

// BatchTree returns the peer's batch-chain tree.
func (p *Peer) BatchTree() *BlockTree[*BatchBlock] { return p.batchTree }

// AckTree returns the peer's tree for one ack-chain.
func (p *Peer) AckTree(chain int) *BlockTree[*AckBlock] { return p.ackTrees[chain] }
