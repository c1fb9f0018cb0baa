package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quietParams returns parameters with production timers far beyond any test
// window and jitter-free links, so tests drive block creation by hand.
func quietParams(nodes, chains int) Params {
	p := DefaultParams()
	p.Nodes = nodes
	p.AckChains = chains
	p.BatchKiB = 15
	p.MainIntervalSec = 1_000_000
	p.AckIntervalSec = 1_000_000
	p.DurationMin = 60
	p.BatchesPerMain = 3
	p.Network = NetworkParams{
		MinNeighbors: nodes - 1,
		MaxNeighbors: nodes - 1,
		MinLatency:   100 * time.Millisecond,
		MaxLatency:   100 * time.Millisecond,
		MinLinkMibps: 10,
		MaxLinkMibps: 10,
	}
	return p
}

func newQuietSim(t *testing.T, nodes, chains int) (*Simulation, *CountingCollector) {
	t.Helper()
	s, err := NewSimulation(quietParams(nodes, chains))
	require.NoError(t, err)
	counts := NewCountingCollector()
	s.Collectors.Add(counts)
	for _, p := range s.Peers() {
		require.NoError(t, p.Seed(s.Genesis))
	}
	return s, counts
}

// settle delivers every in-flight block and drops production timers.
func settle(s *Simulation) {
	s.Scheduler.RunUntil(s.Scheduler.Now()+SimTime(time.Minute), func(ev Event) {
		if ev.Kind == CreateMainBlock || ev.Kind == CreateAckBlock {
			return
		}
		s.dispatch(ev)
	})
}

func mine(p *Peer) {
	p.createMain(mainTimer{Head: p.MainHead()})
}

func ack(p *Peer, chain int) {
	head, _ := p.AckHead(chain)
	p.createAck(ackTimer{Chain: chain, Head: head})
}

func lastAck(t *testing.T, p *Peer, chain int) *AckBlock {
	t.Helper()
	head, ok := p.AckHead(chain)
	require.True(t, ok)
	a, ok := p.AckTree(chain).Get(head)
	require.True(t, ok)
	return a
}

func TestPeerSeed(t *testing.T) {
	s, counts := newQuietSim(t, 2, 3)
	g := s.Genesis

	for _, p := range s.Peers() {
		assert.Equal(t, g.Main.ID, p.MainHead())
		assert.Equal(t, g.Batch.ID, p.LastBatch())
		assert.Equal(t, []BlockID{g.Main.ID}, p.ActivePeriods())
		for c := 0; c < 3; c++ {
			head, ok := p.AckHead(c)
			require.True(t, ok)
			assert.Equal(t, g.Acks[c].ID, head)
		}
	}
	assert.Equal(t, 2*(2+3), counts.Received)
	assert.Zero(t, s.Scheduler.PendingCount(), "seeding must not broadcast")
}

func TestPeerMineAndPropagate(t *testing.T) {
	s, counts := newQuietSim(t, 2, 1)
	p0, p1 := s.Peer(0), s.Peer(1)

	mine(p0)
	m1, ok := p0.MainTree().Get(p0.MainHead())
	require.True(t, ok)
	require.Len(t, m1.Batches, 3)
	assert.Equal(t, uint64(1), m1.Depth)
	assert.Equal(t, PeerID(0), m1.Creator)

	follow := s.Genesis.Batch
	for i, b := range m1.Batches {
		assert.Equal(t, i, b.Position)
		assert.Equal(t, follow.ID, b.Parent, "batch chain follows the last finalized batch")
		assert.Equal(t, follow.Depth+1, b.Depth)
		assert.Equal(t, uint64(102), b.TxCount)
		assert.Equal(t, uint64(102*AvgTxBits), b.SizeBits)
		assert.Equal(t, uint64(i)*102, b.FirstTxID)
		assert.True(t, p0.BatchTree().Has(b.ID), "creator self-inserts its batch blocks")
		follow = b
	}

	settle(s)
	assert.Equal(t, m1.ID, p1.MainHead())
	assert.Equal(t, []BlockID{s.Genesis.Main.ID, m1.ID}, p1.ActivePeriods())
	for _, b := range m1.Batches {
		assert.True(t, p1.BatchTree().Has(b.ID))
	}
	assert.Zero(t, counts.Orphans)
	assert.Equal(t, 1, counts.MainCreated)
	assert.Equal(t, 3, counts.BatchCreated)
}

func TestPeerStaleTimerIsIgnored(t *testing.T) {
	s, counts := newQuietSim(t, 2, 1)
	p0 := s.Peer(0)

	stale := p0.MainHead()
	mine(p0)
	before := p0.MainTree().Len()

	p0.createMain(mainTimer{Head: stale})
	assert.Equal(t, before, p0.MainTree().Len())
	assert.Equal(t, 1, counts.StaleTimers)

	genesisAck := s.Genesis.Acks[0].ID
	ack(p0, 0)
	p0.createAck(ackTimer{Chain: 0, Head: genesisAck})
	assert.Equal(t, 2, counts.StaleTimers)
	assert.Equal(t, 1, counts.AckCreated)
}

// TestTwoPeersSingleAckChain walks one main period through finalization with
// two peers taking turns on a single ack-chain.
func TestTwoPeersSingleAckChain(t *testing.T) {
	s, counts := newQuietSim(t, 2, 1)
	p0, p1 := s.Peer(0), s.Peer(1)
	g := s.Genesis

	mine(p0)
	settle(s)
	m1, _ := p0.MainTree().Get(p0.MainHead())

	// First ack: both main blocks are unacknowledged on chain 0.
	ack(p1, 0)
	a1 := lastAck(t, p1, 0)
	require.Len(t, a1.AckFor, 2)
	assert.Equal(t, MainAckOf(g.Main), a1.AckFor[0])
	assert.Equal(t, MainAckOf(m1), a1.AckFor[1])
	assert.Equal(t, uint64(AckBlockBits), a1.SizeBits)
	settle(s)

	for _, p := range s.Peers() {
		assert.Equal(t, []int{0}, p.AckChains(m1.ID))
		assert.Equal(t, []BlockID{m1.ID}, p.ActivePeriods(), "fully acked genesis leaves the active lineage")
	}
	st := s.Ledger.Stats()
	assert.Equal(t, uint64(2), st.MainFinalized)
	assert.Equal(t, 4, counts.MainFinalized, "reported once per peer and block")

	// Subsequent acks acknowledge one batch block each.
	for i, b := range m1.Batches {
		creator := s.Peer(PeerID(i % 2))
		ack(creator, 0)
		a := lastAck(t, creator, 0)
		require.Len(t, a.AckFor, 1)
		assert.Equal(t, BatchAckOf(b), a.AckFor[0])
		assert.Equal(t, uint64(AckBlockBits+BatchAckExtraBits), a.SizeBits)
		settle(s)

		for _, p := range s.Peers() {
			assert.Equal(t, b.ID, p.LastBatch())
			assert.Equal(t, uint64(i+1)*b.TxCount, p.ConfirmedTx())
		}
	}

	st = s.Ledger.Stats()
	assert.Equal(t, uint64(3*102), st.ConfirmedTx, "counted once network-wide")
	assert.Equal(t, uint64(3), st.MustInclude)
	for pos := 0; pos < TrackedPositions; pos++ {
		assert.Equal(t, uint64(1), st.BatchFinalized[pos])
	}
	assert.Equal(t, 3, s.Ledger.MustIncludeCount(m1.ID))
	for _, p := range s.Peers() {
		assert.Len(t, p.MustInclude(m1.ID), 3)
	}

	// Nothing left to acknowledge: an empty ack block.
	ack(p0, 0)
	assert.Empty(t, lastAck(t, p0, 0).AckFor)

	// The next period extends the batch chain from the last finalized block.
	mine(p1)
	m2, _ := p1.MainTree().Get(p1.MainHead())
	assert.Equal(t, m1.Batches[2].ID, m2.Batches[0].Parent)
	settle(s)
	assert.Equal(t, []BlockID{m2.ID}, p0.ActivePeriods())
	assert.Zero(t, counts.Orphans)
}

func TestBatchForInactivePeriodIsOrphaned(t *testing.T) {
	s, counts := newQuietSim(t, 2, 1)
	p0, p1 := s.Peer(0), s.Peer(1)

	// p0 mines m1 privately; p1 sees a batch block before its owner.
	mine(p0)
	m1, _ := p0.MainTree().Get(p0.MainHead())
	s.Scheduler = NewScheduler()
	s.env.sched = s.Scheduler
	s.Net.scheduler = s.Scheduler

	p1.Handle(Event{Kind: ReceiveBatchBlock, From: 0, To: 1, Payload: m1.Batches[0]})
	assert.False(t, p1.BatchTree().Has(m1.Batches[0].ID))
	assert.Equal(t, 1, counts.OrphansByCause["inactive owner"])
	assert.True(t, p1.Received(m1.Batches[0].ID), "dropped blocks are remembered")

	// A redelivery after the owner arrives is still a duplicate.
	p1.Handle(Event{Kind: ReceiveMainBlock, From: 0, To: 1, Payload: m1})
	p1.Handle(Event{Kind: ReceiveBatchBlock, From: 0, To: 1, Payload: m1.Batches[0]})
	assert.False(t, p1.BatchTree().Has(m1.Batches[0].ID))
	assert.Equal(t, 1, counts.Orphans)

	// Its child now has an unknown parent.
	p1.Handle(Event{Kind: ReceiveBatchBlock, From: 0, To: 1, Payload: m1.Batches[1]})
	assert.Equal(t, 1, counts.OrphansByCause["unknown parent"])
}

func TestMainOrphanIsNotRelayed(t *testing.T) {
	s, counts := newQuietSim(t, 3, 1)
	p0, p1 := s.Peer(0), s.Peer(1)

	mine(p0)
	m1, _ := p0.MainTree().Get(p0.MainHead())
	mine(p0)
	m2, _ := p0.MainTree().Get(p0.MainHead())

	s.Scheduler = NewScheduler()
	s.env.sched = s.Scheduler
	s.Net.scheduler = s.Scheduler

	p1.Handle(Event{Kind: ReceiveMainBlock, From: 0, To: 1, Payload: m2})
	assert.Equal(t, 1, counts.OrphansByCause["unknown parent"])
	assert.Zero(t, s.Scheduler.PendingCount(), "orphans are not relayed")

	p1.Handle(Event{Kind: ReceiveMainBlock, From: 0, To: 1, Payload: m1})
	assert.Equal(t, m1.ID, p1.MainHead())
	assert.Positive(t, s.Scheduler.PendingCount(), "accepted blocks are relayed")
}

func TestMainReorgKeepsActiveLineage(t *testing.T) {
	s, counts := newQuietSim(t, 2, 2)
	p0 := s.Peer(0)
	g := s.Genesis
	ids := s.IDs()

	m1 := mainChild(ids, g.Main)
	m2 := mainChild(ids, m1)
	f1 := mainChild(ids, g.Main)
	f2 := mainChild(ids, f1)
	f3 := mainChild(ids, f2)

	for _, m := range []*MainBlock{m1, m2, f1, f2} {
		p0.Handle(Event{Kind: ReceiveMainBlock, From: 1, To: 0, Payload: m})
	}
	assert.Equal(t, m2.ID, p0.MainHead(), "equal depth does not switch")
	assert.Equal(t, []BlockID{g.Main.ID, m1.ID, m2.ID}, p0.ActivePeriods())

	p0.Handle(Event{Kind: ReceiveMainBlock, From: 1, To: 0, Payload: f3})
	assert.Equal(t, f3.ID, p0.MainHead())
	assert.Equal(t, []BlockID{g.Main.ID, f1.ID, f2.ID, f3.ID}, p0.ActivePeriods())
	assert.Equal(t, 1, counts.Reorgs)
	assert.Equal(t, uint64(1), s.Ledger.Stats().Reorgs)
}

func ackChild(ids *IDAllocator, parent *AckBlock, targets ...AckTarget) *AckBlock {
	return &AckBlock{
		Header: Header{
			ID:        ids.NextAck(),
			Creator:   1,
			Depth:     parent.Depth + 1,
			Parent:    parent.ID,
			HasParent: true,
			SizeBits:  AckBlockBits,
		},
		Chain:  parent.Chain,
		AckFor: targets,
	}
}

// TestAckReorgRetractsAndReapplies switches chain 0 between two branches and
// checks ack sets follow the current lineage while finalization side effects
// happen once.
func TestAckReorgRetractsAndReapplies(t *testing.T) {
	s, counts := newQuietSim(t, 2, 2)
	p0 := s.Peer(0)
	g := s.Genesis
	ids := s.IDs()

	mine(p0)
	m1, _ := p0.MainTree().Get(p0.MainHead())
	b1, b2 := m1.Batches[0], m1.Batches[1]

	deliver := func(a *AckBlock) {
		p0.Handle(Event{Kind: ReceiveAckBlock, From: 1, To: 0, Payload: a})
	}

	// Branch A on chain 0: acks m1, then b1.
	a1 := ackChild(ids, g.Acks[0], MainAckOf(m1))
	a2 := ackChild(ids, a1, BatchAckOf(b1))
	deliver(a1)
	deliver(a2)
	assert.Equal(t, []int{0}, p0.AckChains(m1.ID))
	assert.Equal(t, []int{0}, p0.AckChains(b1.ID))

	// Branch B on chain 0 reaches depth 3 and acks b2 only.
	x1 := ackChild(ids, g.Acks[0])
	x2 := ackChild(ids, x1)
	deliver(x1)
	deliver(x2)
	head, _ := p0.AckHead(0)
	assert.Equal(t, a2.ID, head, "equal depth does not switch")

	x3 := ackChild(ids, x2, BatchAckOf(b2))
	deliver(x3)
	head, _ = p0.AckHead(0)
	assert.Equal(t, x3.ID, head)
	assert.Empty(t, p0.AckChains(m1.ID), "retracted with branch A")
	assert.Empty(t, p0.AckChains(b1.ID))
	assert.Equal(t, []int{0}, p0.AckChains(b2.ID))
	assert.Equal(t, 1, counts.Reorgs)

	// Chain 1 acks m1 and b2: b2 is now finalized.
	c1 := ackChild(ids, g.Acks[1], MainAckOf(m1), BatchAckOf(b2))
	deliver(c1)
	assert.Equal(t, []int{0, 1}, p0.AckChains(b2.ID))
	assert.Equal(t, b2.TxCount, p0.ConfirmedTx())
	assert.Equal(t, b2.ID, p0.LastBatch())

	// Branch A grows past branch B and re-acks b2: b2 drops below threshold
	// and crosses it again without being counted twice.
	a3 := ackChild(ids, a2)
	a4 := ackChild(ids, a3, BatchAckOf(b2))
	deliver(a3)
	deliver(a4)
	head, _ = p0.AckHead(0)
	assert.Equal(t, a4.ID, head)
	assert.Equal(t, []int{0, 1}, p0.AckChains(m1.ID))
	assert.Equal(t, []int{0}, p0.AckChains(b1.ID))
	assert.Equal(t, []int{0, 1}, p0.AckChains(b2.ID))
	assert.Equal(t, 2, counts.Reorgs)

	st := s.Ledger.Stats()
	assert.Equal(t, b2.TxCount, st.ConfirmedTx)
	assert.Equal(t, uint64(1), st.MustInclude)
	assert.Equal(t, uint64(1), st.BatchFinalized[1])
	assert.Equal(t, b2.TxCount, p0.ConfirmedTx())
	assert.Len(t, p0.MustInclude(m1.ID), 1)
	assert.Equal(t, 1, counts.MustIncludes)
	assert.Equal(t, uint64(1), st.MainFinalized, "m1 is finalized when branch A returns")
}

func TestAckBlockForUnknownChain(t *testing.T) {
	s, counts := newQuietSim(t, 2, 1)
	p0 := s.Peer(0)

	bogus := &AckBlock{Header: Header{ID: s.IDs().NextAck(), Depth: 1, HasParent: true, Parent: s.Genesis.Acks[0].ID}, Chain: 4}
	p0.Handle(Event{Kind: ReceiveAckBlock, From: 1, To: 0, Payload: bogus})
	assert.Equal(t, 1, counts.Orphans)
}

// TestUnseededPeerIgnoresAcks covers a peer that never received the genesis
// blocks: ack blocks cannot attach and its ack timers do nothing.
func TestUnseededPeerIgnoresAcks(t *testing.T) {
	s, counts := newQuietSim(t, 2, 1)
	fresh := newPeer(1, s.env)

	a := ackChild(s.IDs(), s.Genesis.Acks[0], MainAckOf(s.Genesis.Main))
	fresh.Handle(Event{Kind: ReceiveAckBlock, From: 0, To: 1, Payload: a})
	_, ok := fresh.AckHead(0)
	assert.False(t, ok)
	assert.False(t, fresh.AckTree(0).Has(a.ID))
	assert.Equal(t, 1, counts.OrphansByCause["unknown parent"])

	before := s.Ledger.Stats().AckBlocks
	fresh.Handle(Event{Kind: CreateAckBlock, From: 1, To: 1, Payload: ackTimer{Chain: 0}})
	assert.Equal(t, before, s.Ledger.Stats().AckBlocks)
	assert.Zero(t, s.Scheduler.PendingCount(), "nothing relayed or re-armed")
}
