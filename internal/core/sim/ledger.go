package sim

import "math/bits"

// ChainSet is a set of ack-chain ids.
type ChainSet struct {
	words []uint64
	n     int
}

func newChainSet(chains int) *ChainSet {
	return &ChainSet{words: make([]uint64, (chains+63)/64)}
}

// Add inserts a chain id and reports whether it was absent.
func (s *ChainSet) Add(chain int) bool {
	w, m := chain/64, uint64(1)<<(chain%64)
	if s.words[w]&m != 0 {
		return false
	}
	s.words[w] |= m
	s.n++
	return true
}

// Remove deletes a chain id and reports whether it was present.
func (s *ChainSet) Remove(chain int) bool {
	w, m := chain/64, uint64(1)<<(chain%64)
	if s.words[w]&m == 0 {
		return false
	}
	s.words[w] &^= m
	s.n--
	return true
}

// Has reports whether the chain id is in the set.
func (s *ChainSet) Has(chain int) bool {
	return s.words[chain/64]&(uint64(1)<<(chain%64)) != 0
}

// Len returns the number of chain ids in the set.
func (s *ChainSet) Len() int {
	return s.n
}

// Chains returns the chain ids in ascending order.
func (s *ChainSet) Chains() []int {
	out := make([]int, 0, s.n)
	for w, word := range s.words {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			out = append(out, w*64+b)
			word &^= 1 << b
		}
	}
	return out
}

// TrackedPositions is the number of leading batch positions per main period
// whose finalization latency is reported.
const TrackedPositions = 3

// Ledger is the network-wide record of finalization. A block is finalized
// the first time any peer sees its ack set reach the ack-chain count; later
// crossings on the same or other peers are ignored so every counter moves
// at most once per block.
type Ledger struct {
	finalized   map[BlockID]SimTime
	mustInclude map[BlockID]int

	stats Stats
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		finalized:   make(map[BlockID]SimTime),
		mustInclude: make(map[BlockID]int),
	}
}

// Finalized reports whether and when a block was first finalized.
func (l *Ledger) Finalized(id BlockID) (SimTime, bool) {
	t, ok := l.finalized[id]
	return t, ok
}

// MustIncludeCount returns how many batch blocks of a main block have become
// must-include.
func (l *Ledger) MustIncludeCount(main BlockID) int {
	return l.mustInclude[main]
}

func (l *Ledger) mainCreated() { l.stats.MainBlocks++ }

func (l *Ledger) batchCreated() { l.stats.BatchBlocks++ }

func (l *Ledger) ackCreated() { l.stats.AckBlocks++ }

func (l *Ledger) orphaned() { l.stats.Orphans++ }

func (l *Ledger) reorged() { l.stats.Reorgs++ }

// finalizeMain records the first finalization of a main block. Returns false
// if the block was already finalized.
func (l *Ledger) finalizeMain(m *MainBlock, now SimTime) bool {
	if _, ok := l.finalized[m.ID]; ok {
		return false
	}
	l.finalized[m.ID] = now
	l.stats.MainFinalized++
	l.stats.MainDelay += SimDuration(now - m.Created)
	return true
}

// finalizeBatch records the first finalization of a batch block: its
// transactions become confirmed and it is counted as must-include for its
// main period. Returns false if the block was already finalized.
func (l *Ledger) finalizeBatch(b *BatchBlock, now SimTime) bool {
	if _, ok := l.finalized[b.ID]; ok {
		return false
	}
	l.finalized[b.ID] = now
	l.stats.ConfirmedTx += b.TxCount
	l.stats.MustInclude++
	l.mustInclude[b.Owner.ID]++
	if b.Position >= 0 && b.Position < TrackedPositions {
		l.stats.BatchFinalized[b.Position]++
		l.stats.BatchDelay[b.Position] += SimDuration(now - b.Created)
	}
	return true
}

// Stats returns a snapshot of the counters.
func (l *Ledger) Stats() Stats {
	return l.stats
}

// Stats are the aggregate counters of a run.
type Stats struct {
	// MainBlocks, BatchBlocks and AckBlocks count created blocks, genesis
	// excluded.
	MainBlocks  uint64
	BatchBlocks uint64
	AckBlocks   uint64

	ConfirmedTx uint64
	// MustInclude counts finalized batch blocks.
	MustInclude uint64

	MainFinalized uint64
	MainDelay     SimDuration

	BatchFinalized [TrackedPositions]uint64
	BatchDelay     [TrackedPositions]SimDuration

	Orphans uint64
	Reorgs  uint64
	Events  uint64
	Elapsed SimTime
}

// Throughput is the number of confirmed transactions per simulated second.
func (s Stats) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.ConfirmedTx) / s.Elapsed.Seconds()
}

// AvgMustIncludePerMain is the mean number of must-include batch blocks per
// created main block.
func (s Stats) AvgMustIncludePerMain() float64 {
	if s.MainBlocks == 0 {
		return 0
	}
	return float64(s.MustInclude) / float64(s.MainBlocks)
}

// AvgMainDelay is the mean time from main block creation to finalization.
func (s Stats) AvgMainDelay() SimDuration {
	if s.MainFinalized == 0 {
		return 0
	}
	return s.MainDelay / SimDuration(s.MainFinalized)
}

// AvgBatchDelay is the mean time from creation to finalization of the batch
// blocks at the given position of their main period.
func (s Stats) AvgBatchDelay(pos int) SimDuration {
	if pos < 0 || pos >= TrackedPositions || s.BatchFinalized[pos] == 0 {
		return 0
	}
	return s.BatchDelay[pos] / SimDuration(s.BatchFinalized[pos])
}
