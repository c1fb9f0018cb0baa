package sim

import (
	"errors"
	"fmt"
	"time"
)

// DefaultBatchesPerMain is the number of batch blocks a main block anchors.
const DefaultBatchesPerMain = 10

// Params are the run parameters of a Simulation. Interval fields use the
// per-peer convention: the network-wide mean grows with the peer count so the
// aggregate production rate stays constant.
type Params struct {
	// Nodes is the number of peers.
	Nodes int
	// BatchKiB is the batch block size in KiB.
	BatchKiB int
	// MainIntervalSec is the mean main block interval in seconds.
	MainIntervalSec int
	// AckChains is the number of parallel ack-chains.
	AckChains int
	// AckIntervalSec is the network-wide mean ack block interval in seconds on
	// each ack-chain.
	AckIntervalSec int
	// DurationMin is the simulated run length in minutes.
	DurationMin int
	// BatchesPerMain is the number of batch blocks created with each main block.
	BatchesPerMain int
	// Seed seeds the run's random source.
	Seed int64

	Network NetworkParams
}

// NetworkParams describe the random topology and the delay model.
type NetworkParams struct {
	MinNeighbors int
	MaxNeighbors int
	MinLatency   SimDuration
	MaxLatency   SimDuration
	// MinLinkMibps and MaxLinkMibps bound each peer's link capacity.
	MinLinkMibps int
	MaxLinkMibps int
	// QueueingBits is the reference size of the queueing jitter; the jitter
	// mean on a link is QueueingBits / bandwidth. Zero disables jitter.
	QueueingBits uint64
}

// DefaultNetworkParams returns the topology ranges of the reference setup.
func DefaultNetworkParams() NetworkParams {
	return NetworkParams{
		MinNeighbors: 6,
		MaxNeighbors: 11,
		MinLatency:   10 * time.Millisecond,
		MaxLatency:   500 * time.Millisecond,
		MinLinkMibps: 5,
		MaxLinkMibps: 100,
		QueueingBits: 96 * 1024,
	}
}

// DefaultParams returns the reference parameter set.
func DefaultParams() Params {
	return Params{
		Nodes:           128,
		BatchKiB:        1024,
		MainIntervalSec: 600,
		AckChains:       32,
		AckIntervalSec:  10,
		DurationMin:     300,
		BatchesPerMain:  DefaultBatchesPerMain,
		Network:         DefaultNetworkParams(),
	}
}

// Validate checks the parameters for values the simulation cannot run with.
func (p Params) Validate() error {
	if p.Nodes < 1 {
		return fmt.Errorf("nodes must be at least 1, got %d", p.Nodes)
	}
	if p.BatchKiB < 1 {
		return fmt.Errorf("batch size must be at least 1 KiB, got %d", p.BatchKiB)
	}
	if p.MainIntervalSec <= 0 {
		return fmt.Errorf("main interval must be positive, got %d", p.MainIntervalSec)
	}
	if p.AckChains < 1 {
		return fmt.Errorf("ack chain count must be at least 1, got %d", p.AckChains)
	}
	if p.AckIntervalSec <= 0 {
		return fmt.Errorf("ack interval must be positive, got %d", p.AckIntervalSec)
	}
	if p.DurationMin <= 0 {
		return fmt.Errorf("duration must be positive, got %d", p.DurationMin)
	}
	if p.BatchesPerMain < 1 {
		return fmt.Errorf("batches per main block must be at least 1, got %d", p.BatchesPerMain)
	}
	if err := p.Network.Validate(); err != nil {
		return fmt.Errorf("network: %w", err)
	}
	return nil
}

// Validate checks the network ranges.
func (n NetworkParams) Validate() error {
	if n.MinNeighbors < 1 || n.MaxNeighbors < n.MinNeighbors {
		return fmt.Errorf("invalid neighbor range [%d, %d]", n.MinNeighbors, n.MaxNeighbors)
	}
	if n.MinLatency < 0 || n.MaxLatency < n.MinLatency {
		return fmt.Errorf("invalid latency range [%s, %s]", n.MinLatency, n.MaxLatency)
	}
	if n.MinLinkMibps < 1 || n.MaxLinkMibps < n.MinLinkMibps {
		return fmt.Errorf("invalid link capacity range [%d, %d] Mibit/s", n.MinLinkMibps, n.MaxLinkMibps)
	}
	return nil
}

// ErrInvalidParams is returned by NewSimulation when Validate fails.
var ErrInvalidParams = errors.New("invalid simulation parameters")

// MainMean is the mean time between main blocks produced by a single peer.
func (p Params) MainMean() SimDuration {
	return time.Duration(p.MainIntervalSec) * time.Second * time.Duration(p.Nodes)
}

// AckMean is the mean time between ack blocks produced by a single peer on a
// single ack-chain. Each peer runs one timer per chain, so the per-peer rate
// over all chains is AckChains / AckMean.
func (p Params) AckMean() SimDuration {
	return time.Duration(p.AckIntervalSec) * time.Second * time.Duration(p.Nodes)
}

// End is the simulated end time.
func (p Params) End() SimTime {
	return SimTime(time.Duration(p.DurationMin) * time.Minute)
}

// TxPerBatch is the number of transactions in a full batch block.
func (p Params) TxPerBatch() uint64 {
	return uint64(p.BatchKiB) * 1024 * 8 / AvgTxBits
}

// BatchBits is the size of a full batch block in bits.
func (p Params) BatchBits() uint64 {
	return p.TxPerBatch() * AvgTxBits
}

// Name encodes the parameters into the report file name.
func (p Params) Name() string {
	return fmt.Sprintf("N_%d_TBS_%d_IAR_%d_ack_%d_IAA_%d_duration_%d",
		p.Nodes, p.BatchKiB, p.MainIntervalSec, p.AckChains, p.AckIntervalSec, p.DurationMin)
}
