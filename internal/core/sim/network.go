package sim

import (
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// Link is a directed edge towards a neighbor.
type Link struct {
	To      PeerID
	Latency SimDuration
	// Bandwidth in bits per second.
	Bandwidth uint64
}

// TransmitDelay is the time it takes a payload of sizeBits to cross the link:
// propagation latency, serialization at the link bandwidth and an
// exponentially distributed queueing term with mean queueingBits/bandwidth.
func (l Link) TransmitDelay(sizeBits, queueingBits uint64, rng *rand.Rand) SimDuration {
	bw := float64(l.Bandwidth)
	d := l.Latency + time.Duration(float64(sizeBits)/bw*float64(time.Second))
	if queueingBits > 0 {
		mean := float64(queueingBits) / bw * float64(time.Second)
		d += time.Duration(rng.ExpFloat64() * mean)
	}
	return d
}

// Network holds the symmetric peer-to-peer topology of a simulation.
// Neighbor lists are kept sorted by peer id so iteration order, and with it
// the random draws made while broadcasting, is deterministic.
type Network struct {
	scheduler    *Scheduler
	rng          *rand.Rand
	queueingBits uint64
	capacity     []uint64
	links        [][]Link
}

// NewNetwork creates a network of n peers without any links.
func NewNetwork(scheduler *Scheduler, rng *rand.Rand, n int, queueingBits uint64) *Network {
	return &Network{
		scheduler:    scheduler,
		rng:          rng,
		queueingBits: queueingBits,
		capacity:     make([]uint64, n),
		links:        make([][]Link, n),
	}
}

// Size returns the number of peers.
func (n *Network) Size() int {
	return len(n.links)
}

// SetCapacity sets the maximum link bandwidth of a peer in bits per second.
func (n *Network) SetCapacity(id PeerID, bps uint64) {
	n.capacity[id] = bps
}

// Capacity returns the maximum link bandwidth of a peer.
func (n *Network) Capacity(id PeerID) uint64 {
	return n.capacity[id]
}

// Connect establishes a bidirectional link between two peers. The link
// bandwidth is the lower of the two capacities. Returns false on self links
// and on peers already connected.
func (n *Network) Connect(a, b PeerID, latency SimDuration) bool {
	if a == b || n.IsConnected(a, b) {
		return false
	}
	bw := n.capacity[a]
	if n.capacity[b] < bw {
		bw = n.capacity[b]
	}
	n.links[a] = insertLink(n.links[a], Link{To: b, Latency: latency, Bandwidth: bw})
	n.links[b] = insertLink(n.links[b], Link{To: a, Latency: latency, Bandwidth: bw})
	return true
}

func insertLink(links []Link, l Link) []Link {
	i := sort.Search(len(links), func(i int) bool { return links[i].To >= l.To })
	links = append(links, Link{})
	copy(links[i+1:], links[i:])
	links[i] = l
	return links
}

// IsConnected checks if two peers are connected.
func (n *Network) IsConnected(a, b PeerID) bool {
	_, ok := n.Link(a, b)
	return ok
}

// Link returns the link from one peer to another.
func (n *Network) Link(from, to PeerID) (Link, bool) {
	links := n.links[from]
	i := sort.Search(len(links), func(i int) bool { return links[i].To >= to })
	if i < len(links) && links[i].To == to {
		return links[i], true
	}
	return Link{}, false
}

// Neighbors returns the links of a peer ordered by neighbor id.
func (n *Network) Neighbors(id PeerID) []Link {
	return n.links[id]
}

// Broadcast schedules a receive event of the given kind on every neighbor of
// from except exclude. Returns the number of neighbors reached.
func (n *Network) Broadcast(from, exclude PeerID, kind EventKind, b Block) int {
	h := b.header()
	sent := 0
	for _, l := range n.links[from] {
		if l.To == exclude {
			continue
		}
		n.scheduler.In(l.TransmitDelay(h.SizeBits, n.queueingBits, n.rng), Event{
			Kind:    kind,
			From:    from,
			To:      l.To,
			Payload: b,
		})
		sent++
	}
	return sent
}

// BuildTopology assigns every peer a random link capacity and then lets each
// peer in id order open links to random neighbors until it has between
// MinNeighbors and MaxNeighbors of them. Links opened by earlier peers count
// towards the target of later ones.
func BuildTopology(net *Network, p NetworkParams, rng *rand.Rand) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("build topology: %w", err)
	}
	size := net.Size()
	for i := 0; i < size; i++ {
		mibps := p.MinLinkMibps + rng.Intn(p.MaxLinkMibps-p.MinLinkMibps+1)
		net.SetCapacity(PeerID(i), uint64(mibps)*1024*1024)
	}

	latencySpan := int64(p.MaxLatency-p.MinLatency) / int64(time.Millisecond)
	for i := 0; i < size; i++ {
		id := PeerID(i)
		want := p.MinNeighbors + rng.Intn(p.MaxNeighbors-p.MinNeighbors+1)
		if want > size-1 {
			want = size - 1
		}
		want -= len(net.links[id])
		for want > 0 {
			nbr := PeerID(rng.Intn(size))
			if nbr == id || net.IsConnected(id, nbr) {
				continue
			}
			latency := p.MinLatency + time.Duration(rng.Int63n(latencySpan+1))*time.Millisecond
			net.Connect(id, nbr, latency)
			want--
		}
	}
	return nil
}
