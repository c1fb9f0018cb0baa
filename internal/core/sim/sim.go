package sim

import (
	"context"
	"fmt"
	"math/rand"
)

// ctxCheckInterval is how many events run between context checks.
const ctxCheckInterval = 4096

// Simulation orchestrates one run: it owns the scheduler, the network, the
// peers and the network-wide ledger. A Simulation is driven by a single
// goroutine; independent Simulations may run in parallel.
type Simulation struct {
	Params     Params
	Scheduler  *Scheduler
	Net        *Network
	Ledger     *Ledger
	Collectors *Collectors
	Genesis    *Genesis

	// Rng is the single random source of the run.
	Rng *rand.Rand

	ids   *IDAllocator
	env   *env
	peers []*Peer
}

// NewSimulation builds the topology, creates the peers and seeds them with
// the shared genesis blocks. Timers are armed by Run.
func NewSimulation(p Params) (*Simulation, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	rng := rand.New(rand.NewSource(p.Seed))
	sched := NewScheduler()
	s := &Simulation{
		Params:     p,
		Scheduler:  sched,
		Net:        NewNetwork(sched, rng, p.Nodes, p.Network.QueueingBits),
		Ledger:     NewLedger(),
		Collectors: NewCollectors(),
		Rng:        rng,
		ids:        NewIDAllocator(),
	}
	s.env = &env{
		params:     p,
		sched:      sched,
		net:        s.Net,
		rng:        rng,
		ids:        s.ids,
		ledger:     s.Ledger,
		collectors: s.Collectors,
	}
	if err := BuildTopology(s.Net, p.Network, rng); err != nil {
		return nil, err
	}

	s.Genesis = NewGenesis(s.ids, p.AckChains)
	s.peers = make([]*Peer, p.Nodes)
	for i := range s.peers {
		s.peers[i] = newPeer(PeerID(i), s.env)
	}
	return s, nil
}

// Peers returns all peers ordered by id.
func (s *Simulation) Peers() []*Peer {
	return s.peers
}

// Peer returns a peer by id.
func (s *Simulation) Peer(id PeerID) *Peer {
	return s.peers[id]
}

// Size returns the number of peers in the simulation.
func (s *Simulation) Size() int {
	return len(s.peers)
}

// IDs returns the identifier allocator of the run.
func (s *Simulation) IDs() *IDAllocator {
	return s.ids
}

// Setup seeds every peer with the genesis blocks and arms its timers.
// Run calls Setup when it has not been called yet.
func (s *Simulation) Setup() error {
	for _, p := range s.peers {
		if err := p.Seed(s.Genesis); err != nil {
			return err
		}
		p.Start()
	}
	return nil
}

func (s *Simulation) dispatch(ev Event) {
	if int(ev.To) >= len(s.peers) {
		return
	}
	s.peers[ev.To].Handle(ev)
}

// Run drains the scheduler until the configured end time and returns the
// final statistics. The first event past the end time stops the run. The
// context is checked periodically; on cancellation the statistics gathered
// so far are returned together with the context error.
func (s *Simulation) Run(ctx context.Context) (Stats, error) {
	if !s.seeded() {
		if err := s.Setup(); err != nil {
			return Stats{}, err
		}
	}
	end := s.Params.End()
	var events uint64
	for {
		if events%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return s.stats(events, s.Scheduler.Now()), err
			}
		}
		next, ok := s.Scheduler.Peek()
		if !ok || next.When > end {
			break
		}
		s.Scheduler.StepOne(s.dispatch)
		events++
	}
	return s.stats(events, end), nil
}

func (s *Simulation) seeded() bool {
	return len(s.peers) > 0 && s.peers[0].Received(s.Genesis.Main.ID)
}

func (s *Simulation) stats(events uint64, elapsed SimTime) Stats {
	st := s.Ledger.Stats()
	st.Events = events
	st.Elapsed = elapsed
	return st
}
