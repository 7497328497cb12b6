package token

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"curveLedger/internal/state"
)

// Sink is a fee recipient that keeps a running total of the fees it was
// notified about, per token.
type Sink struct {
	mu       sync.Mutex
	address  common.Address
	journal  *state.Journal
	received map[common.Address]*uint256.Int
}

func NewSink(address common.Address, journal *state.Journal) *Sink {
	return &Sink{address: address, journal: journal, received: make(map[common.Address]*uint256.Int)}
}

func (s *Sink) Address() common.Address { return s.address }

// Receive records amount of token as delivered to the sink.
func (s *Sink) Receive(_ context.Context, token common.Address, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.received[token]
	next := amount.Clone()
	if had {
		next.Add(next, prev)
	}
	s.received[token] = next
	s.journal.Append(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if had {
			s.received[token] = prev
		} else {
			delete(s.received, token)
		}
	})
	return nil
}

// Received returns the total of token recorded so far.
func (s *Sink) Received(token common.Address) *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if total, ok := s.received[token]; ok {
		return total.Clone()
	}
	return new(uint256.Int)
}
