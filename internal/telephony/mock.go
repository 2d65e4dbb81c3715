package telephony

import (
	"context"
	"fmt"
	"sync"
)

// MockGateway is an in-memory Gateway for tests and local development.
type MockGateway struct {
	mu     sync.Mutex
	placed []PlaceCallRequest

	// Reject makes PlaceCall fail for matching destinations.
	Reject func(req PlaceCallRequest) error

	seq int
}

func NewMockGateway() *MockGateway { return &MockGateway{} }

func (g *MockGateway) Name() string { return "mock" }

func (g *MockGateway) HealthCheck(ctx context.Context) error { return nil }

func (g *MockGateway) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Reject != nil {
		if err := g.Reject(req); err != nil {
			return PlaceCallResult{}, err
		}
	}
	g.seq++
	g.placed = append(g.placed, req)
	return PlaceCallResult{ProviderCallID: fmt.Sprintf("MOCK-%04d", g.seq)}, nil
}

// Placed returns a copy of every accepted request.
func (g *MockGateway) Placed() []PlaceCallRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]PlaceCallRequest, len(g.placed))
	copy(out, g.placed)
	return out
}

var _ Gateway = (*MockGateway)(nil)
