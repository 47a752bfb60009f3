package helpers

import (
	"context"
	"sync"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
)

// FakeGateway answers with a fixed reply and records every context window it sees.
type FakeGateway struct {
	Reply  string
	Tokens int
	Err    error
	// Block makes Complete wait for ctx to be done.
	Block bool

	mu    sync.Mutex
	calls [][]domain.ContextMessage
}

func (g *FakeGateway) Complete(ctx context.Context, messages []domain.ContextMessage) (*domain.Completion, error) {
	g.mu.Lock()
	g.calls = append(g.calls, append([]domain.ContextMessage(nil), messages...))
	block, reply, tokens, err := g.Block, g.Reply, g.Tokens, g.Err
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &domain.Completion{Reply: reply, TokensUsed: tokens}, nil
}

// SetBlock switches blocking on or off.
func (g *FakeGateway) SetBlock(block bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Block = block
}

// Calls returns the context windows passed to Complete so far.
func (g *FakeGateway) Calls() [][]domain.ContextMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]domain.ContextMessage(nil), g.calls...)
}
