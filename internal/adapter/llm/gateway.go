package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
)

// GatewayOptions are the fixed generation parameters of every completion.
type GatewayOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Gateway turns a context window into a single assistant reply.
type Gateway struct {
	client LLMClient
	opts   GatewayOptions
}

// NewGateway wraps client with the given generation parameters.
func NewGateway(client LLMClient, opts GatewayOptions) *Gateway {
	return &Gateway{client: client, opts: opts}
}

// Complete sends messages to the completion API. Every failure, including an
// empty reply or an exceeded deadline, is returned as a gateway error. The
// deadline is the caller's.
func (g *Gateway) Complete(ctx context.Context, messages []domain.ContextMessage) (*domain.Completion, error) {
	const op = "gateway.complete"

	req := &ChatCompletionRequest{
		Model:    g.opts.Model,
		Messages: make([]ChatMessage, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = ChatMessage{Role: string(m.Role), Content: m.Content}
	}
	if g.opts.MaxTokens > 0 {
		maxTokens := g.opts.MaxTokens
		req.MaxTokens = &maxTokens
	}
	temperature := g.opts.Temperature
	req.Temperature = &temperature

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, domain.NewError(domain.KindGateway, op, "", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil ||
		strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, domain.NewError(domain.KindGateway, op, "", domain.ErrEmptyReply)
	}

	completion := &domain.Completion{
		Reply: resp.Choices[0].Message.Content,
		Model: resp.Model,
	}
	if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
		completion.TokensUsed = resp.Usage.TotalTokens
	}
	return completion, nil
}

// ModelAvailable reports whether the configured model is listed by the
// completion API.
func (g *Gateway) ModelAvailable(ctx context.Context) (bool, error) {
	models, err := g.client.ListModels(ctx)
	if err != nil {
		return false, domain.NewError(domain.KindGateway, "gateway.models", "", err)
	}
	for _, m := range models {
		if m.ID == g.opts.Model {
			return true, nil
		}
	}
	return false, nil
}
