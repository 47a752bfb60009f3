// Package policy evaluates the chat policy that gates user messages.
package policy

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/open-policy-agent/opa/rego"
)

// Decision values produced by the chat policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Input is the document the chat policy is evaluated against.
type Input struct {
	SessionID     string `json:"session_id"`
	Role          string `json:"role"`
	ContentLength int    `json:"content_length"`
	MaxChars      int    `json:"max_chars"`
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Decision string
	Reason   string
}

// Allowed reports whether the message may be stored.
func (d Decision) Allowed() bool {
	return d.Decision != DecisionBlock
}

// Engine is the OPA policy engine. The prepared query can be swapped at
// runtime with Reload.
type Engine struct {
	query atomic.Pointer[rego.PreparedEvalQuery]
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	e := &Engine{}
	if err := e.Reload(ctx, policyContent); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload compiles policyContent and replaces the active policy. On error the
// previous policy stays in effect.
func (e *Engine) Reload(ctx context.Context, policyContent string) error {
	r := rego.New(
		rego.Query("data.chat_policy.decision"),
		rego.Module("chat_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare rego: %w", err)
	}

	e.query.Store(&query)
	return nil
}

// Evaluate checks a message against the chat policy.
// The policy may return a plain string or an object {decision, reason}.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	query := e.query.Load()
	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Decision: DecisionAllow, Reason: "default"}, nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return Decision{Decision: val}, nil
	case map[string]interface{}:
		d := Decision{Decision: DecisionAllow}
		if s, ok := val["decision"].(string); ok {
			d.Decision = s
		}
		if s, ok := val["reason"].(string); ok {
			d.Reason = s
		}
		return d, nil
	default:
		return Decision{Decision: DecisionAllow, Reason: "unexpected return type"}, nil
	}
}

// DefaultPolicy blocks messages longer than max_chars.
const DefaultPolicy = `
package chat_policy

default decision = {"decision": "allow", "reason": ""}

decision = {"decision": "block", "reason": "message too long"} {
	input.max_chars > 0
	input.content_length > input.max_chars
}
`
