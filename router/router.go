// Package router implements the provider-routing resilience layer the
// model-call step resolves its client through. Selection is evaluated
// fresh per request: providers are ordered by priority, filtered by
// rate and cost ceilings, attempted with exponential backoff, and
// failed over in order. When nothing is eligible the router either
// fails outright or degrades to a synthetic canned response.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/llm"
	"github.com/BaSui01/agentcore/tokenizer"
	"github.com/BaSui01/agentcore/types"
)

var (
	ErrNoEligibleProvider = errors.New("no eligible provider")
	ErrAllProvidersFailed = errors.New("all providers failed")
)

// Provider is one routable backend.
type Provider struct {
	ID       string
	Client   llm.Client
	Priority int // lower sorts first; ties broken by ID

	// RequestsPerMinute caps this provider's request rate over a sliding
	// 60-second window. Zero means unlimited.
	RequestsPerMinute int

	// CostPer1KTokens prices the provider's traffic. Zero means free or
	// unpriced.
	CostPer1KTokens float64
}

// DegradationMode selects the behavior when no provider is usable.
type DegradationMode string

const (
	// DegradeFail surfaces a routing error to the caller.
	DegradeFail DegradationMode = "fail"
	// DegradeSynthetic returns a clearly-labeled canned response.
	DegradeSynthetic DegradationMode = "synthetic"
)

// DegradedProviderName labels synthetic responses so callers can detect
// them.
const DegradedProviderName = "degraded"

// Policy configures retry, rate, and cost behavior.
type Policy struct {
	// MaxAttempts per provider before failing over.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// InitialBackoff doubles per attempt, capped at MaxBackoff.
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" json:"max_backoff"`

	// GlobalRequestsPerMinute caps requests across all providers over a
	// sliding 60-second window. Zero means unlimited.
	GlobalRequestsPerMinute int `yaml:"global_requests_per_minute" json:"global_requests_per_minute"`

	// CostCeiling caps the cumulative running cost in USD. Zero means
	// unlimited.
	CostCeiling float64 `yaml:"cost_ceiling" json:"cost_ceiling"`

	// OutputTokenRatio estimates output tokens as a multiple of input
	// tokens when pre-estimating a request's cost.
	OutputTokenRatio float64 `yaml:"output_token_ratio" json:"output_token_ratio"`

	Degradation DegradationMode `yaml:"degradation" json:"degradation"`
}

// DefaultPolicy returns defaults suitable for interactive agent runs.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      3,
		InitialBackoff:   500 * time.Millisecond,
		MaxBackoff:       10 * time.Second,
		OutputTokenRatio: 0.5,
		Degradation:      DegradeFail,
	}
}

// Router routes one request to the best eligible provider. Its rate and
// cost counters are shared by every concurrent request, so check and
// record happen under one mutex: a ceiling can never be passed by two
// requests simultaneously.
type Router struct {
	providers []Provider
	policy    Policy
	tok       tokenizer.Tokenizer
	logger    *zap.Logger

	mu        sync.Mutex
	windows   map[string][]time.Time
	global    []time.Time
	totalCost float64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a router over the given providers. The tokenizer is used
// to pre-estimate request cost; nil selects the chars-per-token
// estimator.
func New(providers []Provider, policy Policy, tok tokenizer.Tokenizer, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tok == nil {
		tok = tokenizer.NewEstimator(0)
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = 500 * time.Millisecond
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = 10 * time.Second
	}
	if policy.Degradation == "" {
		policy.Degradation = DegradeFail
	}

	sorted := make([]Provider, len(providers))
	copy(sorted, providers)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})

	return &Router{
		providers: sorted,
		policy:    policy,
		tok:       tok,
		logger:    logger.With(zap.String("component", "provider_router")),
		windows:   make(map[string][]time.Time),
		now:       time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
}

// TotalCost returns the cumulative recorded cost in USD.
func (r *Router) TotalCost() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalCost
}

// Stream routes the request and returns the selected provider's stream.
// Failover covers call initiation; mid-stream errors propagate to the
// consumer as error chunks.
func (r *Router) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	estCost := r.estimateCost(req)

	var skipped []string
	for _, p := range r.providers {
		if reason, ok := r.admitAndReserve(p, estCost); !ok {
			skipped = append(skipped, fmt.Sprintf("%s: %s", p.ID, reason))
			r.logger.Debug("provider skipped",
				zap.String("provider", p.ID),
				zap.String("reason", reason))
			continue
		}

		ch, err := r.attempt(ctx, p, req)
		if err == nil {
			r.record(p, estCost)
			return ch, nil
		}
		skipped = append(skipped, fmt.Sprintf("%s: %v", p.ID, err))
		r.logger.Warn("provider exhausted",
			zap.String("provider", p.ID),
			zap.Int("attempts", r.policy.MaxAttempts),
			zap.Error(err))
	}

	return r.degrade(req, skipped)
}

// Complete routes the request and drains the stream into one response.
func (r *Router) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	ch, err := r.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return llm.Drain(ch, nil)
}

// estimateCost prices the request before issuing it: input tokens plus
// the estimated output share, against the most expensive rate so the
// ceiling errs on the safe side per provider check.
func (r *Router) estimateCost(req *llm.ChatRequest) float64 {
	inputTokens, err := r.tok.CountMessages(req.Messages)
	if err != nil {
		inputTokens = 0
	}
	return float64(inputTokens) * (1 + r.policy.OutputTokenRatio) / 1000
}

// admitAndReserve checks eligibility and, when eligible, books the
// rate-window slot in the same critical section, so two concurrent
// requests can never both pass a ceiling check on the last slot.
func (r *Router) admitAndReserve(p Provider, estCostPer1K float64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-time.Minute)
	r.windows[p.ID] = prune(r.windows[p.ID], cutoff)
	r.global = prune(r.global, cutoff)

	if r.policy.CostCeiling > 0 {
		if r.totalCost+estCostPer1K*p.CostPer1KTokens > r.policy.CostCeiling {
			return "cost ceiling", false
		}
	}
	if p.RequestsPerMinute > 0 && len(r.windows[p.ID]) >= p.RequestsPerMinute {
		return "provider rate window saturated", false
	}
	if r.policy.GlobalRequestsPerMinute > 0 && len(r.global) >= r.policy.GlobalRequestsPerMinute {
		return "global rate window saturated", false
	}

	r.windows[p.ID] = append(r.windows[p.ID], now)
	r.global = append(r.global, now)
	return "", true
}

// record books the cost after a successful call initiation.
func (r *Router) record(p Provider, estCostPer1K float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cost := estCostPer1K * p.CostPer1KTokens
	r.totalCost += cost
	observeSuccess(p.ID, cost)
}

// attempt tries one provider up to MaxAttempts times with doubling,
// capped backoff between attempts.
func (r *Router) attempt(ctx context.Context, p Provider, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	var lastErr error
	backoff := r.policy.InitialBackoff
	for i := 0; i < r.policy.MaxAttempts; i++ {
		if i > 0 {
			if err := r.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
			if backoff > r.policy.MaxBackoff {
				backoff = r.policy.MaxBackoff
			}
		}
		ch, err := p.Client.Stream(ctx, req)
		if err == nil {
			return ch, nil
		}
		lastErr = err
		observeFailure(p.ID)
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrAllProvidersFailed, r.policy.MaxAttempts, lastErr)
}

// degrade applies the degradation policy when every provider was
// skipped or exhausted.
func (r *Router) degrade(req *llm.ChatRequest, reasons []string) (<-chan llm.StreamChunk, error) {
	detail := "no providers configured"
	if len(reasons) > 0 {
		detail = strings.Join(reasons, "; ")
	}

	if r.policy.Degradation == DegradeSynthetic {
		observeDegraded()
		r.logger.Warn("degrading to synthetic response", zap.String("detail", detail))
		ch := make(chan llm.StreamChunk, 1)
		ch <- llm.StreamChunk{Final: &llm.ChatResponse{
			Provider:  DegradedProviderName,
			Model:     req.Model,
			Content:   fmt.Sprintf("[degraded] no provider available: %s", detail),
			CreatedAt: r.now(),
		}}
		close(ch)
		return ch, nil
	}

	return nil, types.NewError(types.ErrRoutingUnavailable, detail).WithCause(ErrNoEligibleProvider)
}

func prune(window []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(window) && window[i].Before(cutoff) {
		i++
	}
	return window[i:]
}
