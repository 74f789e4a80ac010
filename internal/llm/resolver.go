package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/finbot/internal/common"
	"github.com/Veraticus/finbot/internal/model"
	"github.com/Veraticus/finbot/internal/service"
)

var _ service.IntentClassifier = (*Resolver)(nil)

// Config holds configuration for the intent resolver.
type Config struct {
	APIKey        string
	Model         string
	BaseURL       string
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	Timeout       time.Duration
	CacheTTL      time.Duration
	RateLimit     int
	Temperature   float64
	MaxTokens     int
}

// Resolver turns chat messages into intents using an LLM.
type Resolver struct {
	client      Client
	cache       *intentCache
	logger      *slog.Logger
	rateLimiter *rateLimiter
	retryOpts   common.RetryOptions
}

// NewResolver creates a resolver backed by the OpenAI API.
func NewResolver(cfg Config, logger *slog.Logger) (*Resolver, error) {
	client, err := newOpenAIClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewResolverWithClient(client, cfg, logger), nil
}

// NewResolverWithClient creates a resolver around an existing client.
func NewResolverWithClient(client Client, cfg Config, logger *slog.Logger) *Resolver {
	logger = common.LoggerOrDefault(logger)
	retryOpts := common.RetryOptions{
		Logger:       logger,
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     cfg.MaxRetryDelay,
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	return &Resolver{
		client:      client,
		cache:       newIntentCache(cfg.CacheTTL),
		logger:      logger,
		retryOpts:   retryOpts,
		rateLimiter: newRateLimiter(cfg.RateLimit),
	}
}

// Classify resolves text into an intent. It never fails: any problem with
// the model or its output yields model.Unrecognized().
func (r *Resolver) Classify(ctx context.Context, text string, _ time.Time) model.Intent {
	key := cacheKey(text)
	if key == "" {
		return model.Unrecognized()
	}

	if intent, ok := r.cache.get(key); ok {
		r.logger.Debug("intent cache hit", "kind", intent.Kind)
		return intent
	}

	if err := r.rateLimiter.wait(ctx); err != nil {
		r.logger.Warn("intent classification skipped", "error", err)
		return model.Unrecognized()
	}

	var resp IntentResponse
	err := common.WithRetry(ctx, func() error {
		var callErr error
		resp, callErr = r.client.ParseIntent(ctx, buildPrompt(text))
		return callErr
	}, r.retryOpts)
	if err != nil {
		r.logger.Warn("intent classification failed", "error", err)
		return model.Unrecognized()
	}

	intent := ToIntent(resp)
	r.cache.set(key, intent)

	r.logger.Debug("message classified",
		"kind", intent.Kind,
		"item", intent.ItemName,
		"category", intent.Category)

	return intent
}

// ToIntent maps a model reply onto an intent. Replies missing what their
// type requires come back Unrecognized. Amount sign is left to the caller.
func ToIntent(resp IntentResponse) model.Intent {
	item := strings.TrimSpace(resp.Item)
	if strings.EqualFold(item, "none") || strings.EqualFold(item, "unknown") || strings.EqualFold(item, "null") {
		item = ""
	}

	switch model.IntentKind(strings.ToLower(strings.TrimSpace(resp.Type))) {
	case model.IntentSetLimit:
		if resp.Amount == nil {
			return model.Unrecognized()
		}
		return model.SetLimit(*resp.Amount)

	case model.IntentAddSubscription:
		if resp.Amount == nil || item == "" {
			return model.Unrecognized()
		}
		return model.AddSubscription(item, *resp.Amount)

	case model.IntentCancelSubscription:
		if item == "" {
			return model.Unrecognized()
		}
		return model.CancelSubscription(item)

	case model.IntentExpense:
		category, ok := model.ParseCategory(resp.Category)
		if resp.Amount == nil || item == "" || !ok {
			return model.Unrecognized()
		}
		return model.Expense(item, *resp.Amount, category)

	default:
		return model.Unrecognized()
	}
}
