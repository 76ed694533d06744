package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidbz/studygate/internal/observability"
)

const (
	opComplete = "chatCompletion"
	opStream   = "chatCompletionStream"
)

// ErrNoProviders is returned when no adapter in the chain is available.
var ErrNoProviders = &Error{Code: CodeProvider, Message: "no available providers"}

// ExhaustedError reports that every available adapter failed.
// It unwraps to the last provider's error.
type ExhaustedError struct {
	Attempted []string
	Last      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all providers exhausted (tried %s): %v", strings.Join(e.Attempted, ", "), e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// ProviderChain tries adapters in priority order.
// It holds no per-request state and is safe for concurrent use.
type ProviderChain struct {
	adapters []Adapter
}

// NewProviderChain creates a chain; list position is priority.
func NewProviderChain(adapters []Adapter) *ProviderChain {
	return &ProviderChain{
		adapters: append([]Adapter(nil), adapters...),
	}
}

// Providers returns the adapter names in priority order.
func (c *ProviderChain) Providers() []string {
	names := make([]string, 0, len(c.adapters))
	for _, a := range c.adapters {
		names = append(names, a.Name())
	}
	return names
}

// Complete returns the first successful answer, falling through on failure.
func (c *ProviderChain) Complete(
	ctx context.Context,
	messages []ChatMessage,
	opts CompletionOptions,
) (*CompletionResult, error) {
	logger := observability.FromContext(ctx)

	var attempted []string
	var lastErr error

	for _, adapter := range c.adapters {
		if err := ctx.Err(); err != nil {
			return nil, WrapError(CodeAborted, "completion canceled", err)
		}

		if !adapter.Available() {
			logger.Debug("skipping unavailable provider", observability.String("provider", adapter.Name()))
			continue
		}
		attempted = append(attempted, adapter.Name())

		start := time.Now()
		result, err := adapter.Complete(ctx, messages, opts)
		outcome := Classify(err)
		observability.ObserveProviderAttempt(adapter.Name(), opComplete, string(outcome), time.Since(start))

		if err == nil {
			if result.Provider == "" {
				result.Provider = adapter.Name()
			}
			return result, nil
		}

		lastErr = NewProviderError(adapter.Name(), opComplete, err)
		logger.Warn("provider completion failed",
			observability.String("provider", adapter.Name()),
			observability.String("outcome", string(outcome)),
			observability.Error(err))

		if ctx.Err() != nil {
			return nil, WrapError(CodeAborted, "completion canceled", ctx.Err())
		}
		observability.CountFallback(adapter.Name(), opComplete)
	}

	if lastErr == nil {
		return nil, ErrNoProviders
	}
	return nil, &ExhaustedError{Attempted: attempted, Last: lastErr}
}

// Stream streams from the first adapter that produces output.
//
// Fallback to the next adapter happens only before the current adapter has
// delivered a chunk. A failure after that ends the stream with an error chunk.
// On cancellation the channel is closed without a terminal chunk.
func (c *ProviderChain) Stream(
	ctx context.Context,
	messages []ChatMessage,
	opts CompletionOptions,
) <-chan StreamChunk {
	out := make(chan StreamChunk)
	go c.stream(ctx, messages, opts, out)
	return out
}

func (c *ProviderChain) stream(
	ctx context.Context,
	messages []ChatMessage,
	opts CompletionOptions,
	out chan<- StreamChunk,
) {
	defer close(out)

	logger := observability.FromContext(ctx)

	var attempted []string
	var lastErr error

	for _, adapter := range c.adapters {
		if ctx.Err() != nil {
			return
		}

		if !adapter.Available() {
			logger.Debug("skipping unavailable provider", observability.String("provider", adapter.Name()))
			continue
		}
		attempted = append(attempted, adapter.Name())

		attemptCtx, cancel := context.WithCancel(ctx)
		start := time.Now()
		delivered, err := c.pump(attemptCtx, adapter, messages, opts, out)
		cancel()

		if ctx.Err() != nil {
			return
		}

		observability.ObserveProviderAttempt(adapter.Name(), opStream, string(Classify(err)), time.Since(start))

		if err == nil {
			return
		}

		if delivered {
			logger.Warn("provider failed mid-stream, not falling back",
				observability.String("provider", adapter.Name()),
				observability.Error(err))
			send(ctx, out, ErrorChunk(err))
			return
		}

		logger.Warn("provider stream failed before output",
			observability.String("provider", adapter.Name()),
			observability.Error(err))
		lastErr = err
		observability.CountFallback(adapter.Name(), opStream)
	}

	if lastErr == nil {
		send(ctx, out, ErrorChunk(ErrNoProviders))
		return
	}
	send(ctx, out, ErrorChunk(&ExhaustedError{Attempted: attempted, Last: lastErr}))
}

// pump forwards one adapter's chunks to out. It reports whether any chunk
// reached out, and a non-nil error when the adapter failed.
func (c *ProviderChain) pump(
	ctx context.Context,
	adapter Adapter,
	messages []ChatMessage,
	opts CompletionOptions,
	out chan<- StreamChunk,
) (bool, error) {
	chunks, err := StreamCompletion(ctx, adapter, messages, opts)
	if err != nil {
		return false, NewProviderError(adapter.Name(), opStream, err)
	}

	delivered := false
	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()

		case chunk, ok := <-chunks:
			if !ok {
				if ctx.Err() != nil {
					return delivered, ctx.Err()
				}
				return delivered, NewProviderError(adapter.Name(), opStream,
					NewError(CodeProvider, "stream ended without a final chunk"))
			}

			switch chunk.Type {
			case ChunkError:
				var cause error = NewError(CodeProvider, "unknown stream error")
				if chunk.Err != nil {
					cause = chunk.Err
				}
				return delivered, NewProviderError(adapter.Name(), opStream, cause)

			case ChunkFinal:
				if chunk.Provider == "" {
					chunk.Provider = adapter.Name()
				}
				if !send(ctx, out, chunk) {
					return true, ctx.Err()
				}
				return true, nil

			default:
				if !send(ctx, out, chunk) {
					return delivered, ctx.Err()
				}
				delivered = true
			}
		}
	}
}

func send(ctx context.Context, out chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// IsExhausted reports whether err came from a chain with no successful adapter.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee) || errors.Is(err, ErrNoProviders)
}
