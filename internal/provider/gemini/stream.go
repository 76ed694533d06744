package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/observability"
	"github.com/davidbz/studygate/internal/protocol"
)

// Stream sends a streamGenerateContent request.
// Each SSE event carries the next text fragment. Usage metadata may ride on
// any event; the latest value wins and is reported on the final chunk only.
func (p *Provider) Stream(
	ctx context.Context,
	messages []domain.ChatMessage,
	opts domain.CompletionOptions,
) (<-chan domain.StreamChunk, error) {
	ctx, cancel := opts.WithTimeout(ctx)

	model := p.config.selectModel(messages, opts)
	observability.FromContext(ctx).Debug("calling Gemini streamGenerateContent",
		observability.String("provider", providerName),
		observability.String("model", model))

	//nolint:bodyclose // closed by the pump goroutine
	resp, err := p.post(ctx, model+":streamGenerateContent?alt=sse", toRequest(messages, opts))
	if err != nil {
		cancel()
		return nil, p.wrap(ctx, opStream, err)
	}

	chunks := make(chan domain.StreamChunk)

	go func() {
		defer cancel()
		defer close(chunks)
		defer resp.Body.Close()

		p.pump(ctx, model, protocol.NewBlockReader(resp.Body), chunks)
	}()

	return chunks, nil
}

func (p *Provider) pump(
	ctx context.Context,
	model string,
	blocks *protocol.BlockReader,
	out chan<- domain.StreamChunk,
) {
	var content strings.Builder
	var usage *domain.Usage

	fail := func(err error) {
		send(ctx, out, domain.ErrorChunk(p.wrap(ctx, opStream, err)))
	}

	for {
		block, err := blocks.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() == nil {
				fail(err)
			}
			return
		}

		if block.Data == "" {
			continue
		}

		var event generateContentResponse
		if jsonErr := json.Unmarshal([]byte(block.Data), &event); jsonErr != nil {
			fail(domain.WrapError(domain.CodeParse, "decode stream event", jsonErr))
			return
		}

		if blockErr := blocked(event); blockErr != nil {
			fail(blockErr)
			return
		}

		if u := event.usage(); u != nil {
			usage = u
		}
		if event.ModelVersion != "" {
			model = event.ModelVersion
		}

		delta := event.text()
		if delta == "" {
			continue
		}

		content.WriteString(delta)
		if !send(ctx, out, domain.DeltaChunk(delta)) {
			return
		}
	}

	if content.Len() == 0 {
		fail(domain.NewError(domain.CodeParse, "empty stream"))
		return
	}

	final := domain.FinalChunk(content.String(), usage)
	final.Provider = providerName
	final.Model = model
	send(ctx, out, final)
}

func send(ctx context.Context, out chan<- domain.StreamChunk, chunk domain.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
