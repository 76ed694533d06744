package domain

import (
	"context"
)

// SupportsStreaming reports whether the adapter streams natively. Advisory only.
func SupportsStreaming(adapter Adapter) bool {
	_, ok := adapter.(Streamer)
	return ok
}

// StreamCompletion streams from the adapter. Adapters without native streaming
// are called through Complete and yield exactly one final chunk.
func StreamCompletion(
	ctx context.Context,
	adapter Adapter,
	messages []ChatMessage,
	opts CompletionOptions,
) (<-chan StreamChunk, error) {
	if streamer, ok := adapter.(Streamer); ok {
		return streamer.Stream(ctx, messages, opts)
	}

	chunks := make(chan StreamChunk, 1)

	go func() {
		defer close(chunks)

		result, err := adapter.Complete(ctx, messages, opts)
		if err != nil {
			chunks <- ErrorChunk(NewProviderError(adapter.Name(), "chatCompletionStream", err))
			return
		}

		chunk := FinalChunk(result.Content, result.Usage)
		chunk.Provider = result.Provider
		chunk.Model = result.Model
		chunks <- chunk
	}()

	return chunks, nil
}
