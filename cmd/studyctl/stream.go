package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/davidbz/studygate/internal/client"
	"github.com/davidbz/studygate/internal/completion"
	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/protocol"
)

var streamFlags struct {
	chatID      string
	attachments []string
	regenerate  bool
	upgrade     bool
	premium     bool
}

var streamCmd = &cobra.Command{
	Use:   "stream [message]",
	Short: "Stream one chat turn",
	Long: `Send a message and print the answer as it arrives.

Without --chat a new chat is created; its id is printed with --verbose.

Examples:
  studyctl stream "What is a derivative?"
  studyctl stream --chat 6f1c... "Give an example"
  studyctl stream --chat 6f1c... --regenerate`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)

	streamCmd.Flags().StringVar(&streamFlags.chatID, "chat", "", "continue an existing chat")
	streamCmd.Flags().StringSliceVar(&streamFlags.attachments, "attach", nil, "attachment ids to send with the message")
	streamCmd.Flags().BoolVar(&streamFlags.regenerate, "regenerate", false, "answer the last user message again")
	streamCmd.Flags().BoolVar(&streamFlags.upgrade, "upgrade", false, "use the upgraded model tier")
	streamCmd.Flags().BoolVar(&streamFlags.premium, "premium", false, "use the premium model tier")
}

func runStream(cmd *cobra.Command, args []string) error {
	executor, err := newExecutor()
	if err != nil {
		return err
	}

	req := completion.StreamRequest{
		ChatID:        streamFlags.chatID,
		AttachmentIDs: streamFlags.attachments,
		RequestID:     uuid.NewString(),
		Regenerate:    streamFlags.regenerate,
		Options: domain.CompletionOptions{
			ForceUpgrade: streamFlags.upgrade,
			ForcePremium: streamFlags.premium,
		},
	}
	if len(args) == 1 {
		req.Message = args[0]
	}

	stream, err := executor.Stream(cmd.Context(), client.Request{
		Method:         http.MethodPost,
		Path:           "/v1/chat/stream",
		Body:           req,
		IdempotencyKey: req.RequestID,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	return printStream(cmd.Context(), stream, cmd.OutOrStdout())
}

// printStream writes deltas as they arrive. The final event only adds
// content that no delta carried.
func printStream(ctx context.Context, stream *client.EventStream, out io.Writer) error {
	var written strings.Builder

	for {
		event, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return errors.New("stream ended without a done event")
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream: %w", err)
		}

		switch event.Type {
		case protocol.EventMeta:
			if rootFlags.verbose {
				fmt.Fprintf(os.Stderr, "chat=%s message=%s model=%s\n",
					event.Meta.ChatID, event.Meta.MessageID, event.Meta.Model)
			}
		case protocol.EventDelta:
			written.WriteString(event.Content)
			fmt.Fprint(out, event.Content)
		case protocol.EventFinal:
			if rest, ok := strings.CutPrefix(event.Content, written.String()); ok {
				fmt.Fprint(out, rest)
			}
			fmt.Fprintln(out)
			if rootFlags.verbose && event.Usage != nil {
				fmt.Fprintf(os.Stderr, "tokens: prompt=%d completion=%d\n",
					event.Usage.PromptTokens, event.Usage.CompletionTokens)
			}
		case protocol.EventError:
			fmt.Fprintln(out)
			return fmt.Errorf("%s: %s", event.Error.Code, event.Error.Message)
		case protocol.EventDone:
			return nil
		}
	}
}
