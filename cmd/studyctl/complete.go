package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/davidbz/studygate/internal/client"
	"github.com/davidbz/studygate/internal/domain"
)

var completeFlags struct {
	system string
	json   bool
}

var completeCmd = &cobra.Command{
	Use:   "complete <message>",
	Short: "Request a one-shot completion",
	Long: `Send a single message and print the complete answer. Nothing is stored.

Examples:
  studyctl complete "Define entropy"
  studyctl complete --json "List three noble gases as a JSON array"`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

type completionRequest struct {
	Messages []domain.ChatMessage     `json:"messages"`
	Options  domain.CompletionOptions `json:"options"`
}

func init() {
	rootCmd.AddCommand(completeCmd)

	completeCmd.Flags().StringVar(&completeFlags.system, "system", "", "system prompt")
	completeCmd.Flags().BoolVar(&completeFlags.json, "json", false, "ask for a JSON answer")
}

func runComplete(cmd *cobra.Command, args []string) error {
	executor, err := newExecutor()
	if err != nil {
		return err
	}

	req := completionRequest{}
	if completeFlags.system != "" {
		req.Messages = append(req.Messages, domain.ChatMessage{Role: domain.RoleSystem, Content: completeFlags.system})
	}
	req.Messages = append(req.Messages, domain.ChatMessage{Role: domain.RoleUser, Content: args[0]})
	if completeFlags.json {
		req.Options.ResponseFormat = domain.ResponseFormatJSON
	}

	result, err := client.Fetch[domain.CompletionResult](cmd.Context(), executor, client.Request{
		Method: http.MethodPost,
		Path:   "/v1/chat/completions",
		Body:   req,
	})
	if err != nil {
		return err
	}
	if result == nil {
		return errors.New("gateway returned no answer")
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Content)
	if rootFlags.verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "provider=%s model=%s\n", result.Provider, result.Model)
	}

	return nil
}
