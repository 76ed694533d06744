package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/davidbz/studygate/internal/client"
)

var rootFlags struct {
	url     string
	token   string
	retries int
	timeout time.Duration
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:   "studyctl",
	Short: "Command line client for the studygate completion gateway",
	Long: `Studyctl sends chat turns to a studygate gateway and prints the answer
as it streams. Requests are retried with exponential backoff on rate limits,
timeouts and server errors.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cfg, err := client.LoadConfig()
	if err != nil {
		cfg = &client.Config{}
	}

	rootCmd.PersistentFlags().StringVar(&rootFlags.url, "url", cfg.BaseURL, "gateway base URL")
	rootCmd.PersistentFlags().StringVar(&rootFlags.token, "token", cfg.Token, "bearer token")
	rootCmd.PersistentFlags().IntVar(&rootFlags.retries, "retries", cfg.MaxRetries, "retries per request, negative disables")
	rootCmd.PersistentFlags().DurationVar(&rootFlags.timeout, "timeout", cfg.Timeout, "per-attempt timeout")
	rootCmd.PersistentFlags().BoolVarP(&rootFlags.verbose, "verbose", "v", false, "print stream metadata")
}

func newExecutor() (*client.Executor, error) {
	if rootFlags.token == "" {
		return nil, errors.New("no token: set --token or STUDYGATE_TOKEN")
	}

	cfg := &client.Config{MaxRetries: rootFlags.retries}
	tokens := client.NewStaticToken(rootFlags.token, func() {
		fmt.Fprintln(os.Stderr, "token rejected by the gateway")
	})

	return client.New(rootFlags.url, tokens,
		client.WithRetryPolicy(cfg.Policy()),
		client.WithTimeout(rootFlags.timeout),
	), nil
}
