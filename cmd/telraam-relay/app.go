// Copyright 2025 SirSeer, LLC
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://mariadb.com/bsl11
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sirseerhq/telraam-relay/internal/config"
	relaierrors "github.com/sirseerhq/telraam-relay/internal/errors"
	"github.com/sirseerhq/telraam-relay/internal/output"
	"github.com/sirseerhq/telraam-relay/internal/telerror"
	"github.com/sirseerhq/telraam-relay/internal/telraam"
)

// app holds what every command needs. Tests replace newClient and the
// streams.
type app struct {
	stdout io.Writer
	stderr io.Writer

	// flags shared by all commands
	token      string
	configPath string
	outputPath string
	format     string

	cfg *config.Config

	newClient func(a *app) (telraam.Client, error)
}

func newApp() *app {
	return &app{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		newClient: newHTTPClient,
	}
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "telraam-relay",
		Short: "Fetch traffic counts, segments and cameras from the Telraam API",
		Long: `telraam-relay retrieves data from the Telraam citizen traffic-counting
network. Long date ranges are split into requests the API accepts, each
retried on transient failures, and merged in order. A fetch that loses some
chunks still returns the rest and records the gaps for a later resume.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.token, "token", "", "Telraam API token (overrides TELRAAM_TOKEN env var)")
	flags.StringVar(&a.configPath, "config", "", "Config file path (default: .telraam-relay.yaml or ~/.telraam-relay/config.yaml)")
	flags.StringVar(&a.outputPath, "output", "", "Output file path (default: stdout)")
	flags.StringVar(&a.format, "format", "", "Output format: ndjson or json (default from config)")

	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	rootCmd.AddCommand(
		newWelcomeCommand(a),
		newTrafficCommand(a),
		newResumeCommand(a),
		newSegmentCommand(a),
		newSegmentsCommand(a),
		newCamerasCommand(a),
		newSnapshotCommand(a),
	)

	return rootCmd
}

// loadConfig reads .env, the config file and the environment, then applies
// the global flags and validates the result.
func (a *app) loadConfig(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("format") {
		format, err := output.ParseFormat(a.format)
		if err != nil {
			return err
		}
		cfg.Output.Format = string(format)
	}

	a.cfg = cfg
	return nil
}

// resolveToken returns the --token flag or the configured environment
// variable. The token is never printed.
func (a *app) resolveToken() (string, error) {
	if a.token != "" {
		return a.token, nil
	}
	if token := a.cfg.Token(); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("Telraam token not found. Set %s or use --token flag: %w",
		a.cfg.Telraam.TokenEnv, relaierrors.ErrInvalidToken)
}

func newHTTPClient(a *app) (telraam.Client, error) {
	token, err := a.resolveToken()
	if err != nil {
		return nil, err
	}
	return telraam.NewHTTPClient(token, a.cfg.Endpoint(),
		telraam.WithTimeout(a.cfg.Telraam.Timeout),
		telraam.WithUserAgent(userAgent(a.cfg)),
	)
}

func userAgent(cfg *config.Config) string {
	if cfg.Telraam.UserAgent != "" {
		return cfg.Telraam.UserAgent
	}
	return "telraam-relay/" + version
}

// retryConfig converts the configured policy into the client's form.
func (a *app) retryConfig() *telraam.RetryConfig {
	r := a.cfg.Retry
	return &telraam.RetryConfig{
		MaxAttempts:       r.MaxAttempts,
		InitialBackoff:    r.InitialBackoff,
		MaxBackoff:        r.MaxBackoff,
		BackoffMultiplier: r.Multiplier,
		RetryableStatuses: r.RetryableStatuses,
	}
}

// retryingClient is used by the single-call commands; traffic fetches retry
// per chunk instead.
func (a *app) retryingClient() (telraam.Client, error) {
	client, err := a.newClient(a)
	if err != nil {
		return nil, err
	}
	retrier := telraam.NewRetrier(a.retryConfig())
	retrier.Warnings = a.stderr
	return telraam.NewRetryClient(client, retrier), nil
}

// openWriter returns the record writer selected by --output and the format.
func (a *app) openWriter() (output.RecordWriter, error) {
	format, err := output.ParseFormat(a.cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	if a.outputPath == "" || a.outputPath == "-" {
		return output.New(format, a.stdout)
	}
	w, err := output.Open(format, a.outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return w, nil
}

// writeAll writes records and closes w, keeping the first error.
func writeAll[T any](w output.RecordWriter, records []T) (err error) {
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	for _, r := range records {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// mapErrorToExitCode maps internal errors to appropriate exit codes
func mapErrorToExitCode(err error) int {
	if err == nil {
		return 0
	}

	if errors.Is(err, relaierrors.ErrPartialResult) {
		return 4 // Some chunks missing, the rest was written
	}

	if errors.Is(err, relaierrors.ErrInvalidToken) ||
		errors.Is(err, relaierrors.ErrNotFound) ||
		errors.Is(err, relaierrors.ErrRateLimit) {
		return 2 // Authentication/authorization errors
	}

	if errors.Is(err, relaierrors.ErrNetworkFailure) {
		return 3 // Network errors
	}

	// Errors without a sentinel, such as a bare HTTP status or a dial failure
	inspector := telerror.NewErrorChainInspector(telerror.NewInspector(), nil)
	if inspector.IsRateLimitError(err) || inspector.IsAuthError(err) || inspector.IsNotFoundError(err) {
		return 2
	}
	if inspector.IsNetworkError(err) {
		return 3
	}

	return 1 // General error
}
