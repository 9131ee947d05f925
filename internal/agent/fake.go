package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MaxGfeller/claude-tracker/internal/clierr"
)

// Fake is a Driver usable only from tests: it writes a pre-programmed
// stream-json transcript to the configured log file and returns a
// pre-programmed exit code, so ReviewLoop and Scheduler can be
// exercised without invoking the real claude binary.
//
// Responses are consumed in order, one per call to Run; the last
// response is reused for any call beyond len(Responses).
type Fake struct {
	Responses []FakeResponse
	calls     int

	// Prompts records every prompt Run was called with, in order,
	// so a test can assert on what ReviewLoop actually asked for.
	Prompts []string
}

// FakeResponse is one scripted Run outcome.
type FakeResponse struct {
	// Lines are raw stream-json lines written verbatim to the log
	// file and scanned exactly like a real agent's stdout.
	Lines []string

	ExitCode int
	Err      error
}

// Run implements Driver.
func (f *Fake) Run(ctx context.Context, cfg Config) (Result, error) {
	f.Prompts = append(f.Prompts, cfg.Prompt)

	index := f.calls
	if index >= len(f.Responses) {
		index = len(f.Responses) - 1
	}
	f.calls++

	if index < 0 {
		return Result{}, fmt.Errorf("agent.Fake: no responses configured")
	}
	response := f.Responses[index]
	if response.Err != nil {
		return Result{}, response.Err
	}

	if cfg.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
			return Result{}, clierr.IOError("creating fake log directory: %w", err)
		}
		file, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return Result{}, clierr.IOError("opening fake log file: %w", err)
		}
		defer file.Close()

		transcript, scanErr := scanStreamJSON(strings.NewReader(strings.Join(response.Lines, "\n")), file)
		if scanErr != nil {
			return Result{}, scanErr
		}
		return Result{ExitCode: response.ExitCode, Transcript: transcript}, nil
	}

	transcript, scanErr := scanStreamJSON(strings.NewReader(strings.Join(response.Lines, "\n")), nil)
	if scanErr != nil {
		return Result{}, scanErr
	}
	return Result{ExitCode: response.ExitCode, Transcript: transcript}, nil
}
