package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/MaxGfeller/claude-tracker/internal/childtable"
	"github.com/MaxGfeller/claude-tracker/internal/clierr"
)

// ClaudeDriver implements Driver by shelling out to the real `claude`
// binary with the stream-json protocol.
type ClaudeDriver struct {
	// Binary overrides the executable name; defaults to "claude"
	// resolved via PATH.
	Binary string

	// Children, if non-nil, is updated with the spawned PID for the
	// lifetime of the run.
	Children *childtable.Table
}

// NewClaudeDriver returns a driver that registers every spawned
// process in children (which may be nil to disable registration).
func NewClaudeDriver(children *childtable.Table) *ClaudeDriver {
	return &ClaudeDriver{Children: children}
}

func (d *ClaudeDriver) binary() string {
	if d.Binary != "" {
		return d.Binary
	}
	if fromEnv := os.Getenv("CLAUDE_BINARY"); fromEnv != "" {
		return fromEnv
	}
	return "claude"
}

// Run spawns claude per the invocation contract, streams its output
// into cfg.LogPath, and reduces the stream to a transcript.
func (d *ClaudeDriver) Run(ctx context.Context, cfg Config) (Result, error) {
	arguments := []string{"-p", "-"}
	if cfg.Resume {
		arguments = append(arguments, "--resume", cfg.SessionID)
	} else {
		arguments = append(arguments, "--session-id", cfg.SessionID)
	}
	if cfg.SkipPermissions {
		arguments = append(arguments, "--dangerously-skip-permissions")
	}
	arguments = append(arguments, "--verbose", "--output-format", "stream-json")

	promptFile, err := os.CreateTemp("", "tracker-prompt-*")
	if err != nil {
		return Result{}, clierr.IOError("creating prompt temp file: %w", err)
	}
	if _, err := promptFile.WriteString(cfg.Prompt); err != nil {
		promptFile.Close()
		os.Remove(promptFile.Name())
		return Result{}, clierr.IOError("writing prompt temp file: %w", err)
	}
	if _, err := promptFile.Seek(0, 0); err != nil {
		promptFile.Close()
		os.Remove(promptFile.Name())
		return Result{}, clierr.IOError("seeking prompt temp file: %w", err)
	}
	// Unlink now — the open file descriptor keeps the content
	// readable for the child even though the name is gone.
	os.Remove(promptFile.Name())
	defer promptFile.Close()

	logFile, err := openLog(cfg.LogPath)
	if err != nil {
		return Result{}, err
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, d.binary(), arguments...)
	cmd.Dir = cfg.WorkingDirectory
	cmd.Stdin = promptFile
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), cfg.ExtraEnv...)

	// Own process group so cancellation reaches every helper process
	// (linters, test runners) the agent itself forks, not just the
	// direct child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
	}
	cmd.WaitDelay = 10 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, clierr.AgentError("creating stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, clierr.AgentError("starting agent: %w", err)
	}

	if d.Children != nil {
		d.Children.Register(cmd.Process.Pid, childtable.Info{
			PlanID:    cfg.PlanID,
			Role:      string(cfg.Role),
			StartedAt: time.Now(),
		})
		defer d.Children.Unregister(cmd.Process.Pid)
	}

	transcript, scanErr := scanStreamJSON(stdout, logFile)

	waitErr := cmd.Wait()

	if scanErr != nil && !errors.Is(scanErr, context.Canceled) {
		return Result{}, clierr.AgentError("reading agent output: %w", scanErr)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{ExitCode: -1, Transcript: transcript}, ctxErr
	}

	if waitErr == nil {
		return Result{ExitCode: 0, Transcript: transcript}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return Result{ExitCode: exitErr.ExitCode(), Transcript: transcript}, nil
	}

	// Non-exit failure: waiting on the process itself failed.
	return Result{ExitCode: -1, Transcript: transcript}, waitErr
}

func openLog(path string) (*os.File, error) {
	if path == "" {
		return nil, clierr.IOError("agent run requires a log path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, clierr.IOError("creating log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, clierr.IOError("opening log file %s: %w", path, err)
	}
	return file, nil
}

// streamLine is the minimal envelope every stream-json line carries.
type streamLine struct {
	Type    string `json:"type"`
	Message *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

// scanStreamJSON reads one JSON object per line from stdout, appending
// every raw line to logFile (if non-nil), and returns the concatenated
// text of every assistant message's text content items. Malformed
// lines are logged but otherwise ignored.
func scanStreamJSON(stdout io.Reader, logFile *os.File) (string, error) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var transcript string
	for scanner.Scan() {
		line := scanner.Bytes()
		if logFile != nil {
			logLine(logFile, line)
		}
		if len(line) == 0 {
			continue
		}

		var parsed streamLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			continue // malformed line: logged above, not transcribed
		}
		if parsed.Type != "assistant" || parsed.Message == nil {
			continue
		}
		for _, item := range parsed.Message.Content {
			if item.Type == "text" {
				transcript += item.Text
			}
		}
	}
	return transcript, scanner.Err()
}
