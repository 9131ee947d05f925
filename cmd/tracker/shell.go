package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/MaxGfeller/claude-tracker/internal/clierr"
)

const shellFunctionTemplate = `tracker() {
  if [ "$1" = "checkout" ]; then
    local dir
    dir="$(command tracker checkout "$2")" && cd "$dir"
  else
    command tracker "$@"
  fi
}
`

// installShellFunctionCommand prints, or with --auto appends to the
// user's rc file, a shell function wrapping "tracker checkout" in a
// cd. A subprocess can never change its parent shell's working
// directory, so "tracker checkout <id>" alone cannot cd the caller
// anywhere — the wrapper function is what lets a user actually land in
// a plan's checkout by running "tracker checkout <id>" interactively.
func installShellFunctionCommand(e *env) *command {
	var auto, wantBash, wantZsh bool
	flags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("install-shell-function", pflag.ContinueOnError)
		fs.BoolVar(&auto, "auto", false, "append to the detected shell's rc file instead of printing")
		fs.BoolVar(&wantBash, "bash", false, "target bash (default: detect from $SHELL)")
		fs.BoolVar(&wantZsh, "zsh", false, "target zsh (default: detect from $SHELL)")
		return fs
	}

	return &command{
		name:    "install-shell-function",
		summary: "Print or install a shell function that cd's into a plan's checkout",
		usage:   "tracker install-shell-function [--auto] [--bash|--zsh]",
		flags:   flags,
		run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return clierr.InputError("install-shell-function takes no positional arguments")
			}
			if wantBash && wantZsh {
				return clierr.InputError("choose at most one of --bash or --zsh")
			}

			rcName, err := detectShellRC(wantBash, wantZsh)
			if err != nil {
				return err
			}

			if !auto {
				fmt.Print(shellFunctionTemplate)
				fmt.Printf("\n# Append the function above to %s, or re-run with --auto.\n", rcName)
				return nil
			}

			home, err := os.UserHomeDir()
			if err != nil {
				return clierr.IOError("resolving home directory: %w", err)
			}
			rcPath := filepath.Join(home, rcName)

			f, err := os.OpenFile(rcPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return clierr.IOError("opening %s: %w", rcPath, err)
			}
			defer f.Close()

			if _, err := fmt.Fprintf(f, "\n# added by tracker install-shell-function\n%s", shellFunctionTemplate); err != nil {
				return clierr.IOError("writing %s: %w", rcPath, err)
			}
			fmt.Printf("appended tracker() function to %s\n", rcPath)
			return nil
		},
	}
}

// detectShellRC resolves which rc filename to target, honoring an
// explicit --bash/--zsh override and otherwise reading $SHELL.
func detectShellRC(wantBash, wantZsh bool) (string, error) {
	switch {
	case wantBash:
		return ".bashrc", nil
	case wantZsh:
		return ".zshrc", nil
	}

	shell := os.Getenv("SHELL")
	switch {
	case strings.Contains(shell, "zsh"):
		return ".zshrc", nil
	case strings.Contains(shell, "bash"):
		return ".bashrc", nil
	default:
		return "", clierr.InputError("cannot detect shell from $SHELL %q; pass --bash or --zsh", shell)
	}
}
