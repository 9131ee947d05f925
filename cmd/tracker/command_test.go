package main

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommandDispatchesToSubcommand(t *testing.T) {
	t.Parallel()

	var ran string
	root := &command{
		name: "tracker",
		subcommands: []*command{
			{name: "list", run: func(ctx context.Context, args []string) error {
				ran = "list"
				return nil
			}},
			{name: "work", run: func(ctx context.Context, args []string) error {
				ran = "work"
				return nil
			}},
		},
	}

	if err := root.execute(context.Background(), []string{"work", "5"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if ran != "work" {
		t.Errorf("ran = %q, want %q", ran, "work")
	}
}

func TestCommandUnknownSubcommand(t *testing.T) {
	t.Parallel()

	root := &command{
		name:        "tracker",
		subcommands: []*command{{name: "list"}},
	}

	err := root.execute(context.Background(), []string{"bogus"})
	if err == nil {
		t.Fatal("execute: want error for unknown subcommand")
	}
}

func TestCommandParsesFlagsBeforeRun(t *testing.T) {
	t.Parallel()

	var jsonOut bool
	var gotArgs []string
	c := &command{
		name: "list",
		flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
			fs.BoolVar(&jsonOut, "json", false, "")
			return fs
		},
		run: func(ctx context.Context, args []string) error {
			gotArgs = args
			return nil
		},
	}

	if err := c.execute(context.Background(), []string{"--json", "extra"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !jsonOut {
		t.Error("jsonOut = false, want true")
	}
	if len(gotArgs) != 1 || gotArgs[0] != "extra" {
		t.Errorf("gotArgs = %v, want [extra]", gotArgs)
	}
}

func TestCommandMissingRunReturnsError(t *testing.T) {
	t.Parallel()

	c := &command{name: "tracker", subcommands: []*command{{name: "list", run: func(context.Context, []string) error { return nil }}}}
	if err := c.execute(context.Background(), nil); err == nil {
		t.Fatal("execute: want error when a command with subcommands has no run and no args")
	}
}

func TestCommandPropagatesRunError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("boom")
	c := &command{name: "fail", run: func(context.Context, []string) error { return wantErr }}
	if err := c.execute(context.Background(), nil); !errors.Is(err, wantErr) {
		t.Errorf("execute error = %v, want %v", err, wantErr)
	}
}

func TestCommandHelpFlagShortCircuits(t *testing.T) {
	t.Parallel()

	called := false
	c := &command{name: "tracker", run: func(context.Context, []string) error {
		called = true
		return nil
	}}
	if err := c.execute(context.Background(), []string{"--help"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if called {
		t.Error("run was called despite --help")
	}
}

func TestCommandFullName(t *testing.T) {
	t.Parallel()

	parent := &command{name: "tracker"}
	child := &command{name: "work", parent: parent}
	if got, want := child.fullName(), "tracker work"; got != want {
		t.Errorf("fullName = %q, want %q", got, want)
	}
}
