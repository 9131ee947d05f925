package main

import (
	"context"
	"fmt"

	"github.com/MaxGfeller/claude-tracker/internal/clierr"
	"github.com/MaxGfeller/claude-tracker/internal/config"
)

// configCommand implements `tracker config [key [value]]`: no
// arguments prints the whole document, one argument reads a single
// key, two arguments sets it and persists the file.
func configCommand(e *env) *command {
	return &command{
		name:    "config",
		summary: "Read or write a configuration key",
		usage:   "tracker config [key [value]]",
		run: func(ctx context.Context, args []string) error {
			switch len(args) {
			case 0:
				return printJSON(e.Config)
			case 1:
				value, err := config.Get(e.Config, args[0])
				if err != nil {
					return err
				}
				fmt.Println(value)
				return nil
			case 2:
				if err := config.Set(e.Config, args[0], args[1]); err != nil {
					return err
				}
				return config.Save(e.ConfigPath, e.Config)
			default:
				return clierr.InputError("config takes at most a key and a value")
			}
		},
	}
}
