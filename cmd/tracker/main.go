package main

import (
	"context"
	"os"

	"github.com/MaxGfeller/claude-tracker/internal/termstyle"
)

func main() {
	os.Exit(run())
}

func run() int {
	verbose, args := extractVerboseFlag(os.Args[1:])

	e, err := newEnv(verbose)
	if err != nil {
		termstyle.PrintError(os.Stderr, err)
		return 1
	}
	defer e.close()

	root := rootCommand(e)
	if err := root.execute(context.Background(), args); err != nil {
		termstyle.PrintError(os.Stderr, err)
		return 1
	}
	return 0
}

// extractVerboseFlag pulls -v/--verbose out of args wherever it
// appears, since it must be known before newEnv builds the logger and
// the command tree does not exist yet to parse it through pflag.
func extractVerboseFlag(args []string) (bool, []string) {
	verbose := false
	rest := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "-v" || arg == "--verbose" {
			verbose = true
			continue
		}
		rest = append(rest, arg)
	}
	return verbose, rest
}
