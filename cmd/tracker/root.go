package main

// rootCommand assembles every subcommand constructor into the full
// dispatch tree main() executes against os.Args[1:].
func rootCommand(e *env) *command {
	return &command{
		name:    "tracker",
		summary: "Register and drive multi-project implementation plans through an agent",
		usage:   "tracker <command> [flags]",
		subcommands: []*command{
			createCommand(e),
			addCommand(e),
			listCommand(e),
			statusCommand(e),
			planCommand(e),
			showDepsCommand(e),
			setDependencyCommand(e),
			clearDependencyCommand(e),
			workCommand(e),
			resumeCommand(e),
			checkoutCommand(e),
			completeCommand(e),
			resetCommand(e),
			cancelCommand(e),
			cleanupCommand(e),
			configCommand(e),
			uiCommand(e),
			installShellFunctionCommand(e),
		},
	}
}
