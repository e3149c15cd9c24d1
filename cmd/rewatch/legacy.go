package main

import (
	"flag"
	"os"
	"os/exec"
)

// legacyCommand is a verbatim pass-through to the legacy per-package
// build driver (original_source/src/cli.rs's Command::Legacy), plus
// the format/dump aliases that forward to it with a fixed first
// argument. None of these subcommands touch the core's build state;
// they exist purely to hand the remaining argv to another binary.
type legacyCommand struct{}

func (c *legacyCommand) Name() string      { return "legacy" }
func (c *legacyCommand) Args() string      { return "<...>" }
func (c *legacyCommand) ShortHelp() string { return "verbatim pass-through to the legacy build driver" }
func (c *legacyCommand) LongHelp() string {
	return "legacy forwards every remaining argument to the legacy per-package build driver unmodified."
}
func (c *legacyCommand) Register(fs *flag.FlagSet) {}

func (c *legacyCommand) Run(args []string) int {
	return runLegacy(args)
}

func runLegacy(args []string) int {
	driver := os.Getenv("REWATCH_LEGACY_DRIVER")
	if driver == "" {
		driver = "bsb"
	}
	cmd := exec.Command(driver, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		log.WithError(err).Error("legacy: invoking legacy driver")
		return 2
	}
	return 0
}

// formatCommand and dumpCommand are aliases to `legacy format` / `legacy
// dump` (cli.rs's Command::Format / Command::Dump): same pass-through,
// with the subcommand name prepended.
type formatCommand struct{}

func (c *formatCommand) Name() string             { return "format" }
func (c *formatCommand) Args() string             { return "<...>" }
func (c *formatCommand) ShortHelp() string        { return "alias for legacy format" }
func (c *formatCommand) LongHelp() string         { return "format is an alias for `legacy format`." }
func (c *formatCommand) Register(fs *flag.FlagSet) {}
func (c *formatCommand) Run(args []string) int {
	return runLegacy(append([]string{"format"}, args...))
}

type dumpCommand struct{}

func (c *dumpCommand) Name() string             { return "dump" }
func (c *dumpCommand) Args() string             { return "<...>" }
func (c *dumpCommand) ShortHelp() string        { return "alias for legacy dump" }
func (c *dumpCommand) LongHelp() string         { return "dump is an alias for `legacy dump`." }
func (c *dumpCommand) Register(fs *flag.FlagSet) {}
func (c *dumpCommand) Run(args []string) int {
	return runLegacy(append([]string{"dump"}, args...))
}
