// Command rewatch is an incremental, parallel build orchestrator for
// monorepos whose compiler is invoked as an external process.
//
// Grounded on the teacher's cmd/dep main.go: a command interface
// (Name/Args/ShortHelp/LongHelp/Register/Run), a commands slice walked
// by a hand-rolled usage/dispatch loop rather than a third-party CLI
// framework (the teacher predates cobra's adoption; neither does this
// tool, to keep the dependency surface aligned).
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/rescript-lang/rewatch/orchestrator"
)

type command interface {
	Name() string
	Args() string
	ShortHelp() string
	LongHelp() string
	Register(*flag.FlagSet)
	Run(args []string) int
}

var log = logrus.New()

// isTTY gates colorized status/progress output: piping rewatch's output
// to a file or CI log shouldn't fill it with ANSI escapes.
func isTTY() bool {
	return terminal.IsTerminal(int(os.Stdout.Fd()))
}

func main() {
	log.SetFormatter(&logrus.TextFormatter{ForceColors: isTTY(), DisableColors: !isTTY()})

	commands := []command{
		&buildCommand{},
		&watchCommand{},
		&cleanCommand{},
		&compilerArgsCommand{},
		&legacyCommand{},
		&formatCommand{},
		&dumpCommand{},
	}

	args := os.Args[1:]
	verbosity, args := extractVerbosity(args)
	applyVerbosity(verbosity)

	if len(args) == 0 {
		usage(commands)
		os.Exit(1)
	}

	name := args[0]
	for _, cmd := range commands {
		if cmd.Name() == name {
			os.Exit(cmd.Run(args[1:]))
		}
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage(commands)
	os.Exit(1)
}

func usage(commands []command) {
	fmt.Fprintln(os.Stderr, "rewatch is a build orchestrator for ReScript-style monorepos")
	fmt.Fprintln(os.Stderr, "Usage: rewatch <command> [args]")
	fmt.Fprintln(os.Stderr)
	w := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
	for _, cmd := range commands {
		fmt.Fprintf(w, "\t%s %s\t%s\n", cmd.Name(), cmd.Args(), cmd.ShortHelp())
	}
	w.Flush()
}

// extractVerbosity pulls -v/-vv/-q/-qq/-qqq out of the argument list,
// mapping them onto logrus levels (spec.md 6/SPEC_FULL 6's CLI surface).
func extractVerbosity(args []string) (int, []string) {
	level := 0
	var out []string
	for _, a := range args {
		switch a {
		case "-v":
			level = 1
		case "-vv":
			level = 2
		case "-q":
			level = -1
		case "-qq":
			level = -2
		case "-qqq":
			level = -3
		default:
			out = append(out, a)
			continue
		}
	}
	return level, out
}

// printStatus prints the one-line build summary build and watch share,
// colorized only when stdout is attached to a terminal: a pass/fail
// word plus compiled count, then (unless suppressed) the duration.
func printStatus(result orchestrator.Result, elapsed time.Duration, noTiming bool) {
	word := "ok"
	if result.ExitCode != orchestrator.ExitSuccess {
		word = "failed"
	}
	if isTTY() {
		color := "\x1b[32m" // green
		if result.ExitCode != orchestrator.ExitSuccess {
			color = "\x1b[31m" // red
		}
		word = color + word + "\x1b[0m"
	}
	fmt.Fprintf(os.Stderr, "%s: %d module(s) compiled", word, len(result.Compiled))
	if !noTiming {
		fmt.Fprintf(os.Stderr, " in %s", elapsed.Round(time.Millisecond))
	}
	fmt.Fprintln(os.Stderr)
}

func applyVerbosity(level int) {
	switch {
	case level >= 2:
		log.SetLevel(logrus.TraceLevel)
	case level == 1:
		log.SetLevel(logrus.DebugLevel)
	case level == 0:
		log.SetLevel(logrus.InfoLevel)
	case level == -1:
		log.SetLevel(logrus.WarnLevel)
	case level == -2:
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.FatalLevel)
	}
}
