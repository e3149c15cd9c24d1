package main

import (
	"context"
	"flag"
	"os"
	"os/exec"
	"time"

	"github.com/rescript-lang/rewatch/orchestrator"
)

type buildCommand struct {
	filter           string
	afterBuild       string
	createSourcedirs bool
	dev              bool
	noTiming         bool
	bscPath          string
}

func (c *buildCommand) Name() string      { return "build" }
func (c *buildCommand) Args() string      { return "[folder]" }
func (c *buildCommand) ShortHelp() string { return "one-shot incremental build" }
func (c *buildCommand) LongHelp() string {
	return "build runs package resolution, source scanning, dirty reconciliation, AST extraction, and compilation once."
}

func (c *buildCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.filter, "filter", "", "module filename regex; accepted but not applied, every module is built")
	fs.StringVar(&c.afterBuild, "after-build", "", "command to run after a successful build")
	fs.BoolVar(&c.createSourcedirs, "create-sourcedirs", false, "emit .sourcedirs.json for each package")
	fs.BoolVar(&c.dev, "dev", false, "include dev-typed source directories")
	fs.BoolVar(&c.noTiming, "no-timing", false, "suppress the build duration summary")
	fs.StringVar(&c.bscPath, "bsc-path", "", "path to the compiler driver binary")
}

func (c *buildCommand) Run(args []string) int {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	c.Register(fs)
	fs.Parse(args)

	folder := "."
	if fs.NArg() > 0 {
		folder = fs.Arg(0)
	}

	start := time.Now()
	result, err := orchestrator.Run(context.Background(), orchestrator.Options{
		ProjectRoot:      folder,
		BscPath:          c.bscPath,
		BuildDevDeps:     c.dev,
		CreateSourcedirs: c.createSourcedirs,
	})
	if err != nil {
		log.WithError(err).Error("build failed")
	}

	printStatus(result, time.Since(start), c.noTiming)

	if c.afterBuild != "" && result.ExitCode == orchestrator.ExitSuccess {
		runAfterBuild(c.afterBuild)
	}

	return int(result.ExitCode)
}

func runAfterBuild(cmdline string) {
	log.WithField("cmd", cmdline).Info("running after-build hook")
	cmd := exec.Command("sh", "-c", cmdline)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		log.WithError(err).WithField("cmd", cmdline).Warn("after-build hook failed")
	}
}
