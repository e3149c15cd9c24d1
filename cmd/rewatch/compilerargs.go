package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rescript-lang/rewatch/astdeps"
	"github.com/rescript-lang/rewatch/buildstate"
	"github.com/rescript-lang/rewatch/config"
)

type compilerArgsCommand struct {
	dev             bool
	rescriptVersion string
	bscPath         string
}

func (c *compilerArgsCommand) Name() string { return "compiler-args" }
func (c *compilerArgsCommand) Args() string { return "<rescript.json>" }
func (c *compilerArgsCommand) ShortHelp() string {
	return "prints the exact compiler flag vector for a package"
}
func (c *compilerArgsCommand) LongHelp() string {
	return "compiler-args expects the path to a rescript.json file and prints the flags the core would pass to the compiler, as a JSON array, for editor tooling."
}

func (c *compilerArgsCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&c.dev, "dev", false, "include dev-typed source directories")
	fs.StringVar(&c.rescriptVersion, "rescript-version", "", "compiler version, for version-gated defaults")
	fs.StringVar(&c.bscPath, "bsc-path", "", "a custom path to bsc")
}

func (c *compilerArgsCommand) Run(args []string) int {
	fs := flag.NewFlagSet("compiler-args", flag.ExitOnError)
	c.Register(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "compiler-args expects exactly one argument: the path to a rescript.json file")
		return 2
	}
	path := fs.Arg(0)

	cfg, err := config.Load(filepath.Dir(path))
	if err != nil {
		log.WithError(err).Error("compiler-args: loading config")
		return 2
	}
	if c.rescriptVersion != "" {
		cfg.CompilerVersion = c.rescriptVersion
	}

	pkg := buildstate.NewPackage(cfg.Name, filepath.Dir(path), cfg)
	ppx, jsx, bsc, uncurried, gentype := astdeps.FlagsFor(pkg)

	var flags []string
	flags = append(flags, ppx...)
	flags = append(flags, jsx...)
	if uncurried {
		flags = append(flags, "-uncurried")
	}
	flags = append(flags, bsc...)
	if gentype {
		flags = append(flags, "-bs-gentype")
	}

	out, err := json.Marshal(flags)
	if err != nil {
		log.WithError(err).Error("compiler-args: encoding flags")
		return 2
	}
	fmt.Println(string(out))
	return 0
}
