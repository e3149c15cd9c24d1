package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/Masterminds/vcs"
	shutil "github.com/termie/go-shutil"

	"github.com/rescript-lang/rewatch/artifacts"
	"github.com/rescript-lang/rewatch/pkgtree"
)

type cleanCommand struct {
	bscPath string
}

func (c *cleanCommand) Name() string      { return "clean" }
func (c *cleanCommand) Args() string      { return "[folder]" }
func (c *cleanCommand) ShortHelp() string { return "removes every module's build artifacts" }
func (c *cleanCommand) LongHelp() string {
	return "clean removes every module's artifacts and the namespace aggregator files, without running a build."
}

func (c *cleanCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.bscPath, "bsc-path", "", "path to the compiler driver binary (unused, accepted for parity)")
}

func (c *cleanCommand) Run(args []string) int {
	fs := flag.NewFlagSet("clean", flag.ExitOnError)
	c.Register(fs)
	fs.Parse(args)

	folder := "."
	if fs.NArg() > 0 {
		folder = fs.Arg(0)
	}

	b, err := pkgtree.Resolve(folder)
	if err != nil {
		log.WithError(err).Error("clean: resolving package graph")
		return 2
	}

	// Surfaced purely as a diagnostic: knowing whether the project root
	// sits inside a git/svn/hg/bzr checkout helps explain why a stray
	// .rewatch-trash directory shows up as untracked in `git status`.
	if vcsType, err := vcs.DetectVcsFromFS(folder); err == nil {
		log.WithField("vcs", vcsType).Debug("clean: detected version control system")
	}

	trash := filepath.Join(folder, ".rewatch-trash")
	defer os.RemoveAll(trash)

	for _, pkg := range b.Packages {
		dir := artifacts.BuildDir(pkg.Path)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		// Mirror the teacher's exportVersionTo idiom (CopyTree a working
		// copy elsewhere, then discard the source) rather than unlinking
		// files one at a time: the whole lib/bs tree moves to a scratch
		// location in one shutil.CopyTree call, and the original is
		// dropped, leaving the package's artifacts fully purged.
		dest := filepath.Join(trash, pkg.Name)
		if err := shutil.CopyTree(dir, dest, nil); err != nil {
			log.WithError(err).WithField("package", pkg.Name).Warn("clean: staging build directory for removal")
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			log.WithError(err).WithField("package", pkg.Name).Warn("clean: removing build directory")
			continue
		}
		log.WithField("package", pkg.Name).Debug("clean: removed")
	}

	return 0
}
