package scheduler

import (
	"os"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffAgainstBaseline compares a formatted cycle against a previously
// saved baseline file (orchestrator.Options.CycleBaseline; no CLI flag
// sets it). When the baseline is
// missing, it returns the formatted cycle unchanged with changed=true.
// This never alters the cycle's fatal exit code (spec.md 6/7); it only
// annotates whether CI should treat the cycle as newly introduced.
func DiffAgainstBaseline(baselinePath, formatted string) (diffText string, changed bool, err error) {
	data, readErr := os.ReadFile(baselinePath)
	if readErr != nil {
		return formatted, true, nil
	}
	baseline := string(data)
	if baseline == formatted {
		return "", false, nil
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(baseline, formatted, false)
	return dmp.DiffPrettyText(diffs), true, nil
}
