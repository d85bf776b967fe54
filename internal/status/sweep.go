package status

import (
	"errors"
	"log"
	"os/exec"
	"runtime"
)

// SweepOrphans kills leftover companions whose command line matches pattern.
// It is best-effort: a missing pkill or no match is not an error.
func SweepOrphans(pattern string) {
	if pattern == "" || runtime.GOOS == "windows" {
		return
	}
	err := exec.Command("pkill", "-f", pattern).Run()
	if err == nil {
		log.Printf("[status] swept orphaned companions matching %q", pattern)
		return
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		// No process matched.
		return
	}
	log.Printf("[status] orphan sweep: %v", err)
}
