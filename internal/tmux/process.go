package tmux

import (
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// descendantPIDs returns every descendant of pid, children before
// grandchildren. pgrep -P does the lookup.
func descendantPIDs(pid int) []int {
	if pid <= 0 {
		return nil
	}
	output, err := exec.Command("pgrep", "-P", strconv.Itoa(pid)).Output()
	if err != nil {
		return nil
	}

	var out []int
	for _, line := range strings.Fields(string(output)) {
		child, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		out = append(out, child)
		out = append(out, descendantPIDs(child)...)
	}
	return out
}

// processAlive uses kill(pid, 0), which probes without signalling.
func processAlive(pid int) bool {
	return pid > 0 && syscall.Kill(pid, 0) == nil
}

// killSurvivors SIGKILLs whatever in pids outlived its session, deepest
// descendants first so nothing is reparented mid-sweep.
func killSurvivors(pids []int) {
	for i := len(pids) - 1; i >= 0; i-- {
		if processAlive(pids[i]) {
			_ = syscall.Kill(pids[i], syscall.SIGKILL)
		}
	}
}
