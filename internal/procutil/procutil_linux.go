//go:build linux

package procutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func matchesImage(pid int, binPath string) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return true
	}
	return strings.TrimSpace(string(data)) == filepath.Base(binPath)
}
