//go:build linux

package procgroup

import (
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/liveforge/streamctl/internal/log"
	"github.com/liveforge/streamctl/internal/metrics"
)

func set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func killGroup(pid int, grace, timeout time.Duration) error {
	if pid <= 0 {
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}

	logger := log.WithComponent("procgroup")
	logger.Debug().Int(log.FieldPID, pid).Msg("sending SIGTERM to process group")
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if err == syscall.ESRCH {
			metrics.RecordProcTerminate("SIGTERM", "esrch")
			return nil
		}
		metrics.RecordProcTerminate("SIGTERM", "error")
		_ = proc.Signal(syscall.SIGTERM)
	} else {
		metrics.RecordProcTerminate("SIGTERM", "sent")
	}

	done := make(chan struct{})
	go func() {
		_, _ = proc.Wait()
		close(done)
	}()

	select {
	case <-done:
		metrics.RecordProcWait("exit")
		return nil
	case <-time.After(grace):
	}

	logger.Warn().Int(log.FieldPID, pid).Msg("SIGTERM grace period exceeded, sending SIGKILL to process group")
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if err == syscall.ESRCH {
			metrics.RecordProcTerminate("SIGKILL", "esrch")
			return nil
		}
		metrics.RecordProcTerminate("SIGKILL", "error")
		_ = proc.Kill()
	} else {
		metrics.RecordProcTerminate("SIGKILL", "sent")
	}

	select {
	case <-done:
		metrics.RecordProcWait("forced_exit")
		return nil
	case <-time.After(timeout):
		metrics.RecordProcWait("forced_timeout")
		return ErrKillFailed
	}
}
