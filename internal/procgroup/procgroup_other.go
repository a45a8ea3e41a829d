//go:build !linux

package procgroup

import (
	"os"
	"os/exec"
	"time"

	"github.com/liveforge/streamctl/internal/log"
	"github.com/liveforge/streamctl/internal/metrics"
)

func set(cmd *exec.Cmd) {
	// Best-effort: non-linux platforms get no process-group isolation.
}

func killGroup(pid int, grace, timeout time.Duration) error {
	if pid <= 0 {
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}

	log.WithComponent("procgroup").Debug().Int(log.FieldPID, pid).Msg("sending interrupt to root process (non-linux fallback)")
	if err := proc.Signal(os.Interrupt); err != nil {
		metrics.RecordProcTerminate("SIGINT", "error")
	} else {
		metrics.RecordProcTerminate("SIGINT", "sent")
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
		if err := proc.Kill(); err != nil {
			metrics.RecordProcTerminate("SIGKILL", "error")
		} else {
			metrics.RecordProcTerminate("SIGKILL", "sent")
		}
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
