// Package encoder supervises the external encoder binary: one OS process per
// live session, tracked in an in-memory registry keyed by session id. It
// spawns, gracefully stops, tails logs for, and auto-restarts encoder
// processes with capped exponential backoff.
package encoder

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/liveforge/streamctl/internal/concatplan"
	"github.com/liveforge/streamctl/internal/domain/stream/model"
	"github.com/liveforge/streamctl/internal/log"
	"github.com/liveforge/streamctl/internal/metrics"
	"github.com/liveforge/streamctl/internal/procgroup"
)

// MaxRestarts is the number of restart attempts the in-process watcher makes
// before finalizing a session as failed (k = 0..4, five attempts).
const MaxRestarts = 5

const (
	gracefulQuitWait = 5 * time.Second
	terminateWait    = 3 * time.Second
	killWait         = 2 * time.Second
	logRingCapacity  = 200
)

// StopScope selects how forcefully Stop terminates a session's process.
type StopScope int

const (
	// StopGraceful sends the encoder's quit command before escalating.
	StopGraceful StopScope = iota
	// StopForce skips the graceful quit and terminates immediately.
	StopForce
)

// StartSpec carries everything Start needs to derive encoder arguments; the
// supervisor holds no state beyond what's passed here and what it tracks in
// its own registry.
type StartSpec struct {
	SessionID      string
	StreamKeyToken string
	RTMPURL        string
	Mode           model.SessionMode
	Loop           bool

	AssetPaths []string // ModeSingle (len 1) and ModePlaylist, in playback order

	BackgroundPath  string   // ModeMusicPlaylist
	MusicAssetPaths []string // ModeMusicPlaylist
	AmbientPath     string   // ModeMusicPlaylist, optional
	AmbientVolume   float64  // ModeMusicPlaylist
}

// StatusInfo is the snapshot Status and the health monitor read.
type StatusInfo struct {
	PID           int
	Running       bool
	ExitCode      int
	StartedAt     time.Time
	UptimeSeconds float64
	RestartCount  int
	MaxRetries    int
}

// RestartObserver is notified when the in-process watcher restarts a crashed
// encoder on its own, without the caller's involvement — so the session
// store can be kept in sync with what actually happened to the process.
type RestartObserver interface {
	OnRestartSucceeded(sessionID string, pid int)
	OnRestartsExhausted(sessionID string, lastErrorLine string)
}

type registryEntry struct {
	mu sync.Mutex

	sessionID     string
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	logFile       *os.File
	logRing       *LineRing
	manifestPaths []string
	exited        chan struct{} // closed by watch once cmd.Wait returns for this process instance

	spec       StartSpec
	args       []string
	startedAt  time.Time
	restarts   int
	intentStop bool
	exitCode   int
	running    bool
}

// Supervisor is the Encoder Supervisor (C1).
type Supervisor struct {
	mu          sync.RWMutex
	entries     map[string]*registryEntry
	binPath     string
	logDir      string
	manifestDir string
	observer    RestartObserver
}

// NewSupervisor constructs a Supervisor. observer may be nil if the caller
// never wants in-process auto-restart notifications (e.g. in tests).
func NewSupervisor(binPath, logDir, manifestDir string, observer RestartObserver) *Supervisor {
	return &Supervisor{
		entries:     make(map[string]*registryEntry),
		binPath:     binPath,
		logDir:      logDir,
		manifestDir: manifestDir,
		observer:    observer,
	}
}

func (s *Supervisor) buildArgsAndManifests(spec StartSpec) ([]string, []string, error) {
	switch spec.Mode {
	case model.ModeMusicPlaylist:
		if len(spec.MusicAssetPaths) == 0 {
			return nil, nil, model.ErrNoAssets
		}
		musicManifest, err := concatplan.Build(s.manifestDir, spec.SessionID+"_music", spec.MusicAssetPaths)
		if err != nil {
			return nil, nil, err
		}
		args := MusicPlaylistArgs(MusicPlaylistInputs{
			BackgroundPath:    spec.BackgroundPath,
			MusicManifestPath: musicManifest,
			AmbientPath:       spec.AmbientPath,
			AmbientVolume:     spec.AmbientVolume,
		}, spec.RTMPURL)
		return args, []string{musicManifest}, nil
	default:
		if len(spec.AssetPaths) == 0 {
			return nil, nil, model.ErrNoAssets
		}
		manifest, err := concatplan.Build(s.manifestDir, spec.SessionID, spec.AssetPaths)
		if err != nil {
			return nil, nil, err
		}
		return PlaylistArgs(manifest, spec.Loop, spec.RTMPURL), []string{manifest}, nil
	}
}

// Start spawns the encoder for spec. Returns the OS process id on success.
func (s *Supervisor) Start(spec StartSpec) (int, error) {
	s.mu.Lock()
	if _, exists := s.entries[spec.SessionID]; exists {
		s.mu.Unlock()
		return 0, model.ErrAlreadyRunning
	}
	s.mu.Unlock()

	args, manifests, err := s.buildArgsAndManifests(spec)
	if err != nil {
		return 0, err
	}

	entry, err := s.spawn(spec, args, manifests)
	if err != nil {
		for _, m := range manifests {
			_ = concatplan.Remove(m)
		}
		return 0, fmt.Errorf("%w: %v", model.ErrSpawnFailed, err)
	}

	s.mu.Lock()
	s.entries[spec.SessionID] = entry
	s.mu.Unlock()

	go s.watch(entry)

	return entry.cmd.Process.Pid, nil
}

func (s *Supervisor) spawn(spec StartSpec, args, manifests []string) (*registryEntry, error) {
	logPath := filepath.Join(s.logDir, fmt.Sprintf("session_%s_%d.log", spec.SessionID, time.Now().UnixNano()))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	cmd := exec.Command(s.binPath, args...)
	procgroup.Set(cmd)

	ring := NewLineRing(logRingCapacity)
	cmd.Stdout = io.MultiWriter(logFile, ring)
	cmd.Stderr = io.MultiWriter(logFile, ring)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	logger := log.WithComponent("encoder-supervisor")
	logger.Info().
		Str(log.FieldSessionID, spec.SessionID).
		Strs("args", MaskedArgs(args, spec.StreamKeyToken)).
		Msg("starting encoder")

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, err
	}

	return &registryEntry{
		sessionID:     spec.SessionID,
		cmd:           cmd,
		stdin:         stdin,
		logFile:       logFile,
		logRing:       ring,
		manifestPaths: manifests,
		exited:        make(chan struct{}),
		spec:          spec,
		args:          args,
		startedAt:     time.Now(),
		running:       true,
	}, nil
}

// watch waits for the process to exit and, unless the exit was an intended
// Stop, runs the capped-backoff in-process restart loop described in the
// encoder supervisor's restart policy.
func (s *Supervisor) watch(entry *registryEntry) {
	logger := log.WithComponent("encoder-supervisor")

	for {
		err := entry.cmd.Wait()
		close(entry.exited)

		entry.mu.Lock()
		entry.running = false
		if exitErr, ok := err.(*exec.ExitError); ok {
			entry.exitCode = exitErr.ExitCode()
		} else if err == nil {
			entry.exitCode = 0
		}
		intentStop := entry.intentStop
		exitCode := entry.exitCode
		entry.mu.Unlock()

		if intentStop || exitCode == 0 {
			return
		}

		if entry.restarts >= MaxRestarts {
			lastLine := lastOrEmpty(entry.logRing.LastN(1))
			logger.Error().Str(log.FieldSessionID, entry.sessionID).Int(log.FieldAttempt, entry.restarts).
				Msg("encoder crash loop: restarts exhausted")
			metrics.RecordRestartExhausted(metrics.PathSupervisor)
			if s.observer != nil {
				s.observer.OnRestartsExhausted(entry.sessionID, lastLine)
			}
			s.remove(entry.sessionID)
			return
		}

		delay := backoffDelay(entry.restarts)
		logger.Warn().Str(log.FieldSessionID, entry.sessionID).Int(log.FieldAttempt, entry.restarts).
			Dur(log.FieldBackoffDelay, delay).Msg("encoder exited unexpectedly, scheduling restart")
		metrics.RecordEncoderRestart(metrics.PathSupervisor, delay.Seconds())
		time.Sleep(delay)

		s.mu.RLock()
		_, stillTracked := s.entries[entry.sessionID]
		s.mu.RUnlock()
		if !stillTracked {
			return
		}

		respawned, err := s.spawn(entry.spec, entry.args, entry.manifestPaths)
		if err != nil {
			logger.Error().Err(err).Str(log.FieldSessionID, entry.sessionID).Msg("encoder restart failed to spawn")
			continue
		}
		respawned.restarts = entry.restarts + 1

		s.mu.Lock()
		s.entries[entry.sessionID] = respawned
		s.mu.Unlock()

		if s.observer != nil {
			s.observer.OnRestartSucceeded(entry.sessionID, respawned.cmd.Process.Pid)
		}

		entry = respawned
	}
}

// backoffDelay returns 5*2^k seconds, capped at k=4 (delays 5, 10, 20, 40, 80).
func backoffDelay(k int) time.Duration {
	if k > 4 {
		k = 4
	}
	seconds := 5 << uint(k)
	return time.Duration(seconds) * time.Second
}

func lastOrEmpty(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

// Stop terminates the session's encoder process and removes its registry
// entry. Stopping an unknown id is idempotent and returns nil.
func (s *Supervisor) Stop(ctx context.Context, sessionID string, scope StopScope) error {
	s.mu.Lock()
	entry, ok := s.entries[sessionID]
	if ok {
		delete(s.entries, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	entry.mu.Lock()
	entry.intentStop = true
	pid := 0
	if entry.cmd.Process != nil {
		pid = entry.cmd.Process.Pid
	}
	stdin := entry.stdin
	exited := entry.exited
	entry.mu.Unlock()

	if scope == StopGraceful && stdin != nil {
		_, _ = io.WriteString(stdin, "q\n")
		select {
		case <-exited:
			s.cleanup(entry)
			return nil
		case <-time.After(gracefulQuitWait):
		}
	}

	if err := procgroup.KillGroup(pid, terminateWait, killWait); err != nil {
		log.WithComponent("encoder-supervisor").Error().Err(err).Str(log.FieldSessionID, sessionID).
			Msg("failed to kill encoder process group")
		s.cleanup(entry)
		return fmt.Errorf("%w: %v", model.ErrStopTimeout, err)
	}

	s.cleanup(entry)
	return nil
}

func (s *Supervisor) cleanup(entry *registryEntry) {
	for _, m := range entry.manifestPaths {
		_ = concatplan.Remove(m)
	}
	if entry.logFile != nil {
		_ = entry.logFile.Close()
	}
}

func (s *Supervisor) remove(sessionID string) {
	s.mu.Lock()
	entry, ok := s.entries[sessionID]
	if ok {
		delete(s.entries, sessionID)
	}
	s.mu.Unlock()
	if ok {
		s.cleanup(entry)
	}
}

// Status reports the live state of a tracked session, or ok=false if the
// supervisor has no registry entry for it.
func (s *Supervisor) Status(sessionID string) (StatusInfo, bool) {
	s.mu.RLock()
	entry, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok {
		return StatusInfo{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	pid := 0
	if entry.cmd.Process != nil {
		pid = entry.cmd.Process.Pid
	}
	return StatusInfo{
		PID:           pid,
		Running:       entry.running,
		ExitCode:      entry.exitCode,
		StartedAt:     entry.startedAt,
		UptimeSeconds: time.Since(entry.startedAt).Seconds(),
		RestartCount:  entry.restarts,
		MaxRetries:    MaxRestarts,
	}, true
}

// TailLog returns the last n lines captured for sessionID, or nil if the
// session isn't tracked.
func (s *Supervisor) TailLog(sessionID string, n int) []string {
	s.mu.RLock()
	entry, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return entry.logRing.LastN(n)
}

// Reap scans the registry for entries whose process has already exited and
// removes them, returning the reaped session ids. It never touches a
// caller's global lock — only the supervisor's own.
func (s *Supervisor) Reap() []string {
	s.mu.RLock()
	var dead []string
	for id, entry := range s.entries {
		entry.mu.Lock()
		running := entry.running
		entry.mu.Unlock()
		if !running {
			dead = append(dead, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range dead {
		s.remove(id)
	}
	return dead
}

// IsTracked reports whether the registry currently has an entry for sessionID.
func (s *Supervisor) IsTracked(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[sessionID]
	return ok
}
