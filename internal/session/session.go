// Package session owns the build session state machine and the Manager
// that orchestrates toolchain invocations, output monitoring, resource
// sampling and the analytics components around them.
package session

import (
	"fmt"
	"sync"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/buildoutput"
	"git.home.luguber.info/inful/buildmon/internal/changes"
	"git.home.luguber.info/inful/buildmon/internal/deps"
	"git.home.luguber.info/inful/buildmon/internal/gitinfo"
	"git.home.luguber.info/inful/buildmon/internal/runner"
	"git.home.luguber.info/inful/buildmon/internal/sampler"
)

// Status is a build session lifecycle state.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusCmakeRunning Status = "cmake_running"
	StatusRunning      Status = "running"
	StatusBackground   Status = "background"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusTerminated   Status = "terminated"
	StatusConflict     Status = "conflict"
)

// Terminal reports whether the state admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTerminated, StatusConflict:
		return true
	}
	return false
}

const outputBufferSize = 1000

// ringBuffer keeps the most recent lines of build output plus a running
// total of everything ever appended.
type ringBuffer struct {
	max   int
	lines []string
	total int
}

func newRingBuffer(max int) *ringBuffer {
	return &ringBuffer{max: max}
}

func (r *ringBuffer) append(line string) {
	r.lines = append(r.lines, line)
	if len(r.lines) > r.max {
		r.lines = r.lines[len(r.lines)-r.max:]
	}
	r.total++
}

func (r *ringBuffer) tail(n int) []string {
	if n <= 0 || len(r.lines) == 0 {
		return nil
	}
	if n > len(r.lines) {
		n = len(r.lines)
	}
	out := make([]string, n)
	copy(out, r.lines[len(r.lines)-n:])
	return out
}

func (r *ringBuffer) all() []string {
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Session is one build's lifecycle record. Fields are written by the
// monitor goroutine bound to the session and read by concurrent status
// queries; every access goes through the mutex.
type Session struct {
	mu sync.RWMutex

	buildID    string
	targets    []string
	status     Status
	startTime  time.Time
	endTime    time.Time
	returnCode int
	errorText  string
	reason     string
	background bool

	predicted    time.Duration
	hasPredicted bool

	output *ringBuffer

	handle  *runner.Handle
	sampler *sampler.Sampler

	git            *gitinfo.Snapshot
	changeSet      *changes.ChangeSet
	recommendation string
	impact         string
	depEvents      []deps.ChangeEvent

	statusFilePath string

	parsed *buildoutput.Result

	resourceSummary sampler.Summary
	hasResources    bool

	terminateAsked bool
	forcedKill     bool

	finishOnce sync.Once
	done       chan struct{}
}

func newSession(buildID string, targets []string, now time.Time) *Session {
	return &Session{
		buildID:    buildID,
		targets:    append([]string(nil), targets...),
		status:     StatusInitializing,
		startTime:  now,
		returnCode: -1,
		output:     newRingBuffer(outputBufferSize),
		done:       make(chan struct{}),
	}
}

func (s *Session) BuildID() string {
	return s.buildID
}

func (s *Session) Targets() []string {
	return append([]string(nil), s.targets...)
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) StartTime() time.Time {
	return s.startTime
}

// setStatus applies a transition. Terminal states are sticky; a session
// that has finished never regresses to a live state.
func (s *Session) setStatus(next Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.status = next
}

func (s *Session) Background() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.background
}

func (s *Session) appendLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output.append(line)
}

// Output returns the last n captured lines and the total line count.
func (s *Session) Output(n int) ([]string, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.output.tail(n), s.output.total
}

func (s *Session) allOutput() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.output.all()
}

// Elapsed is the session's wall-clock duration so far, frozen at the
// end time once the session is terminal.
func (s *Session) Elapsed(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.endTime.IsZero() {
		return s.endTime.Sub(s.startTime)
	}
	return now.Sub(s.startTime)
}

// Progress scans recent output backwards for a bracketed percentage.
func (s *Session) Progress() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines := s.output.lines
	for i := len(lines) - 1; i >= 0; i-- {
		if pct, ok := buildoutput.ParseProgress(lines[i]); ok {
			return pct, true
		}
	}
	return 0, false
}

// ETA computes the predicted completion time. With a parsed progress
// percentage the remaining fraction of the predicted duration is added
// to now; without one the prediction is anchored at the start time.
func (s *Session) ETA(now time.Time) (time.Time, bool) {
	s.mu.RLock()
	predicted := s.predicted
	hasPredicted := s.hasPredicted
	start := s.startTime
	s.mu.RUnlock()

	if !hasPredicted {
		return time.Time{}, false
	}
	if pct, ok := s.Progress(); ok && pct > 0 {
		remaining := time.Duration(float64(predicted) * float64(100-pct) / 100)
		return now.Add(remaining), true
	}
	return start.Add(predicted), true
}

// ETAString renders the prediction as "<seconds>s@<HH:MM>".
func (s *Session) ETAString(now time.Time) string {
	eta, ok := s.ETA(now)
	if !ok {
		return ""
	}
	s.mu.RLock()
	predicted := s.predicted
	s.mu.RUnlock()
	return fmt.Sprintf("%ds@%s", int(predicted.Seconds()), eta.Format("15:04"))
}

func (s *Session) PID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.handle == nil {
		return 0
	}
	return s.handle.PID()
}

func (s *Session) requestTerminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminateAsked = true
}

func (s *Session) terminateRequested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terminateAsked
}

// finish moves the session into a terminal state and freezes its clock.
func (s *Session) finish(status Status, returnCode int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.status = status
	s.returnCode = returnCode
	s.endTime = now
}

// Done is closed once the session has been finalized.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Snapshot is the persisted cross-restart form of a session.
type Snapshot struct {
	BuildID          string    `json:"build_id"`
	Targets          []string  `json:"targets,omitempty"`
	Status           Status    `json:"status"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time,omitempty"`
	ReturnCode       int       `json:"return_code"`
	Background       bool      `json:"background,omitempty"`
	PredictedSeconds float64   `json:"predicted_seconds,omitempty"`
	Commit           string    `json:"commit,omitempty"`
	Reason           string    `json:"reason,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		BuildID:    s.buildID,
		Targets:    append([]string(nil), s.targets...),
		Status:     s.status,
		StartTime:  s.startTime,
		EndTime:    s.endTime,
		ReturnCode: s.returnCode,
		Background: s.background,
		Reason:     s.reason,
	}
	if s.hasPredicted {
		snap.PredictedSeconds = s.predicted.Seconds()
	}
	if s.git != nil {
		snap.Commit = s.git.ShortCommit()
	}
	return snap
}

// restoredSession rebuilds an inert session from a persisted snapshot.
// Sessions that were live when the process died are marked failed.
func restoredSession(snap Snapshot) *Session {
	s := newSession(snap.BuildID, snap.Targets, snap.StartTime)
	s.endTime = snap.EndTime
	s.returnCode = snap.ReturnCode
	s.background = snap.Background
	s.reason = snap.Reason
	if snap.PredictedSeconds > 0 {
		s.predicted = time.Duration(snap.PredictedSeconds * float64(time.Second))
		s.hasPredicted = true
	}
	if snap.Status.Terminal() {
		s.status = snap.Status
	} else {
		s.status = StatusFailed
		s.errorText = "session interrupted by process restart"
		if s.endTime.IsZero() {
			s.endTime = snap.StartTime
		}
	}
	close(s.done)
	return s
}
