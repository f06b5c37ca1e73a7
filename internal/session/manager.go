package session

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/buildmon/internal/buildoutput"
	"git.home.luguber.info/inful/buildmon/internal/changes"
	"git.home.luguber.info/inful/buildmon/internal/deps"
	bmerrors "git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/eventstore"
	"git.home.luguber.info/inful/buildmon/internal/fixes"
	"git.home.luguber.info/inful/buildmon/internal/gitinfo"
	"git.home.luguber.info/inful/buildmon/internal/health"
	"git.home.luguber.info/inful/buildmon/internal/history"
	"git.home.luguber.info/inful/buildmon/internal/metrics"
	"git.home.luguber.info/inful/buildmon/internal/notify"
	"git.home.luguber.info/inful/buildmon/internal/observability"
	"git.home.luguber.info/inful/buildmon/internal/runner"
	"git.home.luguber.info/inful/buildmon/internal/sampler"
	"git.home.luguber.info/inful/buildmon/internal/state"
	"git.home.luguber.info/inful/buildmon/internal/targetkey"
)

const (
	defaultConfigureTimeout = 300 * time.Second
	defaultTerminateGrace   = time.Second
	maxOutputQueryLines     = 100
)

// Options configures the Manager's invocation environment.
type Options struct {
	ProjectRoot      string
	BuildDir         string
	Jobs             int
	ConfigureTimeout time.Duration
	TerminateGrace   time.Duration

	// MakeCommand and ConfigureCommand override the toolchain binaries,
	// used by tests to substitute scripted stand-ins.
	MakeCommand      string
	ConfigureCommand string

	// DetectConflicts overrides the /proc scan, used by tests.
	DetectConflicts func() *ConflictReport
}

// Deps are the collaborators the Manager feeds on every lifecycle
// event. Nil optional fields degrade to no-ops.
type Deps struct {
	Predictor  *history.Predictor
	Changes    *changes.Tracker
	DepTracker *deps.Tracker
	Health     *health.Scorer
	Advisor    *fixes.Advisor

	Events    eventstore.Store
	Recorder  metrics.Recorder
	Publisher notify.Publisher
	Snapshots *state.JSONStore

	NewSampler func() *sampler.Sampler
	Logger     *slog.Logger
}

// Manager is the orchestrator: it owns every live session, spawns the
// toolchain, runs one monitor goroutine per session and routes outcomes
// into the analytics components.
type Manager struct {
	opts   Options
	deps   Deps
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	active   int
}

// NewManager constructs an orchestrator, restoring persisted session
// snapshots from a previous run when a snapshot store is provided.
func NewManager(opts Options, d Deps) *Manager {
	if opts.ConfigureTimeout <= 0 {
		opts.ConfigureTimeout = defaultConfigureTimeout
	}
	if opts.TerminateGrace <= 0 {
		opts.TerminateGrace = defaultTerminateGrace
	}
	if opts.MakeCommand == "" {
		opts.MakeCommand = "make"
	}
	if opts.ConfigureCommand == "" {
		opts.ConfigureCommand = "cmake"
	}
	if opts.DetectConflicts == nil {
		opts.DetectConflicts = DetectConflicts
	}
	if d.Recorder == nil {
		d.Recorder = metrics.NoopRecorder{}
	}
	if d.Publisher == nil {
		d.Publisher = notify.NoopPublisher{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.NewSampler == nil {
		d.NewSampler = func() *sampler.Sampler {
			s, err := sampler.New()
			if err != nil {
				d.Logger.Warn("Resource sampler unavailable", "error", err)
				return nil
			}
			return s
		}
	}

	m := &Manager{
		opts:     opts,
		deps:     d,
		logger:   d.Logger,
		sessions: make(map[string]*Session),
	}
	m.restoreSnapshots()
	return m
}

func (m *Manager) restoreSnapshots() {
	if m.deps.Snapshots == nil {
		return
	}
	var doc map[string]Snapshot
	if err := m.deps.Snapshots.Load(&doc); err != nil {
		m.logger.Warn("Failed to load session snapshots", "error", err)
		return
	}
	for id, snap := range doc {
		m.sessions[id] = restoredSession(snap)
	}
}

// StartRequest describes one build invocation.
type StartRequest struct {
	Targets []string
	Jobs    int

	// Background forces the mode when set; nil selects automatically
	// based on the target shape.
	Background *bool

	RunConfigure  bool
	ConfigureOnly bool
	Force         bool
}

// Report is the merged structured result of start and status queries.
type Report struct {
	BuildID        string       `json:"build_id"`
	Status         Status       `json:"status"`
	Targets        []string     `json:"targets,omitempty"`
	PID            int          `json:"pid,omitempty"`
	Background     bool         `json:"background,omitempty"`
	ReturnCode     *int         `json:"return_code,omitempty"`
	ElapsedSeconds float64      `json:"elapsed_seconds"`
	ETA            string       `json:"eta,omitempty"`
	Progress       string       `json:"progress,omitempty"`
	Message        string       `json:"message,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	Commit         string       `json:"commit,omitempty"`
	StatusFilePath string       `json:"status_file,omitempty"`

	Recommendation    string             `json:"recommendation,omitempty"`
	ChangeImpact      string             `json:"change_impact,omitempty"`
	ChangedFiles      int                `json:"changed_files,omitempty"`
	DependencyChanges []deps.ChangeEvent `json:"dependency_changes,omitempty"`

	Resources *sampler.Summary `json:"resources,omitempty"`

	ErrorCount     int                      `json:"error_count,omitempty"`
	WarningCount   int                      `json:"warning_count,omitempty"`
	Errors         []buildoutput.Diagnostic `json:"errors,omitempty"`
	Warnings       []buildoutput.Diagnostic `json:"warnings,omitempty"`
	FixSuggestions []fixes.Suggestion       `json:"fix_suggestions,omitempty"`

	RecentOutput     []string        `json:"recent_output,omitempty"`
	Conflicts        *ConflictReport `json:"conflicts,omitempty"`
	BackgroundStatus *StatusFile     `json:"background_status,omitempty"`
}

var targetNamePattern = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

func validateTargets(targets []string) error {
	for _, t := range targets {
		if t == "" || !targetNamePattern.MatchString(t) {
			return bmerrors.ValidationError(fmt.Sprintf("invalid target name: %q", t))
		}
		if strings.Contains(t, "..") {
			return bmerrors.ValidationError(fmt.Sprintf("invalid target name: %q", t))
		}
	}
	return nil
}

// backgroundMode decides whether a build detaches. Full builds and
// multi-package builds are long enough that blocking the caller is not
// useful.
func backgroundMode(req StartRequest) bool {
	if req.Background != nil {
		return *req.Background
	}
	if len(req.Targets) == 0 {
		return true
	}
	packageTargets := 0
	for _, t := range req.Targets {
		if t == "all" || t == "install" {
			return true
		}
		if strings.HasPrefix(t, "package_") {
			packageTargets++
		}
	}
	return packageTargets > 1
}

func (m *Manager) makeArgs(req StartRequest) []string {
	jobs := req.Jobs
	if jobs <= 0 {
		jobs = m.opts.Jobs
	}
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	if jobs <= 0 {
		jobs = 4
	}
	args := []string{fmt.Sprintf("-j%d", jobs)}
	return append(args, req.Targets...)
}

// Start validates, analyzes and launches one build. For background
// sessions it returns as soon as the process is spawned; foreground
// sessions block until the build finishes.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Report, error) {
	if err := validateTargets(req.Targets); err != nil {
		return nil, err
	}

	buildID := uuid.NewString()[:8]
	ctx = observability.WithSessionID(ctx, buildID)
	ctx = observability.WithTargetKey(ctx, targetkey.Joined(req.Targets))

	s := newSession(buildID, req.Targets, time.Now())
	if m.deps.Predictor != nil {
		s.predicted, s.hasPredicted = m.deps.Predictor.Predict(req.Targets)
	}
	if m.deps.Changes != nil {
		s.changeSet = m.deps.Changes.DetectChanges(req.Targets)
		s.recommendation = changes.Recommend(s.changeSet)
		s.impact = changes.Impact(s.changeSet)
	}
	if m.deps.DepTracker != nil {
		s.depEvents = m.deps.DepTracker.DetectChanges()
	}
	s.git = gitinfo.Capture(m.opts.ProjectRoot)
	s.background = backgroundMode(req)

	m.register(s)

	if !req.Force {
		if conflicts := m.opts.DetectConflicts(); conflicts.Status == ConflictDetected {
			s.finish(StatusConflict, 2, time.Now())
			close(s.done)
			m.persist()
			m.deps.Recorder.IncBuildOutcome(metrics.OutcomeConflict)
			observability.WarnContext(ctx, "Build refused, conflicting processes running",
				slog.Int("conflicts", len(conflicts.Conflicts)))
			rep := m.buildReport(s)
			rep.Conflicts = conflicts
			rep.Message = conflicts.Message
			return rep, nil
		}
	}

	if smp := m.deps.NewSampler(); smp != nil {
		smp.Start()
		s.mu.Lock()
		s.sampler = smp
		s.mu.Unlock()
	}

	m.setActive(+1)
	m.recordStarted(ctx, s)
	m.persist()

	if req.RunConfigure || req.ConfigureOnly {
		if rep, done := m.runConfigure(ctx, s, req.ConfigureOnly); done {
			return rep, nil
		}
	}

	// Background processes must outlive the call that started them.
	runCtx := ctx
	if s.background {
		runCtx = context.WithoutCancel(ctx)
	}

	handle, err := runner.Start(runCtx, m.opts.BuildDir, m.opts.MakeCommand, m.makeArgs(req)...)
	if err != nil {
		s.mu.Lock()
		s.errorText = err.Error()
		s.mu.Unlock()
		m.finalize(ctx, s, -1)
		return m.buildReport(s), nil
	}

	s.mu.Lock()
	s.handle = handle
	if s.background {
		s.statusFilePath = statusFilePath(handle.PID(), time.Now())
	}
	s.mu.Unlock()

	if s.background {
		s.setStatus(StatusBackground)
		if err := writeStatusFile(s.statusFilePath, StatusFile{
			Status: "building",
			PID:    handle.PID(),
		}); err != nil {
			m.logger.Warn("Failed to write status file", "error", err)
		}
	} else {
		s.setStatus(StatusRunning)
	}
	m.persist()

	go m.monitor(ctx, s)

	if !s.background {
		<-s.done
	}
	return m.buildReport(s), nil
}

// runConfigure executes the configuration step under its hard timeout.
// Returns done=true when the session is finished (failure, or
// configure-only mode succeeded) and the build step must not run.
func (m *Manager) runConfigure(ctx context.Context, s *Session, configureOnly bool) (*Report, bool) {
	s.setStatus(StatusCmakeRunning)
	m.persist()

	stepStart := time.Now()
	result := runner.RunStep(ctx, m.opts.BuildDir, m.opts.ConfigureTimeout,
		m.opts.ConfigureCommand, "..", "--log-level=STATUS", "--no-warn-unused-cli")
	m.deps.Recorder.ObserveStepDuration("configure", time.Since(stepStart))

	succeeded := result.Status == "success"
	for _, line := range buildoutput.FilterConfigureOutput(result.Output, succeeded) {
		s.appendLine(line)
	}

	if m.deps.Events != nil {
		if e, err := eventstore.NewConfigureFinished(s.buildID, s.Targets(), result.Status, result.ReturnCode, result.Duration); err == nil {
			if err := eventstore.AppendEvent(ctx, m.deps.Events, e); err != nil {
				m.logger.Warn("Failed to append configure event", "error", err)
			}
		}
	}

	if !succeeded {
		s.mu.Lock()
		s.reason = "cmake_failed"
		if result.Err != nil {
			s.errorText = result.Err.Error()
		}
		s.mu.Unlock()
		m.finalize(ctx, s, result.ReturnCode)
		return m.buildReport(s), true
	}

	if configureOnly {
		s.mu.Lock()
		s.reason = "cmake_complete"
		s.mu.Unlock()
		m.finalize(ctx, s, 0)
		return m.buildReport(s), true
	}
	return nil, false
}

// monitor consumes the child's merged output until EOF, then finalizes
// the session. It is the only writer of the session's output buffer.
func (m *Manager) monitor(ctx context.Context, s *Session) {
	s.mu.RLock()
	handle := s.handle
	statusPath := s.statusFilePath
	s.mu.RUnlock()

	scanner := bufio.NewScanner(handle.Output())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		s.appendLine(line)

		if buildoutput.Important(line) {
			observability.DebugContext(ctx, "Build output", slog.String("line", line))
		}
		if s.Background() && statusPath != "" {
			if pct, ok := buildoutput.ParseProgress(line); ok {
				if err := writeStatusFile(statusPath, StatusFile{
					Progress: fmt.Sprintf("[%d%%]", pct),
					Status:   "building",
					PID:      s.PID(),
				}); err != nil {
					m.logger.Debug("Failed to update status file", "error", err)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		s.mu.Lock()
		if s.errorText == "" {
			s.errorText = "output stream error: " + err.Error()
		}
		s.mu.Unlock()
	}

	code, waitErr := handle.Wait()
	if waitErr != nil {
		s.mu.Lock()
		if s.errorText == "" {
			s.errorText = waitErr.Error()
		}
		s.mu.Unlock()
		code = -1
	}
	m.finalize(ctx, s, code)
}

// finalize moves the session to its terminal state exactly once: stops
// the sampler, parses the captured output, records the outcome into
// every analytics component and emits events, metrics and
// notifications.
func (m *Manager) finalize(ctx context.Context, s *Session, code int) {
	s.finishOnce.Do(func() {
		now := time.Now()
		terminated := s.terminateRequested()
		success := !terminated && code == 0 && s.errorMessage() == ""

		var status Status
		switch {
		case terminated:
			status = StatusTerminated
		case success:
			status = StatusCompleted
		default:
			status = StatusFailed
		}
		s.finish(status, code, now)
		duration := s.Elapsed(now)

		resourceText := ""
		if s.sampler != nil {
			if sum, ok := s.sampler.Stop(); ok {
				resourceText = sum.Res
				if s.sampler.IsSignificant(duration) {
					s.mu.Lock()
					s.resourceSummary = sum
					s.hasResources = true
					s.mu.Unlock()
				}
			}
		}

		parsed := buildoutput.Parse(strings.Join(s.allOutput(), "\n"))
		s.mu.Lock()
		s.parsed = &parsed
		s.mu.Unlock()

		// Configure-only outcomes carry no build duration; feeding them
		// into the duration and health history would poison it.
		s.mu.RLock()
		configureStep := s.reason == "cmake_complete" || s.reason == "cmake_failed"
		s.mu.RUnlock()

		targets := s.Targets()
		if !terminated && !configureStep {
			if success {
				if m.deps.Predictor != nil {
					m.deps.Predictor.Record(targets, duration)
				}
				if m.deps.Changes != nil {
					m.deps.Changes.RecordSuccess(targets)
				}
			}
			if m.deps.Health != nil {
				m.deps.Health.Record(targets, success, duration, s.predicted, parsed.WarningCount, resourceText)
				if score, ok := m.deps.Health.Score(targets); ok {
					m.deps.Recorder.SetHealthScore(targetkey.Joined(targets), score)
				}
			}
			if s.hasPredicted {
				m.deps.Recorder.ObservePredictionError(math.Abs(duration.Seconds() - s.predicted.Seconds()))
			}
		}

		m.deps.Recorder.ObserveBuildDuration(duration)
		m.deps.Recorder.IncBuildOutcome(outcomeLabel(status))
		m.setActive(-1)

		m.recordFinished(ctx, s, status, code, duration, &parsed, resourceText)

		if s.Background() && s.statusFilePath != "" {
			lines, _ := s.Output(statusFileOutputLines)
			if err := writeStatusFile(s.statusFilePath, StatusFile{
				Status:     finalFileStatus(status),
				ReturnCode: &code,
				PID:        s.PID(),
				Output:     lines,
			}); err != nil {
				m.logger.Debug("Failed to write final status file", "error", err)
			}
		}

		m.persist()
		observability.InfoContext(ctx, "Build session finished",
			slog.String("status", string(status)),
			slog.Int("return_code", code),
			slog.Float64("duration_seconds", duration.Seconds()))
		close(s.done)
	})
}

func (s *Session) errorMessage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errorText
}

func outcomeLabel(status Status) metrics.OutcomeLabel {
	switch status {
	case StatusCompleted:
		return metrics.OutcomeSuccess
	case StatusTerminated:
		return metrics.OutcomeTerminated
	case StatusConflict:
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeFailed
	}
}

func finalFileStatus(status Status) string {
	if status == StatusCompleted {
		return "completed"
	}
	return "failed"
}

func (m *Manager) recordStarted(ctx context.Context, s *Session) {
	commit := ""
	if s.git != nil {
		commit = s.git.ShortCommit()
	}
	if m.deps.Events != nil {
		predictedSeconds := 0.0
		if s.hasPredicted {
			predictedSeconds = s.predicted.Seconds()
		}
		if e, err := eventstore.NewSessionStarted(s.buildID, s.Targets(), predictedSeconds,
			commit, s.recommendation, s.impact); err == nil {
			if err := eventstore.AppendEvent(ctx, m.deps.Events, e); err != nil {
				m.logger.Warn("Failed to append start event", "error", err)
			}
		}
	}
	if err := m.deps.Publisher.PublishSessionEvent(&notify.SessionEvent{
		BuildID: s.buildID,
		Status:  "started",
		Targets: s.Targets(),
	}); err != nil {
		m.logger.Warn("Failed to publish start notification", "error", err)
	}
}

func (m *Manager) recordFinished(ctx context.Context, s *Session, status Status, code int,
	duration time.Duration, parsed *buildoutput.Result, resourceText string) {
	if m.deps.Events != nil {
		if status == StatusTerminated {
			s.mu.RLock()
			forced := s.forcedKill
			s.mu.RUnlock()
			if e, err := eventstore.NewSessionTerminated(s.buildID, s.Targets(), forced); err == nil {
				if err := eventstore.AppendEvent(ctx, m.deps.Events, e); err != nil {
					m.logger.Warn("Failed to append terminate event", "error", err)
				}
			}
		} else {
			if e, err := eventstore.NewBuildFinished(s.buildID, s.Targets(), string(status), code, duration,
				parsed.WarningCount, parsed.ErrorCount, resourceText); err == nil {
				if err := eventstore.AppendEvent(ctx, m.deps.Events, e); err != nil {
					m.logger.Warn("Failed to append finish event", "error", err)
				}
			}
		}
	}
	if err := m.deps.Publisher.PublishSessionEvent(&notify.SessionEvent{
		BuildID:         s.buildID,
		Status:          string(status),
		Targets:         s.Targets(),
		DurationSeconds: duration.Seconds(),
		WarningCount:    parsed.WarningCount,
		ErrorCount:      parsed.ErrorCount,
	}); err != nil {
		m.logger.Warn("Failed to publish finish notification", "error", err)
	}
}

func (m *Manager) register(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.buildID] = s
}

func (m *Manager) get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

func (m *Manager) setActive(delta int) {
	m.mu.Lock()
	m.active += delta
	if m.active < 0 {
		m.active = 0
	}
	n := m.active
	m.mu.Unlock()
	m.deps.Recorder.SetActiveSessions(n)
}

func (m *Manager) persist() {
	if m.deps.Snapshots == nil {
		return
	}
	m.mu.RLock()
	doc := make(map[string]Snapshot, len(m.sessions))
	for id, s := range m.sessions {
		doc[id] = s.Snapshot()
	}
	m.mu.RUnlock()

	// State persistence failures never abort a build.
	if err := m.deps.Snapshots.Save(doc); err != nil {
		m.logger.Warn("Failed to persist session snapshots", "error", err)
	}
}

// Status returns the live report for one session.
func (m *Manager) Status(id string) (*Report, error) {
	s := m.get(id)
	if s == nil {
		return nil, bmerrors.NotFound(fmt.Sprintf("unknown session: %s", id))
	}

	rep := m.buildReport(s)
	rep.RecentOutput, _ = s.Output(10)

	if !s.Status().Terminal() {
		now := time.Now()
		rep.ETA = s.ETAString(now)
		if pct, ok := s.Progress(); ok {
			rep.Progress = fmt.Sprintf("%d%%", pct)
		}
		if pid := s.PID(); pid > 0 {
			rep.PID = pid
		}
		// Resource snapshots are reported only when the machine is
		// actually working: above 30% CPU or 300MB of memory in use.
		s.mu.RLock()
		smp := s.sampler
		s.mu.RUnlock()
		if smp != nil {
			if cpu, memMB, ok := smp.LastSample(); ok && (cpu > 30 || memMB > 300) {
				if snap, ok := smp.Snapshot(); ok {
					rep.Resources = &snap
				}
			}
		}
	}
	s.mu.RLock()
	statusPath := s.statusFilePath
	s.mu.RUnlock()
	if statusPath != "" {
		if sf, err := ReadStatusFile(statusPath); err == nil && sf != nil {
			rep.BackgroundStatus = sf
		}
	}
	return rep, nil
}

// List returns a report for every known session, live and finished.
func (m *Manager) List() []*Report {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	reports := make([]*Report, 0, len(sessions))
	for _, s := range sessions {
		reports = append(reports, m.buildReport(s))
	}
	return reports
}

// Output returns the last n captured lines (capped at 100) and the
// total line count for a session.
func (m *Manager) Output(id string, n int) ([]string, int, error) {
	s := m.get(id)
	if s == nil {
		return nil, 0, bmerrors.NotFound(fmt.Sprintf("unknown session: %s", id))
	}
	if n <= 0 {
		n = 50
	}
	if n > maxOutputQueryLines {
		n = maxOutputQueryLines
	}
	lines, total := s.Output(n)
	return lines, total, nil
}

// Terminate stops a session's process, waiting through the grace window
// before force-killing. Calling it on an already terminal session is a
// no-op returning the terminal status.
func (m *Manager) Terminate(ctx context.Context, id string) (Status, error) {
	s := m.get(id)
	if s == nil {
		return "", bmerrors.NotFound(fmt.Sprintf("unknown session: %s", id))
	}
	if s.Status().Terminal() {
		return s.Status(), nil
	}

	s.requestTerminate()

	s.mu.RLock()
	handle := s.handle
	s.mu.RUnlock()

	if handle != nil {
		forced := handle.Terminate(m.opts.TerminateGrace)
		s.mu.Lock()
		s.forcedKill = forced
		s.mu.Unlock()

		// Orphaned descendants can keep the output pipe open past the
		// kill, stalling the monitor's finalize. Close the session out
		// here rather than reporting a live status.
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
			m.logger.Warn("Output stream still open after kill, finalizing directly", "build_id", id)
			m.finalize(ctx, s, -1)
		}
	} else {
		// No process was ever spawned; close the session out directly.
		m.finalize(ctx, s, -1)
	}
	return s.Status(), nil
}

// buildReport assembles the merged session report: lifecycle state plus
// whatever analytics produced meaningful data.
func (m *Manager) buildReport(s *Session) *Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rep := &Report{
		BuildID:        s.buildID,
		Status:         s.status,
		Targets:        append([]string(nil), s.targets...),
		Background:     s.background,
		Reason:         s.reason,
		StatusFilePath: s.statusFilePath,
	}
	if s.errorText != "" && rep.Message == "" {
		rep.Message = s.errorText
	}
	if s.git != nil {
		rep.Commit = s.git.ShortCommit()
	}

	now := time.Now()
	if !s.endTime.IsZero() {
		rep.ElapsedSeconds = s.endTime.Sub(s.startTime).Seconds()
		code := s.returnCode
		rep.ReturnCode = &code
	} else {
		rep.ElapsedSeconds = now.Sub(s.startTime).Seconds()
	}

	if s.hasPredicted && !s.status.Terminal() {
		eta := s.startTime.Add(s.predicted)
		rep.ETA = fmt.Sprintf("%ds@%s", int(s.predicted.Seconds()), eta.Format("15:04"))
	}

	if s.impact != "" && s.impact != changes.ImpactNone {
		rep.Recommendation = s.recommendation
		rep.ChangeImpact = s.impact
		if s.changeSet != nil {
			rep.ChangedFiles = s.changeSet.TotalChanges
		}
	}
	if len(s.depEvents) > 0 {
		rep.DependencyChanges = append([]deps.ChangeEvent(nil), s.depEvents...)
	}
	if s.hasResources {
		summary := s.resourceSummary
		rep.Resources = &summary
	}

	if s.parsed != nil {
		rep.ErrorCount = s.parsed.ErrorCount
		rep.WarningCount = s.parsed.WarningCount
		rep.Errors = s.parsed.Errors
		rep.Warnings = s.parsed.Warnings
		if s.status == StatusFailed && m.deps.Advisor != nil && len(s.parsed.Errors) > 0 {
			rep.FixSuggestions = m.suggestFixes(s.parsed.Errors)
		}
	}
	if s.background && s.handle != nil && !s.status.Terminal() {
		rep.PID = s.handle.PID()
	}
	return rep
}

// suggestFixes feeds the parsed errors through the advisor catalog.
func (m *Manager) suggestFixes(diagnostics []buildoutput.Diagnostic) []fixes.Suggestion {
	var text strings.Builder
	for _, d := range diagnostics {
		text.WriteString(d.Message)
		text.WriteString("\n")
	}
	first := diagnostics[0]
	return m.deps.Advisor.Suggest(text.String(), first.File, first.Category)
}
