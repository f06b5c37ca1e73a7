package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/buildmon/internal/changes"
	"git.home.luguber.info/inful/buildmon/internal/config"
	"git.home.luguber.info/inful/buildmon/internal/daemon"
	bmerrors "git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/fixes"
	"git.home.luguber.info/inful/buildmon/internal/session"
	"git.home.luguber.info/inful/buildmon/internal/targetkey"
	"git.home.luguber.info/inful/buildmon/internal/version"
)

const defaultConfigPath = "buildmon.yaml"

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"buildmon.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Targets       []string `arg:"" optional:"" help:"Make targets to build"`
		Jobs          int      `short:"j" help:"Parallel jobs (default: CPU count)"`
		Background    bool     `help:"Force background mode"`
		Foreground    bool     `help:"Force foreground mode"`
		Configure     bool     `help:"Run the configure step before building"`
		ConfigureOnly bool     `help:"Run the configure step only, skip the build"`
		Force         bool     `help:"Start even when conflicting build processes are detected"`
	} `cmd:"" help:"Start a build session"`

	Status struct {
		BuildID string `arg:"" optional:"" help:"Session build ID; lists all sessions when omitted"`
	} `cmd:"" help:"Show session status, or list all sessions"`

	Output struct {
		BuildID string `arg:"" help:"Session build ID"`
		Lines   int    `short:"n" default:"50" help:"Number of trailing lines to show"`
		Save    string `help:"Export the full output to this path instead of printing"`
	} `cmd:"" help:"Show or export captured build output"`

	Terminate struct {
		BuildID string `arg:"" help:"Session build ID"`
	} `cmd:"" help:"Terminate a running build session"`

	History struct {
		Targets []string `arg:"" optional:"" help:"Make targets"`
		Events  bool     `help:"List recent sessions from the build event log"`
	} `cmd:"" help:"Show build duration history and predictions"`

	Health struct {
		Targets []string `arg:"" optional:"" help:"Make targets"`
		Analyze bool     `help:"Show the full health analysis"`
	} `cmd:"" help:"Show the build health score"`

	Changes struct {
		Targets []string `arg:"" optional:"" help:"Make targets"`
	} `cmd:"" help:"Show pending source changes and the rebuild recommendation"`

	Deps struct {
		ForceScan bool `help:"Rescan dependency files ignoring the cache window"`
	} `cmd:"" help:"Show dependency file changes"`

	Fixes struct {
		Suggest struct {
			ErrorText string `arg:"" help:"Compiler or linker error text"`
			File      string `help:"Source file the error points at"`
			Category  string `help:"Error category hint"`
		} `cmd:"" help:"Suggest fixes for a build error"`

		Add struct {
			ID         string   `arg:"" help:"Pattern identifier"`
			Regex      []string `required:"" help:"Error-matching regular expressions"`
			Fix        string   `required:"" help:"Suggested fix text"`
			Commands   []string `required:"" help:"Commands that apply the fix"`
			Type       string   `default:"command" help:"Fix type"`
			Confidence int      `default:"70" help:"Base confidence (1-100)"`
		} `cmd:"" help:"Add a custom fix pattern to the catalog"`
	} `cmd:"" help:"Build error fix suggestions"`

	Clear struct {
		Store   string   `arg:"" enum:"history,changes,deps,health,fixes,all" help:"Store to reset"`
		Targets []string `arg:"" optional:"" help:"Limit the reset to these targets"`
	} `cmd:"" help:"Reset a persisted analytics store"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Write an example configuration file"`

	Daemon struct{} `cmd:"" help:"Run as a long-lived service with HTTP API and watcher"`

	Version struct{} `cmd:"" help:"Show version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	command := ctx.Command()
	if command == "version" {
		fmt.Printf("buildmon %s (commit %s, built %s)\n",
			version.Version, version.GitCommit, version.BuildTime)
		return
	}
	if command == "init" {
		setupLogging(nil)
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			fatal("Init failed", err)
		}
		slog.Info("Configuration file written", "path", CLI.Config)
		return
	}

	cfg, err := loadConfig(CLI.Config, CLI.Config == defaultConfigPath)
	if err != nil {
		setupLogging(nil)
		fatal("Failed to load configuration", err)
	}
	setupLogging(cfg)

	svc, err := newServices(cfg)
	if err != nil {
		fatal("Failed to initialize services", err)
	}
	defer svc.Close()

	switch strings.SplitN(command, " ", 2)[0] {
	case "build":
		err = runBuild(svc)
	case "status":
		err = runStatus(svc, CLI.Status.BuildID)
	case "output":
		err = runOutput(svc, CLI.Output.BuildID, CLI.Output.Lines, CLI.Output.Save)
	case "terminate":
		err = runTerminate(svc, CLI.Terminate.BuildID)
	case "history":
		err = runHistory(svc, CLI.History.Targets, CLI.History.Events)
	case "health":
		err = runHealth(svc, CLI.Health.Targets, CLI.Health.Analyze)
	case "changes":
		err = runChanges(svc, CLI.Changes.Targets)
	case "deps":
		err = runDeps(svc, CLI.Deps.ForceScan)
	case "fixes":
		err = runFixes(svc)
	case "clear":
		err = runClear(svc, CLI.Clear.Store, CLI.Clear.Targets)
	case "daemon":
		err = runDaemon(svc)
	default:
		err = fmt.Errorf("unknown command: %s", command)
	}
	if err != nil {
		fatal("Command failed", err)
	}
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	format := "text"
	if cfg != nil {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
		format = cfg.Logging.Format
	}
	if CLI.Verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func fatal(msg string, err error) {
	slog.Debug(msg, "error", err)
	bmerrors.NewCLIErrorAdapter(CLI.Verbose, slog.Default()).HandleError(err)
	os.Exit(1)
}

func runBuild(svc *services) error {
	req := session.StartRequest{
		Targets:       CLI.Build.Targets,
		Jobs:          CLI.Build.Jobs,
		RunConfigure:  CLI.Build.Configure || CLI.Build.ConfigureOnly,
		ConfigureOnly: CLI.Build.ConfigureOnly,
		Force:         CLI.Build.Force,
	}
	if CLI.Build.Background {
		background := true
		req.Background = &background
	} else if CLI.Build.Foreground {
		background := false
		req.Background = &background
	}

	report, err := svc.manager.Start(context.Background(), req)
	if err != nil {
		return err
	}
	printJSON(report)

	// A background session outlives the Start call; stay alive until it
	// finishes so the monitor goroutine can see the build through.
	for !report.Status.Terminal() {
		time.Sleep(2 * time.Second)
		report, err = svc.manager.Status(report.BuildID)
		if err != nil {
			return err
		}
	}
	if report.Status != session.StatusCompleted {
		printJSON(report)
		return fmt.Errorf("build %s finished with status %s", report.BuildID, report.Status)
	}
	return nil
}

func runStatus(svc *services, buildID string) error {
	if buildID == "" {
		printJSON(svc.manager.List())
		return nil
	}
	report, err := svc.manager.Status(buildID)
	if err == nil {
		printJSON(report)
		return nil
	}
	if !bmerrors.IsNotFound(err) || svc.projection == nil {
		return err
	}

	// Not known to this process; fall back to the durable event log.
	if rebuildErr := svc.projection.Rebuild(context.Background()); rebuildErr != nil {
		return rebuildErr
	}
	summary, ok := svc.projection.GetSession(buildID)
	if !ok {
		return err
	}
	printJSON(summary)
	return nil
}

func runOutput(svc *services, buildID string, lines int, save string) error {
	if save != "" {
		saved, err := svc.manager.SaveOutput(buildID, save)
		if err != nil {
			return err
		}
		fmt.Println(saved)
		return nil
	}
	output, total, err := svc.manager.Output(buildID, lines)
	if err != nil {
		return err
	}
	for _, line := range output {
		fmt.Println(line)
	}
	slog.Info("Output shown", "lines", len(output), "total_lines", total)
	return nil
}

func runTerminate(svc *services, buildID string) error {
	status, err := svc.manager.Terminate(context.Background(), buildID)
	if err != nil {
		return err
	}
	slog.Info("Session terminated", "build_id", buildID, "status", string(status))
	return nil
}

type eventRow struct {
	BuildID   string          `json:"build_id"`
	TargetKey string          `json:"target_key"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func runHistory(svc *services, targets []string, events bool) error {
	if events {
		if svc.events == nil || svc.projection == nil {
			return fmt.Errorf("the build event log is disabled in the configuration")
		}
		if len(targets) > 0 {
			evs, err := svc.events.GetByTargetKey(context.Background(), targetkey.Joined(targets))
			if err != nil {
				return err
			}
			rows := make([]eventRow, 0, len(evs))
			for _, e := range evs {
				rows = append(rows, eventRow{
					BuildID:   e.BuildID(),
					TargetKey: e.TargetKey(),
					Type:      e.Type(),
					Timestamp: e.Timestamp(),
					Payload:   json.RawMessage(e.Payload()),
				})
			}
			printJSON(rows)
			return nil
		}
		if err := svc.projection.Rebuild(context.Background()); err != nil {
			return err
		}
		printJSON(svc.projection.GetHistory())
		return nil
	}
	if len(targets) > 0 {
		stats, ok := svc.predictor.Statistics(targets)
		if !ok {
			fmt.Println("No build history recorded for these targets")
			return nil
		}
		printJSON(stats)
		return nil
	}
	printJSON(svc.predictor.Overall())
	return nil
}

func runHealth(svc *services, targets []string, analyze bool) error {
	if analyze {
		analysis, ok := svc.health.Analyze(targets)
		if !ok {
			fmt.Println("No health metrics recorded for these targets")
			return nil
		}
		printJSON(analysis)
		return nil
	}
	score, ok := svc.health.Score(targets)
	if !ok {
		fmt.Println("No health metrics recorded for these targets")
		return nil
	}
	printJSON(map[string]any{
		"health_score": score,
		"trend":        svc.health.Trend(targets),
	})
	return nil
}

func runChanges(svc *services, targets []string) error {
	cs := svc.changes.DetectChanges(targets)
	if cs == nil {
		fmt.Println("No changes detected since the last successful build")
		return nil
	}
	printJSON(map[string]any{
		"changed_files":  cs.ChangedFiles,
		"recommendation": changes.Recommend(cs),
		"impact":         changes.Impact(cs),
	})
	return nil
}

func runDeps(svc *services, forceScan bool) error {
	var events any
	if forceScan {
		events = svc.depTracker.ForceScan()
	} else {
		events = svc.depTracker.DetectChanges()
	}
	printJSON(map[string]any{
		"changes": events,
		"status":  svc.depTracker.CurrentStatus(),
	})
	return nil
}

func runFixes(svc *services) error {
	add := CLI.Fixes.Add
	if add.ID != "" {
		err := svc.advisor.AddPattern(add.ID, fixes.Pattern{
			RegexPatterns: add.Regex,
			SuggestedFix:  add.Fix,
			FixCommands:   add.Commands,
			FixType:       add.Type,
			Confidence:    add.Confidence,
		})
		if err != nil {
			return err
		}
		slog.Info("Fix pattern added", "id", add.ID)
		return nil
	}

	suggest := CLI.Fixes.Suggest
	suggestions := svc.advisor.Suggest(suggest.ErrorText, suggest.File, suggest.Category)
	if len(suggestions) == 0 {
		fmt.Println("No fix suggestions matched this error")
		return nil
	}
	printJSON(suggestions)
	return nil
}

func runClear(svc *services, store string, targets []string) error {
	all := store == "all"
	if all || store == "history" {
		svc.predictor.Clear(targets)
	}
	if all || store == "changes" {
		svc.changes.Clear(targets)
	}
	if all || store == "deps" {
		svc.depTracker.Clear()
	}
	if all || store == "health" {
		svc.health.Clear(targets)
	}
	if all || store == "fixes" {
		svc.advisor.Clear()
	}
	slog.Info("Store cleared", "store", store)
	return nil
}

func runDaemon(svc *services) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(svc.cfg, daemon.Deps{
		Manager:        svc.manager,
		Predictor:      svc.predictor,
		DepTracker:     svc.depTracker,
		MetricsHandler: svc.metricsHandler,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	return d.Run(ctx)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		slog.Error("Failed to encode output", "error", err)
		return
	}
	fmt.Println(string(data))
}
