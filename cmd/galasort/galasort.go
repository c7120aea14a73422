/*
Galasort moves video and photo files from an inbox folder into a railway footage archive.
Videos are split into landscape footage and portrait shorts; every file is dated from its
own metadata when possible and from its modification time otherwise.

The archive layout is:

	<PhotoRoot>/<LocoNameNumber>/RawStills/<YYYY-MM-DD>_<Location>/<Number>-<Year>-<Location>-<Desc>.<ext>
	<VideoRoot>/<LocoNameNumber>/RawFootage/<Shorts|Landscape>/<YYYY-MM-DD>_<Location>/<Number>-<Year>-<Location>-<Desc>.<ext>

or, with -project, the older project layout:

	<VideoRoot>/<Year>/<Project>/<Shorts|YouTube>/<original name>
	<PhotoRoot>/<Year>/<Month>/<Project>/<original name>

Name collisions get _1, _2, ... suffixes. Files are copied, checked and only then removed
from the inbox; a file whose copy cannot be verified goes to the quarantine directory.

Usage:

	galasort [flags]

The flags are:

	-inbox
	    Inbox directory (or "inbox" in the config file)
	-browse
	    Pick the inbox with a directory dialog when -inbox is not given [false]
	-archive
	    Archive root directory [drive root of the inbox, required without drive letters]
	-config
	    YAML config file [./galasort.yaml if present]
	-loco, -number, -location, -desc
	    Labels for the destination path; -desc defaults to Clip
	-year, -month, -day
	    Manual date, used only for files without an embedded date
	-project
	    Use the project layout with this project name
	-dry-run
	    Report planned moves without touching any file [true]
	-next
	    Apply the labels to the next N files only, 0 for all [0]
	-prober
	    auto, ffprobe or mp4 [auto]
	-ffprobe
	    Path to the ffprobe executable [ffprobe]
	-probe-timeout
	    Timeout for probing a single file, 0 for none [0]
	-verify
	    size or content [size]
	-history
	    Print the remembered locos and locations and exit [false]
	-json
	    Print the run report as JSON on stdout [false]
	-progress
	    Show a progress bar [false]
	-console
	    Log to the console instead of the specified log file [false]
	-log
	    Log file path [/tmp/galasort.log]
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"github.com/sqweek/dialog"

	"github.com/madkins23/galasort/internal/config"
	"github.com/madkins23/galasort/internal/media"
	"github.com/madkins23/galasort/internal/prefs"
	"github.com/madkins23/galasort/internal/probe"
	"github.com/madkins23/galasort/internal/sorter"
)

var flags *flag.FlagSet

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var browse, console, dryRun, history, jsonReport, progress bool
	var logFile, verify, proberName, ffprobePath string
	var cfgPath, inbox, archive string
	var labels sorter.Labels
	var next int
	var probeTimeout time.Duration

	flags = flag.NewFlagSet("galasort", flag.ContinueOnError)
	flags.BoolVar(&browse, "browse", false, "Pick the inbox with a directory dialog")
	flags.BoolVar(&console, "console", false, "Direct log to console")
	flags.BoolVar(&dryRun, "dry-run", true, "Report planned moves without touching files")
	flags.BoolVar(&history, "history", false, "Print remembered locos and locations")
	flags.BoolVar(&jsonReport, "json", false, "Print the run report as JSON")
	flags.BoolVar(&progress, "progress", false, "Show a progress bar")
	flags.StringVar(&logFile, "log", "/tmp/galasort.log", "Path to log file")
	flags.StringVar(&cfgPath, "config", "", "YAML config file")
	flags.StringVar(&inbox, "inbox", "", "Inbox directory")
	flags.StringVar(&archive, "archive", "", "Archive root directory")
	flags.StringVar(&labels.LocoName, "loco", "", "Loco name")
	flags.StringVar(&labels.LocoNumber, "number", "", "Loco number")
	flags.StringVar(&labels.Location, "location", "", "Location")
	flags.StringVar(&labels.Description, "desc", "", "Short description")
	flags.StringVar(&labels.Project, "project", "", "Project name for the project layout")
	flags.IntVar(&labels.Year, "year", 0, "Manual year")
	flags.IntVar(&labels.Month, "month", 0, "Manual month")
	flags.IntVar(&labels.Day, "day", 0, "Manual day")
	flags.IntVar(&next, "next", 0, "Apply labels to the next N files, 0 for all")
	flags.StringVar(&proberName, "prober", "", "auto, ffprobe or mp4")
	flags.StringVar(&ffprobePath, "ffprobe", "", "Path to ffprobe")
	flags.StringVar(&verify, "verify", "", "size or content")
	flags.DurationVar(&probeTimeout, "probe-timeout", 0, "Timeout for probing one file")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		dialog.Message(err.Error()).Title("Error parsing command line flags").Error()
		return 2
	}
	set := map[string]bool{}
	flags.Visit(func(f *flag.Flag) { set[f.Name] = true })

	zerolog.TimestampFunc = func() time.Time {
		return time.Now().Local()
	}
	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else if f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666); err != nil {
		dialog.Message(err.Error()).Title("Log File Creation").Error()
		return 1
	} else {
		defer func() { _ = f.Close() }()
		_, _ = fmt.Fprintln(f) // Separate blocks of log statements.
		// Use ConsoleWriter for readable text instead of JSON blocks.
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: f, TimeFormat: "15:04:05", NoColor: true})
	}

	if inbox == "" && browse {
		picked, err := dialog.Directory().Title("Select inbox folder").Browse()
		if errors.Is(err, dialog.ErrCancelled) {
			log.Info().Msg("Inbox selection cancelled")
			return 0
		} else if err != nil {
			errorFatal("Select inbox folder", err, nil)
		}
		inbox = picked
	}

	cwd, err := os.Getwd()
	if err != nil {
		errorFatal("Get working directory", err, nil)
	}
	eff, err := config.Load(cwd, config.CLIArgs{
		ConfigPath:   cfgPath,
		Inbox:        inbox,
		ArchiveRoot:  archive,
		DryRun:       dryRun,
		DryRunSet:    set["dry-run"],
		Prober:       proberName,
		Verify:       verify,
		FFProbe:      ffprobePath,
		ProbeTimeout: probeTimeout,
		TimeoutSet:   set["probe-timeout"],
	})
	if err != nil {
		errorFatal("Load configuration", err, func(event *zerolog.Event) *zerolog.Event {
			return event.Str("code", config.Code(err))
		})
	}

	log.Logger = log.Logger.With().Str("inbox", eff.Inbox).Logger()
	log.Logger = log.Logger.With().Str("archive", eff.ArchiveRoot).Logger()

	store, err := prefs.Load(afero.NewOsFs(), eff.PrefsFile)
	if err != nil {
		log.Warn().Err(err).Str("prefs", eff.PrefsFile).Msg("Label history unavailable")
		store = nil
	}
	if history {
		printHistory(store)
		return 0
	}

	// Nothing may be touched if the archive volume is not there.
	if err := config.CheckVolume(eff); err != nil {
		errorFatal("Archive volume missing", err, nil)
	}

	log.Info().Bool("dry-run", eff.DryRun).Msg("Galasort starting")
	defer log.Info().Msg("Galasort finished")

	s := sorter.New(afero.NewOsFs(), eff, newProber(eff), store)
	if progress {
		var bar *progressbar.ProgressBar
		s.OnItem = func(done, total int, item sorter.Item) {
			if bar == nil {
				bar = progressbar.Default(int64(total), "Sorting")
			}
			_ = bar.Add(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := s.Run(ctx, eff.Inbox, labels, sorter.Options{DryRun: eff.DryRun, Limit: next})
	if err != nil {
		errorFatal("Sort inbox", err, nil)
	}
	for _, item := range report.Items {
		logItem(item)
	}
	log.Info().
		Int("moved", report.Summary.Moved).
		Int("planned", report.Summary.Planned).
		Int("quarantined", report.Summary.Quarantined).
		Int("skipped", report.Summary.Skipped).
		Int("remaining", report.Summary.Remaining).
		Msg("Batch complete")

	if jsonReport {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Error().Err(err).Msg("Encode report")
			return 1
		}
	}
	if report.Summary.Quarantined > 0 || report.Summary.Skipped > 0 {
		return 1
	}
	return 0
}

func newProber(eff config.Effective) media.Prober {
	ffprobe := probe.FFProbe{Path: eff.FFProbe}
	switch eff.Prober {
	case config.ProberFFProbe:
		return ffprobe
	case config.ProberMP4:
		return probe.MP4{}
	default:
		if ffprobe.Available() {
			return probe.Chain{ffprobe, probe.MP4{}}
		}
		log.Warn().Str("ffprobe", eff.FFProbe).Msg("ffprobe not found, reading MP4 containers only")
		return probe.MP4{}
	}
}

func logItem(item sorter.Item) {
	event := log.Info()
	if item.Failed() {
		event = log.Error()
	}
	event = event.Str("source", item.Source).Str("status", item.Status)
	if item.Target != "" {
		event = event.Str("target", item.Target)
	}
	if item.Orientation != "" {
		event = event.Str("orientation", item.Orientation)
	}
	if item.Date != "" {
		event = event.Str("date", item.Date).Str("date-source", item.DateSource)
	}
	if item.Quarantine != "" {
		event = event.Str("quarantine", item.Quarantine)
	}
	if item.Error != "" {
		event = event.Str("error", item.Error)
	}
	event.Msg("[" + strings.ToUpper(item.Category) + "]")
}

func printHistory(store *prefs.Store) {
	if store == nil {
		fmt.Println("No label history")
		return
	}
	fmt.Println("Locos:")
	for _, name := range store.LocoNames() {
		fmt.Printf("  %s: %s\n", name, strings.Join(store.Numbers(name), ", "))
	}
	fmt.Println("Locations:")
	for _, location := range store.Locations {
		fmt.Printf("  %s\n", location)
	}
}

func errorFatal(message string, err error, extra func(*zerolog.Event) *zerolog.Event) {
	msg := message
	if err != nil {
		msg += ":\n" + err.Error()
	}
	dialog.Message(msg).Title("Fatal Error").Error()
	// Fatal() will call os.Exit() after logging, skipping defer statements in run().
	event := log.Fatal()
	if err != nil {
		event = event.Err(err)
	}
	if extra != nil {
		event = extra(event)
	}
	event.Msg(message)
}
