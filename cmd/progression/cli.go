package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofrs/uuid"

	"learnhub/internal/appinfo"
	"learnhub/internal/contextutils"
	"learnhub/internal/models"
	"learnhub/internal/services"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	progression services.ProgressionService
	activity    services.ActivityService
	location    *time.Location
	info        appinfo.Info
	out         io.Writer

	// migrateFunc is nil when the store has no schema to migrate.
	migrateFunc func(ctx context.Context) (uint, error)
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate                                        - apply database migrations")
	fmt.Fprintln(cli.out, "  record -user ID -delta JSON [-key K] [-reason R] - apply an activity delta")
	fmt.Fprintln(cli.out, "  complete-module -user ID -module ID [-xp N] [-at RFC3339]")
	fmt.Fprintln(cli.out, "  roadmap -user ID -roadmap ID -completed N -total N")
	fmt.Fprintln(cli.out, "  discussion -user ID -id ID")
	fmt.Fprintln(cli.out, "  comment -user ID -id ID")
	fmt.Fprintln(cli.out, "  streak -user ID -days N")
	fmt.Fprintln(cli.out, "  perfect-week -user ID -week KEY")
	fmt.Fprintln(cli.out, "  progress -user ID                              - badge progress in catalog order")
	fmt.Fprintln(cli.out, "  summary -user ID                               - achievement summary")
	fmt.Fprintln(cli.out, "  history -user ID                               - XP ledger")
	fmt.Fprintln(cli.out, "  reconcile -user ID                             - award badges the stored statistics qualify for")
	fmt.Fprintln(cli.out, "  classify -at RFC3339                           - early bird / night owl window of a time")
	fmt.Fprintln(cli.out, "  version                                        - build information")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	cmd, rest := args[1], args[2:]
	if id, err := uuid.NewV4(); err == nil {
		ctx = contextutils.WithRequestID(ctx, id.String())
	}
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(cli.out)

	switch cmd {
	case "migrate":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		return cli.migrate(ctx)

	case "version":
		return cli.print(cli.info, nil)

	case "record":
		user := fs.String("user", "", "The user id.")
		deltaJSON := fs.String("delta", "", `Activity delta, e.g. '{"modulesCompleted":1}'.`)
		key := fs.String("key", "", "Idempotency key. A replayed key is a no-op.")
		reason := fs.String("reason", "", "Ledger description for activity XP.")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *user == "" || *deltaJSON == "" {
			fs.Usage()
			return errHelp
		}
		var delta models.ActivityDelta
		if err := json.Unmarshal([]byte(*deltaJSON), &delta); err != nil {
			return services.NewValidationError("invalid -delta", err)
		}
		if *key != "" {
			delta.IdempotencyKey = *key
		}
		if *reason != "" {
			delta.Reason = *reason
		}
		return cli.print(cli.progression.RecordActivity(ctx, *user, delta))

	case "complete-module":
		user := fs.String("user", "", "The user id.")
		module := fs.String("module", "", "The completed module id.")
		xp := fs.Int64("xp", 0, "XP reward of the module.")
		at := fs.String("at", "", "Completion time (RFC3339). Defaults to now.")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *user == "" || *module == "" {
			fs.Usage()
			return errHelp
		}
		completedAt, err := parseTime(*at)
		if err != nil {
			return err
		}
		return cli.print(cli.activity.CompleteModule(ctx, &services.ModuleCompletion{
			UserID:      *user,
			ModuleID:    *module,
			XPReward:    *xp,
			CompletedAt: completedAt,
		}))

	case "roadmap":
		user := fs.String("user", "", "The user id.")
		roadmap := fs.String("roadmap", "", "The roadmap id.")
		completed := fs.Int("completed", 0, "Completed modules of the roadmap.")
		total := fs.Int("total", 0, "Total modules of the roadmap.")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *user == "" || *roadmap == "" {
			fs.Usage()
			return errHelp
		}
		return cli.print(cli.activity.SyncRoadmapProgress(ctx, &services.RoadmapProgressRequest{
			UserID:    *user,
			RoadmapID: *roadmap,
			Completed: *completed,
			Total:     *total,
		}))

	case "discussion", "comment":
		user := fs.String("user", "", "The user id.")
		id := fs.String("id", "", "The "+cmd+" id.")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *user == "" || *id == "" {
			fs.Usage()
			return errHelp
		}
		if cmd == "discussion" {
			return cli.print(cli.activity.CreateDiscussion(ctx, *user, *id))
		}
		return cli.print(cli.activity.AddComment(ctx, *user, *id))

	case "streak":
		user := fs.String("user", "", "The user id.")
		days := fs.Int64("days", -1, "Current streak length in days. Replaces the stored value.")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *user == "" || *days < 0 {
			fs.Usage()
			return errHelp
		}
		return cli.print(cli.activity.RecordStreak(ctx, *user, *days))

	case "perfect-week":
		user := fs.String("user", "", "The user id.")
		week := fs.String("week", "", "ISO week key, e.g. 2026-W10.")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *user == "" || *week == "" {
			fs.Usage()
			return errHelp
		}
		return cli.print(cli.activity.RecordPerfectWeek(ctx, *user, *week))

	case "progress", "summary", "history", "reconcile":
		user := fs.String("user", "", "The user id.")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *user == "" {
			fs.Usage()
			return errHelp
		}
		switch cmd {
		case "progress":
			return cli.print(cli.progression.EvaluateBadgeProgress(ctx, *user))
		case "summary":
			return cli.print(cli.progression.GetAchievementSummary(ctx, *user))
		case "history":
			return cli.print(cli.progression.GetXPHistory(ctx, *user))
		default:
			return cli.print(cli.progression.AwardEligibleBadges(ctx, *user))
		}

	case "classify":
		at := fs.String("at", "", "Time to classify (RFC3339).")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *at == "" {
			fs.Usage()
			return errHelp
		}
		t, err := parseTime(*at)
		if err != nil {
			return err
		}
		local := t.In(cli.location)
		return cli.print(classification{
			Local:     local.Format(time.RFC3339),
			TimeOfDay: models.ClassifyCompletionTime(local),
		}, nil)

	default:
		cli.printUsage()
		return errHelp
	}
}

type classification struct {
	Local     string           `json:"local"`
	TimeOfDay models.TimeOfDay `json:"time_of_day"`
}

func (cli *commandLine) migrate(ctx context.Context) error {
	if cli.migrateFunc == nil {
		return fmt.Errorf("migrate requires DB_DRIVER=postgres")
	}
	version, err := cli.migrateFunc(ctx)
	if err != nil {
		return err
	}
	return cli.print(map[string]uint{"version": version}, nil)
}

// print writes v as indented JSON, or returns err unchanged.
func (cli *commandLine) print(v interface{}, err error) error {
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(cli.out, string(data))
	return err
}

func parseTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, services.NewValidationError(fmt.Sprintf("invalid time %q, want RFC3339", value), err)
	}
	return t, nil
}
