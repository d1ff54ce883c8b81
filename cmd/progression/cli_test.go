package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"learnhub/internal/appinfo"
	"learnhub/internal/config"
	"learnhub/internal/models"
	"learnhub/internal/repositories"
	"learnhub/internal/services"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	cfg := config.DefaultProgressionConfig()
	progression := services.NewProgressionService(repositories.NewMemoryStore(zap.NewNop()), nil, nil, models.DefaultBadgeCatalog(), cfg, zap.NewNop())
	activity, err := services.NewActivityService(progression, cfg, zap.NewNop())
	require.NoError(t, err)

	out := &bytes.Buffer{}
	return &commandLine{
		progression: progression,
		activity:    activity,
		location:    time.UTC,
		info:        appinfo.Info{Name: "progression", Version: "1.0.0", Environment: "test"},
		out:         out,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func runCLI(cli *commandLine, args ...string) error {
	return cli.run(context.Background(), append([]string{"progression"}, args...))
}

func Test_commandLine_usage(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no command", args: nil, wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "record: no user", args: []string{"record", "-delta", `{"modulesCompleted":1}`}, wantErr: errHelp},
		{name: "record: no delta", args: []string{"record", "-user", "u1"}, wantErr: errHelp},
		{name: "complete-module: no module", args: []string{"complete-module", "-user", "u1"}, wantErr: errHelp},
		{name: "streak: no days", args: []string{"streak", "-user", "u1"}, wantErr: errHelp},
		{name: "summary: no user", args: []string{"summary"}, wantErr: errHelp},
		{name: "classify: no time", args: []string{"classify"}, wantErr: errHelp},
		{name: "migrate: memory driver", args: []string{"migrate"}, wantErrStr: "migrate requires DB_DRIVER=postgres"},
		{name: "unknown flag", args: []string{"progress", "-nope"}, wantErrStr: "flag provided but not defined: -nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runCLI(cli, tt.args...)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantErrStr != "" {
				assert.EqualError(t, err, tt.wantErrStr)
			}
		})
	}
}

func Test_commandLine_record(t *testing.T) {
	cli, out := setup(t)

	require.NoError(t, runCLI(cli, "record", "-user", "u1", "-delta", `{"modulesCompleted":1,"xpEarned":10}`, "-key", "import:1"))

	var result services.ActivityResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, int64(1), result.Statistics.ModulesCompleted)
	assert.Equal(t, int64(60), result.Statistics.XPEarned)
	require.Len(t, result.NewBadges, 1)
	assert.Equal(t, "first_module", result.NewBadges[0].ID)

	out.Reset()
	require.NoError(t, runCLI(cli, "record", "-user", "u1", "-delta", `{"modulesCompleted":1,"xpEarned":10}`, "-key", "import:1"))
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.True(t, result.Replayed)
}

func Test_commandLine_recordRejectsBadDeltas(t *testing.T) {
	cli, out := setup(t)

	tests := []cliTest{
		{name: "unknown field", args: []string{"record", "-user", "u1", "-delta", `{"modulesDone":1}`}},
		{name: "negative value", args: []string{"record", "-user", "u1", "-delta", `{"commentsMade":-1}`}},
		{name: "not json", args: []string{"record", "-user", "u1", "-delta", `modules=1`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runCLI(cli, tt.args...)
			require.Error(t, err)
			assert.True(t, services.IsValidationError(err), err.Error())
		})
	}
	assert.Empty(t, out.String())
}

func Test_commandLine_activityCommands(t *testing.T) {
	cli, out := setup(t)

	require.NoError(t, runCLI(cli, "complete-module", "-user", "u1", "-module", "m1", "-xp", "20", "-at", "2026-03-02T06:15:00Z"))
	var result services.ActivityResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, int64(1), result.Statistics.EarlyBirdCompletions)

	for _, args := range [][]string{
		{"discussion", "-user", "u1", "-id", "d1"},
		{"comment", "-user", "u1", "-id", "c1"},
		{"streak", "-user", "u1", "-days", "3"},
		{"perfect-week", "-user", "u1", "-week", "2026-W10"},
	} {
		out.Reset()
		require.NoError(t, runCLI(cli, args...), args[0])
	}

	out.Reset()
	require.NoError(t, runCLI(cli, "roadmap", "-user", "u1", "-roadmap", "go", "-completed", "3", "-total", "4"))
	var progress services.RoadmapProgress
	require.NoError(t, json.Unmarshal(out.Bytes(), &progress))
	assert.Equal(t, 75, progress.Percent)
	assert.False(t, progress.Completed)

	out.Reset()
	require.NoError(t, runCLI(cli, "summary", "-user", "u1"))
	var summary models.AchievementSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	// first_module, early_bird, discussion_starter, streak_3, perfect_week
	assert.Equal(t, 5, summary.BadgesEarned)
	assert.Equal(t, summary.XPEarned, summary.LedgerXP)

	out.Reset()
	require.NoError(t, runCLI(cli, "progress", "-user", "u1"))
	var badges []models.BadgeProgress
	require.NoError(t, json.Unmarshal(out.Bytes(), &badges))
	assert.Len(t, badges, 11)

	out.Reset()
	require.NoError(t, runCLI(cli, "history", "-user", "u1"))
	var history []models.XPLedgerEntry
	require.NoError(t, json.Unmarshal(out.Bytes(), &history))
	assert.Len(t, history, 6)

	out.Reset()
	require.NoError(t, runCLI(cli, "reconcile", "-user", "u1"))
	assert.Equal(t, "[]\n", out.String())
}

func Test_commandLine_classify(t *testing.T) {
	cli, out := setup(t)
	cli.location = time.FixedZone("UTC+9", 9*60*60)

	require.NoError(t, runCLI(cli, "classify", "-at", "2026-03-02T13:30:00Z"))
	var got classification
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, models.TimeOfDayNightOwl, got.TimeOfDay)
	assert.Equal(t, "2026-03-02T22:30:00+09:00", got.Local)

	err := runCLI(cli, "classify", "-at", "yesterday")
	assert.True(t, services.IsValidationError(err))
}

func Test_commandLine_migrate(t *testing.T) {
	cli, out := setup(t)

	cli.migrateFunc = func(ctx context.Context) (uint, error) { return 1, nil }
	require.NoError(t, runCLI(cli, "migrate"))
	assert.JSONEq(t, `{"version":1}`, out.String())

	cli.migrateFunc = func(ctx context.Context) (uint, error) { return 0, errors.New("dirty database") }
	assert.EqualError(t, runCLI(cli, "migrate"), "dirty database")
}

func Test_commandLine_version(t *testing.T) {
	cli, out := setup(t)

	require.NoError(t, runCLI(cli, "version"))
	var info appinfo.Info
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, "1.0.0", info.Version)
	assert.Equal(t, "test", info.Environment)
}
