package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/letsspeak/core/schedule"
	"github.com/trezcool/letsspeak/storage/database"
	"github.com/trezcool/letsspeak/storage/database/sqlboiler"
	"github.com/trezcool/letsspeak/tests"
)

var repo schedule.Repository

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	// set up DB & repos
	db := testutil.PrepareSQLite(t)
	repo = boiledrepos.NewScheduleRepository(db, database.EngineSQLite)
	svc := schedule.NewService(database.NewTransactor(db), repo, schedule.NopNotifier(), testutil.NewLogger(), schedule.Options{})

	isTerminalFunc = func(int) bool { return false }

	// start CLI
	out := new(bytes.Buffer)
	return &commandLine{
		db:     db,
		engine: database.EngineSQLite,
		repo:   repo,
		svc:    svc,
		actor:  schedule.AdminActor(adminID),
		out:    out,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string // substring of the output
	extra      interface{}
}

func runCLITests(t *testing.T, cli *commandLine, out *bytes.Buffer, tests []cliTest) {
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
			case tt.wantErrStr != "":
				if err == nil || err.Error() != tt.wantErrStr {
					t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
				}
			case err != nil:
				t.Errorf("cli.run() unexpected error = %v", err)
			}
			if tt.wantOut != "" && !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("cli.run() output = %q, want %q", out.String(), tt.wantOut)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, out := setup(t)

	runMigrationsFunc = func(db *sqlx.DB, engine, command string, args ...string) error {
		if engine != database.EngineSQLite {
			return fmt.Errorf("unexpected engine %q", engine)
		}
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}
	defer func() { runMigrationsFunc = database.RunMigrations }()

	runCLITests(t, cli, out, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "rooms", "sql"}},
	})
}

func Test_commandLine_migrate_version(t *testing.T) {
	cli, _ := setup(t)
	if err := cli.run([]string{"admin", "migrate", "version"}); err != nil {
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_help(t *testing.T) {
	cli, out := setup(t)
	runCLITests(t, cli, out, []cliTest{
		{name: "no command", wantErr: errHelp, wantOut: "Usage:"},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp, wantOut: "cancel -lecture ID"},
		{name: "migrate: no command", args: []string{"migrate"}, wantErr: errHelp, wantOut: "migrate COMMAND"},
		{name: "addtrainer: no name", args: []string{"addtrainer"}, wantErr: errHelp, wantOut: "Usage of addtrainer"},
		{name: "addcourse: no lectures", args: []string{"addcourse", "-trainer", "x", "-title", "English"}, wantErr: errHelp, wantOut: "-lectures"},
		{name: "generate: no start", args: []string{"generate", "-course", "x"}, wantErr: errHelp, wantOut: "Usage of generate"},
		{name: "stats: no course", args: []string{"stats"}, wantErr: errHelp, wantOut: "Usage of stats"},
		{name: "postpone: no date", args: []string{"postpone", "-lecture", "x"}, wantErr: errHelp, wantOut: "-force"},
		{name: "cancel: no lecture", args: []string{"cancel"}, wantErr: errHelp, wantOut: "Usage of cancel"},
	})
}

func Test_commandLine_setUpCourse(t *testing.T) {
	cli, out := setup(t)

	runCLITests(t, cli, out, []cliTest{
		{name: "add trainer", args: []string{"addtrainer", "-name", " Jane ", "-email", "Jane@Test.test", "-chat", "42"}, wantOut: "trainer Jane created"},
	})
	trainerID := strings.TrimSpace(out.String()[strings.LastIndex(out.String(), ":")+1:])
	tr, err := repo.GetTrainer(context.Background(), trainerID)
	if err != nil {
		t.Fatalf("GetTrainer() failed: %v", err)
	}
	if tr.Email != "jane@test.test" || tr.TelegramChatID != 42 {
		t.Errorf("addtrainer stored %+v", tr)
	}

	runCLITests(t, cli, out, []cliTest{
		{name: "unknown trainer", args: []string{"addcourse", "-trainer", "00000000-0000-0000-0000-000000000000", "-title", "English", "-lectures", "4", "-weekdays", "1"}, wantErr: schedule.ErrNotFound},
		{name: "bad weekdays", args: []string{"addcourse", "-trainer", trainerID, "-title", "English", "-lectures", "4", "-weekdays", "mon"}, wantErr: schedule.ErrInvalidCadence},
		{name: "add course", args: []string{"addcourse", "-trainer", trainerID, "-title", "English B1", "-lectures", "4", "-weekdays", "2,4", "-time", "18:00"}, wantOut: "course \"English B1\" created"},
	})
	courseID := strings.TrimSpace(out.String()[strings.LastIndex(out.String(), ":")+1:])

	runCLITests(t, cli, out, []cliTest{
		{name: "generate", args: []string{"generate", "-course", courseID, "-start", "2024-01-01"}, wantOut: "4 lectures generated"},
		{name: "generate twice", args: []string{"generate", "-course", courseID, "-start", "2024-01-01"}, wantErr: schedule.ErrScheduleExists},
		{name: "stats", args: []string{"stats", "-course", courseID}, wantOut: "postponements: 0/3 (remaining 3)"},
	})

	lectures, err := repo.QueryLectures(context.Background(), schedule.LectureFilter{CourseID: courseID}, nil)
	if err != nil || len(lectures) != 4 {
		t.Fatalf("QueryLectures() = %d lectures, %v", len(lectures), err)
	}
	if lectures[0].Date != "2024-01-02" || lectures[3].Date != "2024-01-11" {
		t.Errorf("generated dates = %s..%s", lectures[0].Date, lectures[3].Date)
	}
}

func Test_commandLine_postpone(t *testing.T) {
	cli, out := setup(t)

	jane := testutil.CreateTrainer(t, repo, "Jane", "")
	english := testutil.CreateCourse(t, repo, jane.ID, "English B1", 4, "18:00", time.Monday)
	spanish := testutil.CreateCourse(t, repo, jane.ID, "Spanish A2", 1, "18:00", time.Monday)
	lectures := testutil.CreateLectures(t, repo, english.ID, "2024-01-01", 4)
	testutil.CreateLecture(t, repo, spanish.ID, 1, "2024-03-04", "", schedule.AttendancePending)

	type extra struct {
		terminal bool
		answer   string
	}

	tests := []cliTest{
		{
			name:       "invalid date",
			args:       []string{"postpone", "-lecture", lectures[0].ID, "-date", "04/03/2024"},
			wantErrStr: "invalid request",
		},
		{
			name:    "conflict",
			args:    []string{"postpone", "-lecture", lectures[0].ID, "-date", "2024-03-04", "-time", "18:00"},
			wantErr: schedule.ErrTimeConflict,
		},
		{
			name:    "force refused",
			args:    []string{"postpone", "-lecture", lectures[0].ID, "-date", "2024-03-04", "-time", "18:00", "-force"},
			wantErr: errAborted,
			extra:   extra{terminal: true, answer: "n\n"},
		},
		{
			name:    "force confirmed",
			args:    []string{"postpone", "-lecture", lectures[0].ID, "-date", "2024-03-04", "-time", "18:00", "-force", "-reason", "exams"},
			wantOut: "overrides \"Spanish A2\" on 2024-03-04 at 18:00",
			extra:   extra{terminal: true, answer: "y\n"},
		},
		{
			name:    "by student",
			args:    []string{"postpone", "-lecture", lectures[1].ID, "-date", "2024-03-11", "-by", "student"},
			wantOut: "lecture #2 of 2024-01-08 postponed (postponed_by_student)",
		},
		{
			name:    "stats",
			args:    []string{"stats", "-course", english.ID},
			wantOut: "postponements: 2/3 (remaining 1)",
		},
		{
			name:    "cancel",
			args:    []string{"cancel", "-lecture", lectures[1].ID},
			wantOut: "makeup lecture removed",
		},
		{
			name:    "cancel twice",
			args:    []string{"cancel", "-lecture", lectures[1].ID},
			wantErr: schedule.ErrNotPostponed,
		},
	}
	for _, tt := range tests {
		ex, _ := tt.extra.(extra)
		isTerminalFunc = func(int) bool { return ex.terminal }
		readLineFunc = func() (string, error) { return ex.answer, nil }

		runCLITests(t, cli, out, []cliTest{tt})
	}
}
