package main

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/trezcool/letsspeak/core"
	"github.com/trezcool/letsspeak/core/schedule"
	logsvc "github.com/trezcool/letsspeak/services/logger"
	notifysvc "github.com/trezcool/letsspeak/services/notify"
	"github.com/trezcool/letsspeak/storage/database"
	boiledrepos "github.com/trezcool/letsspeak/storage/database/sqlboiler"
)

const adminID = "admin-cli"

func main() {
	conf := core.NewConfig()

	local := log.New()
	local.SetOutput(os.Stdout)
	logger := logsvc.NewRollbarLogger(local, "admin", conf)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() { _ = db.Close() }()
	if err = db.Ping(); err != nil {
		logger.Fatal(fmt.Sprintf("pinging database: %v", err), err)
	}
	database.SetMigrationLogger(logger.Entry())

	// notices go to telegram only: emails are sent in the background and would be lost on exit
	var notifier schedule.Notifier = schedule.NopNotifier()
	bot, err := notifysvc.NewTelegramBot(conf)
	if err != nil {
		logger.Warn(fmt.Sprintf("telegram notifications disabled: %v", err), err)
	} else if bot != nil {
		notifier = notifysvc.NewTelegramNotifier(bot)
	}

	repo := boiledrepos.NewScheduleRepository(db, conf.Database.Engine)

	// start CLI
	cli := commandLine{
		db:     db,
		engine: conf.Database.Engine,
		repo:   repo,
		svc:    schedule.NewService(database.NewTransactor(db), repo, notifier, logger, schedule.OptionsFromConfig(conf)),
		actor:  schedule.AdminActor(adminID),
		out:    os.Stdout,
	}
	if err = cli.run(os.Args); err != nil {
		if !errors.Is(err, errHelp) {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", describe(err))
		}
		os.Exit(1)
	}
}

// describe adds the field errors of validation failures.
func describe(err error) string {
	var vErr *core.ValidationError
	if errors.As(err, &vErr) {
		msg := vErr.Error()
		for f, e := range vErr.FieldMap() {
			msg += fmt.Sprintf("\n  %s: %s", f, e)
		}
		return msg
	}
	return err.Error()
}
