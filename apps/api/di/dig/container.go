package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/letsspeak/apps/api/echo"
	"github.com/trezcool/letsspeak/core"
	"github.com/trezcool/letsspeak/core/schedule"
	emailsvc "github.com/trezcool/letsspeak/services/email"
	logsvc "github.com/trezcool/letsspeak/services/logger"
	notifysvc "github.com/trezcool/letsspeak/services/notify"
	"github.com/trezcool/letsspeak/storage/database"
	boiledrepos "github.com/trezcool/letsspeak/storage/database/sqlboiler"
)

const dbSetUpTimeout = 30 * time.Second

type DBLoggerParam struct {
	dig.In
	Logger *logsvc.RollbarLogger `name:"dbLogger"`
}

func newLocalLogger() *logrus.Logger {
	local := logrus.New()
	local.SetOutput(os.Stdout)
	local.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return local
}

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(newLocalLogger(), "api", conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(newLocalLogger(), "db", conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		ctx, cancel := context.WithTimeout(context.Background(), dbSetUpTimeout)
		defer cancel()

		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Ping(ctx, db); err != nil {
			return nil, err
		}

		database.SetMigrationLogger(loggerParam.Logger.Entry())
		if err = database.Migrate(db, conf.Database.Engine); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newTransactor(db *sqlx.DB) core.Transactor {
	return database.NewTransactor(db)
}

func newScheduleRepository(conf *core.Config, db *sqlx.DB) schedule.Repository {
	return boiledrepos.NewScheduleRepository(db, conf.Database.Engine)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newNotifier(conf *core.Config, mailer core.EmailService, logger core.Logger) schedule.Notifier {
	notifiers := []schedule.Notifier{notifysvc.NewEmailNotifier(mailer)}

	bot, err := notifysvc.NewTelegramBot(conf)
	switch {
	case err != nil:
		logger.Warn(fmt.Sprintf("telegram notifications disabled: %v", err), err)
	case bot != nil:
		notifiers = append(notifiers, notifysvc.NewTelegramNotifier(bot))
	}
	return notifysvc.Multi(notifiers...)
}

func newScheduleService(
	conf *core.Config,
	tx core.Transactor,
	repo schedule.Repository,
	notifier schedule.Notifier,
	logger core.Logger,
) schedule.Service {
	return schedule.NewService(tx, repo, notifier, logger, schedule.OptionsFromConfig(conf))
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newDeps(svc schedule.Service, validate *validator.Validate, translator ut.Translator) *echoapi.Deps {
	return &echoapi.Deps{ScheduleSvc: svc, Validate: validate, Translator: translator}
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newTransactor))
	must(c.Provide(newScheduleRepository))
	must(c.Provide(newEmailService))
	must(c.Provide(newNotifier))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(newScheduleService))
	must(c.Provide(newDeps))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
