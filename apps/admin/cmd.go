package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/letsspeak/core/schedule"
)

var (
	isTerminalFunc = term.IsTerminal // mockable
	readLineFunc   = readLine        // mockable

	errHelp    = errors.New("help provided")
	errAborted = errors.New("aborted")
)

type commandLine struct {
	db     *sqlx.DB
	engine string
	repo   schedule.Repository
	svc    schedule.Service
	actor  schedule.Actor
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, version, ...)")
	fmt.Fprintln(cli.out, "  addtrainer -name NAME [-email EMAIL] [-chat CHAT_ID] - register a trainer")
	fmt.Fprintln(cli.out, "  addcourse -trainer ID -title TITLE -lectures N -weekdays 1,3 [-time HH:MM] - register a course")
	fmt.Fprintln(cli.out, "  generate -course ID -start YYYY-MM-DD - generate the lectures of a course")
	fmt.Fprintln(cli.out, "  stats -course ID - show the postponement stats of a course")
	fmt.Fprintln(cli.out, "  postpone -lecture ID -date YYYY-MM-DD [-time HH:MM] [-by PARTY] [-reason REASON] [-force] - postpone a lecture")
	fmt.Fprintln(cli.out, "  cancel -lecture ID - cancel the postponement of a lecture")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addTrainerCmd := flag.NewFlagSet("addtrainer", flag.ExitOnError)
	addTrainerName := addTrainerCmd.String("name", "", "The trainer's name.")
	addTrainerEmail := addTrainerCmd.String("email", "", "The trainer's email, for notifications.")
	addTrainerChat := addTrainerCmd.Int64("chat", 0, "The trainer's Telegram chat ID, for notifications.")

	addCourseCmd := flag.NewFlagSet("addcourse", flag.ExitOnError)
	addCourseTrainer := addCourseCmd.String("trainer", "", "The trainer's ID.")
	addCourseTitle := addCourseCmd.String("title", "", "The course title.")
	addCourseLectures := addCourseCmd.Int("lectures", 0, "The number of lectures.")
	addCourseWeekdays := addCourseCmd.String("weekdays", "", "Comma separated weekday numbers, Sunday = 0.")
	addCourseTime := addCourseCmd.String("time", "", "The default lecture time, HH:MM.")

	generateCmd := flag.NewFlagSet("generate", flag.ExitOnError)
	generateCourse := generateCmd.String("course", "", "The course ID.")
	generateStart := generateCmd.String("start", "", "The first day of the course, YYYY-MM-DD.")

	statsCmd := flag.NewFlagSet("stats", flag.ExitOnError)
	statsCourse := statsCmd.String("course", "", "The course ID.")

	postponeCmd := flag.NewFlagSet("postpone", flag.ExitOnError)
	postponeLecture := postponeCmd.String("lecture", "", "The lecture ID.")
	postponeDate := postponeCmd.String("date", "", "The makeup date, YYYY-MM-DD.")
	postponeTime := postponeCmd.String("time", "", "The makeup time, HH:MM.")
	postponeBy := postponeCmd.String("by", string(schedule.PostponedByAdmin), "Who asked for it: trainer, student, customer_service, admin or holiday.")
	postponeReason := postponeCmd.String("reason", "", "Why the lecture is postponed.")
	postponeForce := postponeCmd.Bool("force", false, "Schedule the makeup even if the trainer is busy.")

	cancelCmd := flag.NewFlagSet("cancel", flag.ExitOnError)
	cancelLecture := cancelCmd.String("lecture", "", "The postponed lecture ID.")

	for _, fs := range []*flag.FlagSet{addTrainerCmd, addCourseCmd, generateCmd, statsCmd, postponeCmd, cancelCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "addtrainer":
		if err := addTrainerCmd.Parse(args[2:]); err != nil {
			return err
		}
		if strings.TrimSpace(*addTrainerName) == "" {
			addTrainerCmd.Usage()
			return errHelp
		}
		return cli.addTrainer(*addTrainerName, *addTrainerEmail, *addTrainerChat)
	case "addcourse":
		if err := addCourseCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addCourseTrainer == "" || *addCourseTitle == "" || *addCourseLectures <= 0 {
			addCourseCmd.Usage()
			return errHelp
		}
		return cli.addCourse(*addCourseTrainer, *addCourseTitle, *addCourseLectures, *addCourseWeekdays, *addCourseTime)
	case "generate":
		if err := generateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *generateCourse == "" || *generateStart == "" {
			generateCmd.Usage()
			return errHelp
		}
		return cli.generate(*generateCourse, *generateStart)
	case "stats":
		if err := statsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *statsCourse == "" {
			statsCmd.Usage()
			return errHelp
		}
		return cli.stats(*statsCourse)
	case "postpone":
		if err := postponeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *postponeLecture == "" || *postponeDate == "" {
			postponeCmd.Usage()
			return errHelp
		}
		if *postponeForce && !cli.confirm("Schedule the makeup even if the trainer is busy? [y/N] ") {
			return errAborted
		}
		return cli.postpone(schedule.PostponeRequest{
			LectureID:   *postponeLecture,
			NewDate:     *postponeDate,
			NewTime:     *postponeTime,
			PostponedBy: schedule.PostponedBy(*postponeBy),
			Reason:      *postponeReason,
			Force:       *postponeForce,
		})
	case "cancel":
		if err := cancelCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *cancelLecture == "" {
			cancelCmd.Usage()
			return errHelp
		}
		return cli.cancel(*cancelLecture)
	default:
		cli.printUsage()
		return errHelp
	}
}

// confirm asks the operator when attached to a terminal; scripts are trusted.
func (cli *commandLine) confirm(question string) bool {
	if !isTerminalFunc(int(os.Stdin.Fd())) {
		return true
	}
	fmt.Fprint(cli.out, question)
	answer, err := readLineFunc()
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func readLine() (string, error) {
	return bufio.NewReader(os.Stdin).ReadString('\n')
}

func parseWeekdays(s string) ([]time.Weekday, error) {
	days, err := schedule.ParseWeekdays(s)
	if err != nil {
		return nil, fmt.Errorf("invalid weekdays %q: %w", s, err)
	}
	return days, nil
}
