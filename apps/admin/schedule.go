package main

import (
	"context"
	"fmt"

	"github.com/trezcool/letsspeak/core"
	"github.com/trezcool/letsspeak/core/schedule"
)

func (cli *commandLine) addTrainer(name, email string, chatID int64) error {
	tr, err := cli.repo.CreateTrainer(context.Background(), schedule.Trainer{
		Name:           core.CleanString(name),
		Email:          core.CleanString(email, true /* lower */),
		TelegramChatID: chatID,
		IsActive:       true,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "trainer %s created: %s\n", tr.Name, tr.ID)
	return nil
}

func (cli *commandLine) addCourse(trainerID, title string, lectures int, weekdays, defaultTime string) error {
	ctx := context.Background()

	days, err := parseWeekdays(weekdays)
	if err != nil {
		return err
	}
	var tod schedule.TimeOfDay
	if defaultTime != "" {
		if tod, err = schedule.ParseTimeOfDay(defaultTime); err != nil {
			return err
		}
	}
	if _, err = cli.repo.GetTrainer(ctx, trainerID); err != nil {
		return err
	}

	c, err := cli.repo.CreateCourse(ctx, schedule.Course{
		Title:         core.CleanString(title),
		TrainerID:     trainerID,
		TotalLectures: lectures,
		Weekdays:      days,
		DefaultTime:   tod,
		Status:        schedule.CourseStatusActive,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "course %q created: %s\n", c.Title, c.ID)
	return nil
}

func (cli *commandLine) generate(courseID, start string) error {
	lectures, err := cli.svc.GenerateSchedule(context.Background(), cli.actor, schedule.GenerateRequest{
		CourseID:  courseID,
		StartDate: start,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d lectures generated\n", len(lectures))
	for _, l := range lectures {
		fmt.Fprintf(cli.out, "  #%d %s %s\n", l.Sequence, l.Date, l.ID)
	}
	return nil
}

func (cli *commandLine) stats(courseID string) error {
	s, err := cli.svc.PostponementStats(context.Background(), cli.actor, courseID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "postponements: %d/%d (remaining %d)\n", s.TotalPostponements, s.MaxAllowed, s.Remaining)
	fmt.Fprintf(cli.out, "makeup lectures: %d\n", s.MakeupLecturesCreated)
	fmt.Fprintf(cli.out, "can postpone: %t\n", s.CanPostpone)
	return nil
}

func (cli *commandLine) postpone(req schedule.PostponeRequest) error {
	res, err := cli.svc.Postpone(context.Background(), cli.actor, req)
	if err != nil {
		return err
	}
	orig, mk := res.OriginalLecture, res.NewLecture
	fmt.Fprintf(cli.out, "lecture #%d of %s postponed (%s)\n", orig.Sequence, orig.Date, orig.Attendance)
	fmt.Fprintf(cli.out, "makeup lecture #%d on %s at %s: %s\n", mk.Sequence, mk.Date, mk.Time, mk.ID)
	for _, c := range res.OverriddenConflicts {
		fmt.Fprintf(cli.out, "  overrides %q on %s at %s (%s)\n", c.CourseTitle, c.Date, c.Time, c.LectureID)
	}
	return nil
}

func (cli *commandLine) cancel(lectureID string) error {
	res, err := cli.svc.CancelPostponement(context.Background(), cli.actor, lectureID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "lecture #%d of %s is %s again\n", res.Lecture.Sequence, res.Lecture.Date, res.Lecture.Attendance)
	if res.MakeupDeleted {
		fmt.Fprintln(cli.out, "makeup lecture removed")
	}
	return nil
}
