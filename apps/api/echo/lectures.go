package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/letsspeak/core/schedule"
)

type lectureApi struct {
	svc      schedule.Service
	validate *validator.Validate
}

func registerLectureAPI(g *echo.Group, svc schedule.Service, validate *validator.Validate, auth ...echo.MiddlewareFunc) {
	api := lectureApi{svc: svc, validate: validate}

	lg := g.Group("/lectures/:id", auth...)
	lg.GET("", api.retrieve)
	lg.POST("/postpone", api.postpone)
	lg.GET("/conflicts", api.checkConflicts)
	lg.POST("/cancel-postponement", api.cancelPostponement)
	lg.POST("/attendance", api.recordAttendance)
}

// Handlers

func (api *lectureApi) retrieve(ctx echo.Context) error {
	lec, err := api.svc.GetLecture(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting lecture")
	}
	return respond(ctx, http.StatusOK, "Lecture retrieved", lec)
}

func (api *lectureApi) postpone(ctx echo.Context) error {
	var data schedule.PostponeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PostponeRequest")
	}
	data.LectureID = ctx.Param("id")
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	res, err := api.svc.Postpone(ctx.Request().Context(), contextActor(ctx), data)
	if err != nil {
		return errors.Wrap(err, "postponing lecture")
	}
	return respond(ctx, http.StatusOK, "Lecture postponed successfully", res)
}

func (api *lectureApi) checkConflicts(ctx echo.Context) error {
	var data schedule.CheckConflictsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CheckConflictsRequest")
	}
	data.LectureID = ctx.Param("id")
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	report, err := api.svc.CheckConflicts(ctx.Request().Context(), contextActor(ctx), data)
	if err != nil {
		return errors.Wrap(err, "checking conflicts")
	}
	return respond(ctx, http.StatusOK, report.Message, report)
}

func (api *lectureApi) cancelPostponement(ctx echo.Context) error {
	res, err := api.svc.CancelPostponement(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling postponement")
	}
	return respond(ctx, http.StatusOK, "Postponement cancelled successfully", res)
}

func (api *lectureApi) recordAttendance(ctx echo.Context) error {
	var data schedule.AttendanceRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AttendanceRequest")
	}
	data.LectureID = ctx.Param("id")
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	lec, err := api.svc.RecordAttendance(ctx.Request().Context(), contextActor(ctx), data)
	if err != nil {
		return errors.Wrap(err, "recording attendance")
	}
	return respond(ctx, http.StatusOK, "Attendance recorded", lec)
}
