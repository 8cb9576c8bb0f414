package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/letsspeak/core/schedule"
)

type courseApi struct {
	svc      schedule.Service
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, svc schedule.Service, validate *validator.Validate, auth ...echo.MiddlewareFunc) {
	api := courseApi{svc: svc, validate: validate}

	cg := g.Group("/courses/:id", auth...)
	cg.GET("/lectures", api.queryLectures)
	cg.GET("/postponements", api.queryPostponements)
	cg.GET("/postponement-stats", api.postponementStats)
	cg.GET("/completed-lectures", api.completedLectures)
	cg.POST("/schedule", api.generateSchedule)
}

// Handlers

func (api *courseApi) queryLectures(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	lectures, err := api.svc.ListLectures(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"), ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "listing lectures")
	}
	return respond(ctx, http.StatusOK, "Lectures retrieved", lectures)
}

func (api *courseApi) queryPostponements(ctx echo.Context) error {
	postponements, err := api.svc.ListPostponements(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing postponements")
	}
	return respond(ctx, http.StatusOK, "Postponements retrieved", postponements)
}

func (api *courseApi) postponementStats(ctx echo.Context) error {
	stats, err := api.svc.PostponementStats(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting postponement stats")
	}
	return respond(ctx, http.StatusOK, "Postponement stats retrieved", stats)
}

func (api *courseApi) completedLectures(ctx echo.Context) error {
	courseID := ctx.Param("id")
	n, err := api.svc.CompletedLectureCount(ctx.Request().Context(), contextActor(ctx), courseID)
	if err != nil {
		return errors.Wrap(err, "counting completed lectures")
	}
	return respond(ctx, http.StatusOK, "Completed lectures counted", echo.Map{
		"course_id":          courseID,
		"completed_lectures": n,
	})
}

func (api *courseApi) generateSchedule(ctx echo.Context) error {
	var data schedule.GenerateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateRequest")
	}
	data.CourseID = ctx.Param("id")
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	lectures, err := api.svc.GenerateSchedule(ctx.Request().Context(), contextActor(ctx), data)
	if err != nil {
		return errors.Wrap(err, "generating schedule")
	}
	return respond(ctx, http.StatusCreated, "Schedule generated", lectures)
}
