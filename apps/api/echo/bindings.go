package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/letsspeak/core"
)

var orderingParam = "ordering"

// Ordering reads "?ordering=date,-sequence": a leading "-" sorts descending.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

type envelope struct {
	Success bool        `json:"success"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func respond(ctx echo.Context, status int, message string, data interface{}) error {
	return ctx.JSON(status, envelope{Success: true, Code: "ok", Message: message, Data: data})
}
