package adminapi

import (
	"net/http"
	"strings"

	"github.com/flasheng/flasheng/internal/webserver"
	"github.com/flasheng/flasheng/pkg/metrics"
	"github.com/labstack/echo/v4"
)

type resolvePayload struct {
	Note string `json:"note" validate:"omitempty,max=500"`
}

func registerReconcileRoutes() {
	webserver.ApiGET("/orders/reconcile", listReconcile)
	webserver.ApiPOST("/orders/reconcile/:entryId/resolve", resolveReconcile)
}

// listReconcile pending entries, or resolved ones with state=resolved
func listReconcile(c echo.Context) error {
	journal := GetAppContext(c).Journal()
	ctx := c.Request().Context()
	if c.QueryParam("state") == "resolved" {
		rows, err := journal.Resolved(ctx)
		if err != nil {
			return failFromError(c, err)
		}
		return ok(c, rows)
	}
	rows, err := journal.Pending(ctx)
	if err != nil {
		return failFromError(c, err)
	}
	return ok(c, rows)
}

// resolveReconcile an operator has repaired the stores by hand
func resolveReconcile(c echo.Context) error {
	id, valid := parseIDParam(c, "entryId")
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid entry ID", nil)
	}
	var payload resolvePayload
	if err := bindAndValidate(c, &payload); err != nil {
		return failFromError(c, err)
	}
	appCtx := GetAppContext(c)
	entry, err := appCtx.Journal().Resolve(c.Request().Context(), id, strings.TrimSpace(payload.Note))
	if err != nil {
		return failFromError(c, err)
	}
	if n, err := appCtx.Journal().Count(); err == nil {
		metrics.SetGauge(metrics.ReconcilePending, int64(n))
	}
	return ok(c, entry)
}
