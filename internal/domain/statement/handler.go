package statement

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careportal/portal/internal/domain/auditevent"
	"github.com/careportal/portal/internal/platform/auth"
	"github.com/careportal/portal/pkg/pagination"
)

type Handler struct {
	svc    *Service
	tokens *auth.ViewTokenIssuer
}

func NewHandler(svc *Service, tokens *auth.ViewTokenIssuer) *Handler {
	return &Handler{svc: svc, tokens: tokens}
}

// RegisterRoutes mounts staff routes on api (behind auth) and the
// verification flow on public (no auth).
func (h *Handler) RegisterRoutes(api *echo.Group, public *echo.Group) {
	role := auth.RequireRole("admin", "billing")

	staff := api.Group("", role)
	staff.GET("/statements", h.ListStatements)
	staff.GET("/statements/:id", h.GetStatement)
	staff.GET("/patients/:patientId/statements", h.ListByPatient)
	staff.POST("/statements", h.CreateStatement)
	staff.PUT("/statements/:id", h.UpdateStatement)
	staff.POST("/statements/:id/send", h.SendStatement)
	staff.POST("/statements/:id/reject", h.RejectStatement)
	staff.DELETE("/statements/:id", h.DeleteStatement)

	public.POST("/statements/:code/verify", h.VerifyStatement)
	public.GET("/statements/:code", h.ViewStatement)
}

// -- Public endpoints --

type verifyRequest struct {
	DateOfBirth string `json:"date_of_birth"`
}

type verifyResponse struct {
	Reason    string     `json:"reason"`
	Statement *Statement `json:"statement,omitempty"`
	ViewToken string     `json:"view_token,omitempty"`
}

// VerifyStatement is the public date-of-birth check. Every outcome returns
// the machine reason; only success returns the statement and a short-lived
// view token.
func (h *Handler) VerifyStatement(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := auditevent.WithClientInfo(c.Request().Context(), auditevent.ClientInfo{
		RemoteAddr: c.RealIP(),
		UserAgent:  c.Request().UserAgent(),
	})
	res, err := h.svc.Verify(ctx, c.Param("code"), req.DateOfBirth)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "verification failed")
	}

	body := verifyResponse{Reason: res.Outcome.Reason()}

	switch res.Outcome {
	case VerifyInvalidCode:
		return c.JSON(http.StatusNotFound, body)
	case VerifyUnavailable:
		return c.JSON(http.StatusGone, body)
	case VerifyInvalidFormat:
		return c.JSON(http.StatusUnprocessableEntity, body)
	case VerifyNotAvailable, VerifyMismatch:
		return c.JSON(http.StatusForbidden, body)
	}

	body.Statement = res.Statement
	if h.tokens != nil {
		token, err := h.tokens.Issue(res.Statement.ID, res.Statement.ShortCode)
		if err == nil {
			body.ViewToken = token
		}
	}
	return c.JSON(http.StatusOK, body)
}

// ViewStatement returns a verified statement. The bearer token must have
// been issued by a successful verification of the same statement.
func (h *Handler) ViewStatement(c echo.Context) error {
	if h.tokens == nil {
		return echo.NewHTTPError(http.StatusForbidden, "viewing is not enabled")
	}

	raw := strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
	if raw == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing view token")
	}
	stmtID, err := h.tokens.Verify(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid view token")
	}

	st, err := h.svc.GetByShortCode(c.Request().Context(), c.Param("code"))
	if err != nil || st.ID != stmtID {
		return echo.NewHTTPError(http.StatusNotFound, "statement not found")
	}
	return c.JSON(http.StatusOK, st)
}

// -- Staff endpoints --

func (h *Handler) CreateStatement(c echo.Context) error {
	var st Statement
	if err := c.Bind(&st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateStatement(c.Request().Context(), &st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, st)
}

func (h *Handler) GetStatement(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	st, err := h.svc.GetStatement(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "statement not found")
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) ListStatements(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListStatements(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateStatement(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var st Statement
	if err := c.Bind(&st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st.ID = id
	if err := h.svc.UpdateStatement(c.Request().Context(), &st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) SendStatement(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	st, err := h.svc.SendStatement(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) RejectStatement(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	st, err := h.svc.RejectStatement(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) DeleteStatement(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteStatement(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
