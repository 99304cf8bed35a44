package billing

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careportal/portal/internal/domain/patient"
	"github.com/careportal/portal/internal/platform/auth"
	"github.com/careportal/portal/internal/platform/registry"
)

type Handler struct {
	resolver *Resolver
}

func NewHandler(resolver *Resolver) *Handler {
	return &Handler{resolver: resolver}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "billing"))
	g.GET("/patients/:id/balances", h.GetBalances)
}

type balancesResponse struct {
	Reason          string              `json:"reason"`
	Candidate       *registry.Candidate `json:"candidate,omitempty"`
	Balances        *registry.Balances  `json:"balances,omitempty"`
	CandidateCount  int                 `json:"candidate_count,omitempty"`
	UpstreamStatus  int                 `json:"upstream_status,omitempty"`
	UpstreamMessage string              `json:"upstream_message,omitempty"`
}

func (h *Handler) GetBalances(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	res, err := h.resolver.ResolveBalances(c.Request().Context(), patientID)
	if errors.Is(err, patient.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "balance resolution failed")
	}

	body := balancesResponse{Reason: res.Outcome.Reason()}

	switch res.Outcome {
	case ResolveMissingPatientData:
		return c.JSON(http.StatusUnprocessableEntity, body)
	case ResolvePersonNotFound:
		return c.JSON(http.StatusNotFound, body)
	case ResolveMultiplePersonsFound:
		body.CandidateCount = res.CandidateCount
		return c.JSON(http.StatusConflict, body)
	case ResolveUpstreamError:
		body.UpstreamStatus = res.UpstreamStatus
		body.UpstreamMessage = res.UpstreamMessage
		status := http.StatusBadGateway
		if res.UpstreamStatus >= 400 && res.UpstreamStatus < 500 {
			status = http.StatusBadRequest
		}
		return c.JSON(status, body)
	}

	body.Candidate = res.Candidate
	body.Balances = res.Balances
	return c.JSON(http.StatusOK, body)
}
