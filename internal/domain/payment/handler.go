package payment

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careportal/portal/internal/platform/auth"
	"github.com/careportal/portal/internal/platform/webhook"
	"github.com/careportal/portal/pkg/pagination"
)

type Handler struct {
	service *Service
	// secret shared with the payment processor; signs every inbound
	// webhook body.
	webhookSecret string
}

func NewHandler(service *Service, webhookSecret string) *Handler {
	return &Handler{service: service, webhookSecret: webhookSecret}
}

// RegisterRoutes wires staff payment queries onto api and the processor
// webhook onto public. The webhook is authenticated by its HMAC
// signature, not by a bearer token.
func (h *Handler) RegisterRoutes(api *echo.Group, public *echo.Group) {
	public.POST("/webhooks/payments", h.ProcessorWebhook)

	staff := auth.RequireRole("admin", "billing")
	api.GET("/payments", h.ListPayments, staff)
	api.GET("/payments/:id", h.GetPayment, staff)
	api.GET("/statements/:id/payments", h.ListByStatement, staff)
}

// ProcessorWebhook ingests a payment event from the processor. The raw
// body is verified against X-Webhook-Signature before any parsing.
func (h *Handler) ProcessorWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	sig := c.Request().Header.Get(webhook.SignatureHeader)
	sig = strings.TrimPrefix(sig, "sha256=")
	if sig == "" || !webhook.VerifySignature(body, h.webhookSecret, sig) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook signature")
	}

	var evt ProcessorEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid webhook payload")
	}

	p, applied, err := h.service.ProcessEvent(c.Request().Context(), &evt)
	if err != nil {
		if isStatementNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "statement not found")
		}
		if strings.Contains(err.Error(), "required") || strings.Contains(err.Error(), "invalid") ||
			strings.Contains(err.Error(), "negative") {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process payment event")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"payment_id": p.ID,
		"applied":    applied,
	})
}

func (h *Handler) GetPayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payment id")
	}
	p, err := h.service.GetPayment(c.Request().Context(), id)
	if err != nil {
		if err == ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "payment not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get payment")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListByStatement(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid statement id")
	}
	items, err := h.service.ListByStatement(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list payments")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"payments": items})
}

func (h *Handler) ListPayments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.service.ListPayments(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list payments")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
