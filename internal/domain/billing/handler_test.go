package billing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careportal/portal/internal/platform/registry"
)

func doGetBalances(t *testing.T, h *Handler, id string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	if err := h.GetBalances(c); err != nil {
		he, ok := err.(*echo.HTTPError)
		if !ok {
			t.Fatalf("GetBalances returned error: %v", err)
		}
		rec.Code = he.Code
	}
	return rec
}

func TestHandler_GetBalances_MissingData(t *testing.T) {
	resolver, patients, _, id := newFixture()
	patients.data[id].FirstName = nil
	h := NewHandler(resolver)

	rec := doGetBalances(t, h, id.String())
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestHandler_GetBalances_NotFound(t *testing.T) {
	resolver, _, _, id := newFixture()
	h := NewHandler(resolver)

	rec := doGetBalances(t, h, id.String())
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandler_GetBalances_Conflict(t *testing.T) {
	resolver, _, reg, id := newFixture()
	reg.candidates = []registry.Candidate{{ExternalID: "a"}, {ExternalID: "b"}, {ExternalID: "c"}}
	h := NewHandler(resolver)

	rec := doGetBalances(t, h, id.String())
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"candidate_count":3`) {
		t.Errorf("body = %s, want candidate_count 3", rec.Body.String())
	}
}

func TestHandler_GetBalances_UpstreamServerError(t *testing.T) {
	resolver, _, reg, id := newFixture()
	reg.lookupErr = &registry.StatusError{StatusCode: 502, Message: "bad gateway"}
	h := NewHandler(resolver)

	rec := doGetBalances(t, h, id.String())
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestHandler_GetBalances_UpstreamClientError(t *testing.T) {
	resolver, _, reg, id := newFixture()
	reg.lookupErr = &registry.StatusError{StatusCode: 422, Message: "bad query"}
	h := NewHandler(resolver)

	rec := doGetBalances(t, h, id.String())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandler_GetBalances_Success(t *testing.T) {
	resolver, _, reg, id := newFixture()
	reg.candidates = []registry.Candidate{{ExternalID: "ext-9", PersonNumber: "900"}}
	reg.balances = &registry.BalancesPayload{TotalAmountDue: decPtr("55.00")}
	h := NewHandler(resolver)

	rec := doGetBalances(t, h, id.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"success"`) || !strings.Contains(body, "ext-9") {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestHandler_GetBalances_BadID(t *testing.T) {
	resolver, _, _, _ := newFixture()
	h := NewHandler(resolver)

	rec := doGetBalances(t, h, "not-a-uuid")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandler_GetBalances_UnknownPatient(t *testing.T) {
	resolver, _, _, _ := newFixture()
	h := NewHandler(resolver)

	rec := doGetBalances(t, h, uuid.New().String())
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandler_GetBalances_PatientLookupFailure(t *testing.T) {
	resolver, patients, _, id := newFixture()
	patients.getByIDErr = errors.New("connection refused")
	h := NewHandler(resolver)

	// An infrastructure failure is not a missing patient.
	rec := doGetBalances(t, h, id.String())
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
