package statement

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/careportal/portal/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo, *Statement) {
	svc, _, _, st := fixture()
	issuer := auth.NewViewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Minute)
	h := NewHandler(svc, issuer)
	e := echo.New()
	return h, e, st
}

func doVerify(t *testing.T, h *Handler, e *echo.Echo, code, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("code")
	c.SetParamValues(code)
	if err := h.VerifyStatement(c); err != nil {
		t.Fatalf("VerifyStatement returned error: %v", err)
	}
	return rec
}

func TestHandler_Verify_InvalidCode(t *testing.T) {
	h, e, _ := newTestHandler()
	rec := doVerify(t, h, e, "NOSUCHCD", `{"date_of_birth":"01/15/1990"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"invalid_code"`) {
		t.Errorf("body = %s, want invalid_code reason", rec.Body.String())
	}
}

func TestHandler_Verify_BadFormat(t *testing.T) {
	h, e, st := newTestHandler()
	rec := doVerify(t, h, e, st.ShortCode, `{"date_of_birth":"not-a-date"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestHandler_Verify_Mismatch(t *testing.T) {
	h, e, st := newTestHandler()
	rec := doVerify(t, h, e, st.ShortCode, `{"date_of_birth":"12/31/1999"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"mismatch"`) {
		t.Errorf("body = %s, want mismatch reason", rec.Body.String())
	}
}

func TestHandler_Verify_Success(t *testing.T) {
	h, e, st := newTestHandler()
	rec := doVerify(t, h, e, st.ShortCode, `{"date_of_birth":"1990-01-15"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"view_token"`) {
		t.Error("expected a view token in the success response")
	}
	if !strings.Contains(body, `"statement"`) {
		t.Error("expected the statement payload in the success response")
	}
}

func TestHandler_Verify_DraftGone(t *testing.T) {
	h, e, st := newTestHandler()
	repo := h.svc.statements.(*mockStatementRepo)
	repo.data[st.ID].Status = StatusDraft

	rec := doVerify(t, h, e, st.ShortCode, `{"date_of_birth":"01/15/1990"}`)
	if rec.Code != http.StatusGone {
		t.Errorf("status = %d, want 410", rec.Code)
	}
}

func TestHandler_ViewStatement_RequiresToken(t *testing.T) {
	h, e, st := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("code")
	c.SetParamValues(st.ShortCode)

	err := h.ViewStatement(c)
	if err == nil {
		t.Fatal("expected error without a view token")
	}
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("error = %v, want 401", err)
	}
}

func TestHandler_ViewStatement_WithToken(t *testing.T) {
	h, e, st := newTestHandler()

	token, err := h.tokens.Issue(st.ID, st.ShortCode)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("code")
	c.SetParamValues(st.ShortCode)

	if err := h.ViewStatement(c); err != nil {
		t.Fatalf("ViewStatement failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
