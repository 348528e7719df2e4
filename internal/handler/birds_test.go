package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestOperationFromHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/api/birds", nil)
	req.Header.Set("X-Operation", "Added%20a%20bird")
	c := e.NewContext(req, httptest.NewRecorder())
	if got := Operation(c); got != "Added a bird" {
		t.Fatalf("operation = %q", got)
	}
}

func TestOperationHeaderWithoutEncoding(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("PUT", "/api/birds/1", nil)
	req.Header.Set("X-Operation", "Renamed the wren")
	c := e.NewContext(req, httptest.NewRecorder())
	if got := Operation(c); got != "Renamed the wren" {
		t.Fatalf("operation = %q", got)
	}
}

func TestOperationFallsBackToMethodAndPath(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("DELETE", "/api/birds/7", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	if got := Operation(c); got != "DELETE /api/birds/7" {
		t.Fatalf("operation = %q", got)
	}
}
