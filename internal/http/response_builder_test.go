package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"buckify/internal/core"
)

func TestJSONResponseBuilder(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/x/1").
		Body(map[string]int{"n": 1}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Location"); got != "/api/x/1" {
		t.Errorf("Location = %q", got)
	}
	if w.Body.String() != "{\"n\":1}\n" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestJSONResponseBuilderNoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestJSONResponseBuilderEncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Body(map[string]any{"f": func() {}}).Write(w)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestUnprocessableEntityError(t *testing.T) {
	w := httptest.NewRecorder()
	UnprocessableEntityError("invalid", []ValidationError{{Field: "name", Message: "m", Type: "required"}}).Write(w)

	var body ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusUnprocessableEntity || body.Error != "invalid" || len(body.Details) != 1 {
		t.Errorf("got %d %+v", w.Code, body)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{core.ErrUnsupportedFile, http.StatusUnsupportedMediaType},
		{core.ErrEmptyFile, http.StatusUnprocessableEntity},
		{fmt.Errorf("parse: %w", core.ErrInvalidAmount), http.StatusUnprocessableEntity},
		{core.ErrCategoryNotFound, http.StatusNotFound},
		{core.ErrTransactionNotFound, http.StatusNotFound},
		{core.ErrImportNotFound, http.StatusNotFound},
		{core.ErrUnauthorized, http.StatusForbidden},
		{core.ErrImportNotReady, http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestServiceErrorHidesInternalErrors(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	ServiceError(w, r, "category", "list", errors.New("sqlite: database disk image is malformed"))

	var body ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusInternalServerError || body.Error != "internal server error" {
		t.Errorf("got %d %+v", w.Code, body)
	}
}
