package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// newTestDeleteKeyRequest drives handleDeleteKey through a minimal chi
// router so chi.URLParam resolves the way it would in the real mux.
func newTestDeleteKeyRequest(t *testing.T, s *Server, keyID string) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	r.Delete("/keys/{key_id}", s.handleDeleteKey)

	req := httptest.NewRequest(http.MethodDelete, "/keys/"+keyID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}
