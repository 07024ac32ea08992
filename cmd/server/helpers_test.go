package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"sims/internal/db"
	"sims/internal/migrations"
	"sims/internal/seed"
)

func newTestServer(t *testing.T) *server {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "sims-test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	if err := migrations.Up(database, "../../migrations"); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	if _, err := seed.Run(database); err != nil {
		t.Fatalf("run seed: %v", err)
	}

	return &server{db: database, logger: zap.NewNop()}
}

func doJSON(t *testing.T, srv *server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
	}
	return out
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, want, rec.Body.String())
	}
}

func createFilament(t *testing.T, srv *server, fil filament) filament {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/api/filaments", fil)
	requireStatus(t, rec, http.StatusCreated)
	return decodeBody[filament](t, rec)
}

func createPrinter(t *testing.T, srv *server, p printer) printer {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/api/printers", p)
	requireStatus(t, rec, http.StatusCreated)
	return decodeBody[printer](t, rec)
}

func createProduct(t *testing.T, srv *server, p product) productView {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/api/products", p)
	requireStatus(t, rec, http.StatusCreated)
	return decodeBody[productView](t, rec)
}

func createQueueItem(t *testing.T, srv *server, item queueItem) queueItem {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/api/queue", item)
	requireStatus(t, rec, http.StatusCreated)
	return decodeBody[queueItem](t, rec)
}

func updateSettings(t *testing.T, srv *server, values map[string]any) {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPut, "/api/settings", values)
	requireStatus(t, rec, http.StatusOK)
}
