package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type printer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
	Notes string `json:"notes"`
}

func (s *server) handlePrintersList(w http.ResponseWriter, r *http.Request) {
	printers, err := s.listPrinters(r.Context())
	if err != nil {
		s.serverError(w, "failed to load printers", err)
		return
	}
	s.writeJSON(w, http.StatusOK, printers)
}

func (s *server) handlePrinterCreate(w http.ResponseWriter, r *http.Request) {
	var p printer
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(p.Name) == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	result, err := s.db.ExecContext(r.Context(), `
		INSERT INTO printers (name, model, notes)
		VALUES (?, ?, ?)
	`, p.Name, p.Model, p.Notes)
	if err != nil {
		s.serverError(w, "failed to create printer", err)
		return
	}

	p.ID, err = result.LastInsertId()
	if err != nil {
		s.serverError(w, "failed to create printer", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

func (s *server) handlePrinterUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid printer id")
		return
	}

	var p printer
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(p.Name) == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	result, err := s.db.ExecContext(r.Context(), `
		UPDATE printers
		SET
			name = ?,
			model = ?,
			notes = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, p.Name, p.Model, p.Notes, id)
	if err != nil {
		s.serverError(w, "failed to update printer", err)
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.serverError(w, "failed to update printer", err)
		return
	}
	if affected == 0 {
		s.writeError(w, http.StatusNotFound, "printer not found")
		return
	}

	p.ID = id
	s.writeJSON(w, http.StatusOK, p)
}

func (s *server) handlePrinterDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid printer id")
		return
	}

	result, err := s.db.ExecContext(r.Context(), `DELETE FROM printers WHERE id = ?`, id)
	if err != nil {
		s.serverError(w, "failed to delete printer", err)
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.serverError(w, "failed to delete printer", err)
		return
	}
	if affected == 0 {
		s.writeError(w, http.StatusNotFound, "printer not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *server) listPrinters(ctx context.Context) ([]printer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, model, notes
		FROM printers
		ORDER BY name COLLATE NOCASE, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query printers: %w", err)
	}
	defer rows.Close()

	printers := make([]printer, 0)
	for rows.Next() {
		var p printer
		if err := rows.Scan(&p.ID, &p.Name, &p.Model, &p.Notes); err != nil {
			return nil, fmt.Errorf("scan printer: %w", err)
		}
		printers = append(printers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate printers: %w", err)
	}

	return printers, nil
}
