package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type sparePart struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Cost     float64 `json:"cost"`
	Notes    string  `json:"notes"`
}

func (p sparePart) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if p.Quantity < 0 {
		return fmt.Errorf("quantity must not be negative")
	}
	if p.Cost < 0 {
		return fmt.Errorf("cost must not be negative")
	}
	return nil
}

func (s *server) handlePartsList(w http.ResponseWriter, r *http.Request) {
	parts, err := s.listSpareParts(r.Context())
	if err != nil {
		s.serverError(w, "failed to load spare parts", err)
		return
	}
	s.writeJSON(w, http.StatusOK, parts)
}

func (s *server) handlePartCreate(w http.ResponseWriter, r *http.Request) {
	var part sparePart
	if err := json.NewDecoder(r.Body).Decode(&part); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := part.validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.db.ExecContext(r.Context(), `
		INSERT INTO spare_parts (name, quantity, cost, notes)
		VALUES (?, ?, ?, ?)
	`, part.Name, part.Quantity, part.Cost, part.Notes)
	if err != nil {
		s.serverError(w, "failed to create spare part", err)
		return
	}

	part.ID, err = result.LastInsertId()
	if err != nil {
		s.serverError(w, "failed to create spare part", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, part)
}

func (s *server) handlePartUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid spare part id")
		return
	}

	var part sparePart
	if err := json.NewDecoder(r.Body).Decode(&part); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := part.validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.db.ExecContext(r.Context(), `
		UPDATE spare_parts
		SET
			name = ?,
			quantity = ?,
			cost = ?,
			notes = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, part.Name, part.Quantity, part.Cost, part.Notes, id)
	if err != nil {
		s.serverError(w, "failed to update spare part", err)
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.serverError(w, "failed to update spare part", err)
		return
	}
	if affected == 0 {
		s.writeError(w, http.StatusNotFound, "spare part not found")
		return
	}

	part.ID = id
	s.writeJSON(w, http.StatusOK, part)
}

func (s *server) handlePartDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid spare part id")
		return
	}

	result, err := s.db.ExecContext(r.Context(), `DELETE FROM spare_parts WHERE id = ?`, id)
	if err != nil {
		s.serverError(w, "failed to delete spare part", err)
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.serverError(w, "failed to delete spare part", err)
		return
	}
	if affected == 0 {
		s.writeError(w, http.StatusNotFound, "spare part not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *server) listSpareParts(ctx context.Context) ([]sparePart, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, quantity, cost, notes
		FROM spare_parts
		ORDER BY name COLLATE NOCASE, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query spare parts: %w", err)
	}
	defer rows.Close()

	parts := make([]sparePart, 0)
	for rows.Next() {
		var part sparePart
		if err := rows.Scan(&part.ID, &part.Name, &part.Quantity, &part.Cost, &part.Notes); err != nil {
			return nil, fmt.Errorf("scan spare part: %w", err)
		}
		parts = append(parts, part)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spare parts: %w", err)
	}

	return parts, nil
}
