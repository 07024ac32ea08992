package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type filament struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	Material        string   `json:"material"`
	Color           string   `json:"color"`
	Quantity        float64  `json:"quantity"`
	Cost            *float64 `json:"cost"` // per kg; null means global spool price
	MinimumQuantity float64  `json:"minimum_quantity"`
}

func (f filament) validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if f.Quantity < 0 {
		return fmt.Errorf("quantity must not be negative")
	}
	if f.Cost != nil && *f.Cost < 0 {
		return fmt.Errorf("cost must not be negative")
	}
	if f.MinimumQuantity < 0 {
		return fmt.Errorf("minimum_quantity must not be negative")
	}
	return nil
}

func (s *server) handleFilamentsList(w http.ResponseWriter, r *http.Request) {
	filaments, err := s.listFilaments(r.Context())
	if err != nil {
		s.serverError(w, "failed to load filaments", err)
		return
	}
	s.writeJSON(w, http.StatusOK, filaments)
}

func (s *server) handleFilamentGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid filament id")
		return
	}

	fil, err := s.getFilament(r.Context(), id)
	if err != nil {
		if err == sql.ErrNoRows {
			s.writeError(w, http.StatusNotFound, "filament not found")
			return
		}
		s.serverError(w, "failed to load filament", err)
		return
	}
	s.writeJSON(w, http.StatusOK, fil)
}

func (s *server) handleFilamentCreate(w http.ResponseWriter, r *http.Request) {
	var fil filament
	if err := json.NewDecoder(r.Body).Decode(&fil); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := fil.validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.db.ExecContext(r.Context(), `
		INSERT INTO filaments (name, material, color, quantity, cost, minimum_quantity)
		VALUES (?, ?, ?, ?, ?, ?)
	`, fil.Name, fil.Material, fil.Color, fil.Quantity, nullableFloat(fil.Cost), fil.MinimumQuantity)
	if err != nil {
		s.serverError(w, "failed to create filament", err)
		return
	}

	fil.ID, err = result.LastInsertId()
	if err != nil {
		s.serverError(w, "failed to create filament", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, fil)
}

func (s *server) handleFilamentUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid filament id")
		return
	}

	var fil filament
	if err := json.NewDecoder(r.Body).Decode(&fil); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := fil.validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.db.ExecContext(r.Context(), `
		UPDATE filaments
		SET
			name = ?,
			material = ?,
			color = ?,
			quantity = ?,
			cost = ?,
			minimum_quantity = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, fil.Name, fil.Material, fil.Color, fil.Quantity, nullableFloat(fil.Cost), fil.MinimumQuantity, id)
	if err != nil {
		s.serverError(w, "failed to update filament", err)
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.serverError(w, "failed to update filament", err)
		return
	}
	if affected == 0 {
		s.writeError(w, http.StatusNotFound, "filament not found")
		return
	}

	fil.ID = id
	s.writeJSON(w, http.StatusOK, fil)
}

func (s *server) handleFilamentDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid filament id")
		return
	}

	result, err := s.db.ExecContext(r.Context(), `DELETE FROM filaments WHERE id = ?`, id)
	if err != nil {
		s.serverError(w, "failed to delete filament", err)
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.serverError(w, "failed to delete filament", err)
		return
	}
	if affected == 0 {
		s.writeError(w, http.StatusNotFound, "filament not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *server) listFilaments(ctx context.Context) ([]filament, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, material, color, quantity, cost, minimum_quantity
		FROM filaments
		ORDER BY name COLLATE NOCASE, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query filaments: %w", err)
	}
	defer rows.Close()

	filaments := make([]filament, 0)
	for rows.Next() {
		fil, err := scanFilament(rows)
		if err != nil {
			return nil, err
		}
		filaments = append(filaments, fil)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filaments: %w", err)
	}

	return filaments, nil
}

func (s *server) getFilament(ctx context.Context, id int64) (filament, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, material, color, quantity, cost, minimum_quantity
		FROM filaments
		WHERE id = ?
	`, id)
	return scanFilament(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFilament(row rowScanner) (filament, error) {
	var fil filament
	var cost sql.NullFloat64
	if err := row.Scan(&fil.ID, &fil.Name, &fil.Material, &fil.Color, &fil.Quantity, &cost, &fil.MinimumQuantity); err != nil {
		if err == sql.ErrNoRows {
			return filament{}, err
		}
		return filament{}, fmt.Errorf("scan filament: %w", err)
	}
	if cost.Valid {
		fil.Cost = &cost.Float64
	}
	return fil, nil
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
