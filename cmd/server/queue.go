package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	statusPending   = "pending"
	statusPrinting  = "printing"
	statusCompleted = "completed"
	statusCanceled  = "canceled"
)

type printerRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type queueItem struct {
	ID        int64       `json:"id"`
	ItemName  string      `json:"item_name"`
	PrinterID *int64      `json:"printer_id,omitempty"`
	Status    string      `json:"status"`
	Position  int64       `json:"position"`
	Printer   *printerRef `json:"printer,omitempty"`
}

func validQueueStatus(status string) bool {
	switch status {
	case statusPending, statusPrinting, statusCompleted, statusCanceled:
		return true
	}
	return false
}

func (s *server) handleQueueList(w http.ResponseWriter, r *http.Request) {
	items, err := s.listQueue(r.Context())
	if err != nil {
		s.serverError(w, "failed to load print queue", err)
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *server) handleQueueItemCreate(w http.ResponseWriter, r *http.Request) {
	var item queueItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(item.ItemName) == "" {
		s.writeError(w, http.StatusBadRequest, "item_name is required")
		return
	}
	if item.Status == "" {
		item.Status = statusPending
	}
	if !validQueueStatus(item.Status) {
		s.writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	// New items join the end of the queue: max position plus one, or 0 when
	// the queue is empty.
	result, err := s.db.ExecContext(r.Context(), `
		INSERT INTO print_queue (item_name, printer_id, status, position)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(position) + 1, 0) FROM print_queue))
	`, item.ItemName, nullableID(item.PrinterID), item.Status)
	if err != nil {
		if isForeignKeyViolation(err) {
			s.writeError(w, http.StatusBadRequest, "printer not found")
			return
		}
		s.serverError(w, "failed to create queue item", err)
		return
	}

	id, err := result.LastInsertId()
	if err != nil {
		s.serverError(w, "failed to create queue item", err)
		return
	}

	created, err := s.getQueueItem(r.Context(), id)
	if err != nil {
		s.serverError(w, "failed to load queue item", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

// handleQueueReorder atomically reassigns positions to match the supplied
// id order, then returns the full queue. If any id is unknown nothing moves.
func (s *server) handleQueueReorder(w http.ResponseWriter, r *http.Request) {
	var payload []struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ids := make([]int64, len(payload))
	for i, entry := range payload {
		ids[i] = entry.ID
	}

	if err := s.reorderQueue(r.Context(), ids); err != nil {
		var missing *missingQueueItemError
		if errors.As(err, &missing) {
			s.writeError(w, http.StatusNotFound, missing.Error())
			return
		}
		s.serverError(w, "failed to reorder print queue", err)
		return
	}

	items, err := s.listQueue(r.Context())
	if err != nil {
		s.serverError(w, "failed to load print queue", err)
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *server) handleQueueItemUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid queue item id")
		return
	}

	var item queueItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(item.ItemName) == "" {
		s.writeError(w, http.StatusBadRequest, "item_name is required")
		return
	}
	if !validQueueStatus(item.Status) {
		s.writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	// Position is owned by the reorder operation and not editable here.
	result, err := s.db.ExecContext(r.Context(), `
		UPDATE print_queue
		SET
			item_name = ?,
			printer_id = ?,
			status = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, item.ItemName, nullableID(item.PrinterID), item.Status, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			s.writeError(w, http.StatusBadRequest, "printer not found")
			return
		}
		s.serverError(w, "failed to update queue item", err)
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.serverError(w, "failed to update queue item", err)
		return
	}
	if affected == 0 {
		s.writeError(w, http.StatusNotFound, "queue item not found")
		return
	}

	updated, err := s.getQueueItem(r.Context(), id)
	if err != nil {
		s.serverError(w, "failed to load queue item", err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *server) handleQueueItemDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid queue item id")
		return
	}

	result, err := s.db.ExecContext(r.Context(), `DELETE FROM print_queue WHERE id = ?`, id)
	if err != nil {
		s.serverError(w, "failed to delete queue item", err)
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.serverError(w, "failed to delete queue item", err)
		return
	}
	if affected == 0 {
		s.writeError(w, http.StatusNotFound, "queue item not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type missingQueueItemError struct {
	ID int64
}

func (e *missingQueueItemError) Error() string {
	return fmt.Sprintf("queue item %d not found", e.ID)
}

// reorderQueue runs the whole reposition as one check-and-set transaction:
// every update must hit exactly one row or the transaction rolls back,
// leaving all prior positions intact. Items absent from ids keep theirs.
func (s *server) reorderQueue(ctx context.Context, ids []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder transaction: %w", err)
	}

	for index, id := range ids {
		result, err := tx.ExecContext(ctx, `
			UPDATE print_queue
			SET position = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, index, id)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("update queue position: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("update queue position: %w", err)
		}
		if affected == 0 {
			_ = tx.Rollback()
			return &missingQueueItemError{ID: id}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder transaction: %w", err)
	}
	return nil
}

func (s *server) listQueue(ctx context.Context) ([]queueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.item_name, q.printer_id, q.status, q.position, p.name
		FROM print_queue q
		LEFT JOIN printers p ON p.id = q.printer_id
		ORDER BY q.position, q.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query print queue: %w", err)
	}
	defer rows.Close()

	items := make([]queueItem, 0)
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate print queue: %w", err)
	}

	return items, nil
}

func (s *server) getQueueItem(ctx context.Context, id int64) (queueItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT q.id, q.item_name, q.printer_id, q.status, q.position, p.name
		FROM print_queue q
		LEFT JOIN printers p ON p.id = q.printer_id
		WHERE q.id = ?
	`, id)
	return scanQueueItem(row)
}

func scanQueueItem(row rowScanner) (queueItem, error) {
	var item queueItem
	var printerID sql.NullInt64
	var printerName sql.NullString
	if err := row.Scan(&item.ID, &item.ItemName, &printerID, &item.Status, &item.Position, &printerName); err != nil {
		if err == sql.ErrNoRows {
			return queueItem{}, err
		}
		return queueItem{}, fmt.Errorf("scan queue item: %w", err)
	}
	if printerID.Valid {
		item.PrinterID = &printerID.Int64
		item.Printer = &printerRef{ID: printerID.Int64, Name: printerName.String}
	}
	return item, nil
}

func nullableID(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
