package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"sims/internal/pricing"
)

// numericSettingKeys are coerced to numbers on read and validated on write.
// Everything else (company name and friends) passes through as free-form text.
var numericSettingKeys = map[string]bool{
	"hourly_rate":           true,
	"filament_spool_price":  true,
	"wear_tear_markup":      true,
	"platform_fees":         true,
	"desired_profit_margin": true,
	"packaging_cost":        true,
}

func (s *server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	settings, err := s.loadSettings(r.Context())
	if err != nil {
		s.serverError(w, "failed to load settings", err)
		return
	}
	s.writeJSON(w, http.StatusOK, coerceSettings(settings))
}

func (s *server) handleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()

	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updates := make(map[string]string, len(payload))
	for key, raw := range payload {
		value, err := settingValueToString(key, raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		updates[key] = value
	}

	if err := s.storeSettings(r.Context(), updates); err != nil {
		s.serverError(w, "failed to save settings", err)
		return
	}

	settings, err := s.loadSettings(r.Context())
	if err != nil {
		s.serverError(w, "failed to load settings", err)
		return
	}
	s.writeJSON(w, http.StatusOK, coerceSettings(settings))
}

// settingValueToString converts a decoded JSON value to its stored string
// form. Numbers keep their literal representation, so 0 stays "0" instead of
// being dropped as empty.
func settingValueToString(key string, raw any) (string, error) {
	switch v := raw.(type) {
	case json.Number:
		if numericSettingKeys[key] {
			f, err := v.Float64()
			if err != nil {
				return "", fmt.Errorf("setting %q must be numeric", key)
			}
			if f < 0 {
				return "", fmt.Errorf("setting %q must not be negative", key)
			}
		}
		return v.String(), nil
	case string:
		if numericSettingKeys[key] {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return "", fmt.Errorf("setting %q must be numeric", key)
			}
			if f < 0 {
				return "", fmt.Errorf("setting %q must not be negative", key)
			}
		}
		return v, nil
	default:
		return "", fmt.Errorf("setting %q has unsupported value type", key)
	}
}

// coerceSettings turns stored strings into the wire representation: numeric
// keys become numbers, everything else stays a string.
func coerceSettings(settings map[string]string) map[string]any {
	out := make(map[string]any, len(settings))
	for key, value := range settings {
		if numericSettingKeys[key] {
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				f = 0
			}
			out[key] = f
			continue
		}
		out[key] = value
	}
	return out
}

func (s *server) loadSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}

	return settings, nil
}

func (s *server) storeSettings(ctx context.Context, updates map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settings transaction: %w", err)
	}

	for key, value := range updates {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value)
			VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				updated_at = CURRENT_TIMESTAMP
		`, key, value); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert setting %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settings transaction: %w", err)
	}
	return nil
}

// pricingSnapshot resolves the current settings rows into the immutable
// snapshot the margin calculator consumes. Missing keys read as 0.
func (s *server) pricingSnapshot(ctx context.Context) (pricing.Settings, error) {
	settings, err := s.loadSettings(ctx)
	if err != nil {
		return pricing.Settings{}, err
	}

	read := func(key string) float64 {
		f, err := strconv.ParseFloat(settings[key], 64)
		if err != nil {
			return 0
		}
		return f
	}

	return pricing.Settings{
		HourlyRate:          read("hourly_rate"),
		FilamentSpoolPrice:  read("filament_spool_price"),
		WearTearMarkup:      read("wear_tear_markup"),
		PlatformFees:        read("platform_fees"),
		DesiredProfitMargin: read("desired_profit_margin"),
		PackagingCost:       read("packaging_cost"),
	}, nil
}
