package seed

import (
	"database/sql"
	"fmt"
	"sort"
)

// Defaults are the settings written at first run. Values are stored as
// strings in the settings table; the API layer coerces numeric keys.
var Defaults = map[string]string{
	"hourly_rate":           "20",
	"filament_spool_price":  "18",
	"wear_tear_markup":      "5",
	"platform_fees":         "7",
	"desired_profit_margin": "55",
	"packaging_cost":        "0.5",
	"company_name":          "",
	"currency":              "USD",
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

// Run inserts any missing default settings keys in one transaction. Existing
// values are never touched, so the seed is safe to run on every startup.
func Run(db *sql.DB) (Stats, error) {
	tx, err := db.Begin()
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}

	keys := make([]string, 0, len(Defaults))
	for key := range Defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		inserted, err := ensureSetting(tx, key, Defaults[key])
		if err != nil {
			_ = tx.Rollback()
			return Stats{}, err
		}
		if inserted {
			stats.Inserts++
		}
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func ensureSetting(tx *sql.Tx, key, value string) (bool, error) {
	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM settings WHERE key = ? LIMIT 1)`, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("check setting %q existence: %w", key, err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)`, key, value); err != nil {
		return false, fmt.Errorf("insert default setting %q: %w", key, err)
	}
	return true, nil
}
