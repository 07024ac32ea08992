package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"sims/internal/pricing"
)

type productFilamentUsage struct {
	FilamentID  int64   `json:"filament_id"`
	UsageAmount float64 `json:"filament_usage_amount"` // grams
}

type product struct {
	ID                  int64                  `json:"id"`
	Name                string                 `json:"name"`
	PrintPrepTime       float64                `json:"print_prep_time"`      // minutes
	PostProcessingTime  float64                `json:"post_processing_time"` // minutes
	AdditionalPartsCost float64                `json:"additional_parts_cost"`
	ListPrice           float64                `json:"list_price"`    // 0 means unset
	FilamentUsed        float64                `json:"filament_used"` // grams
	Notes               string                 `json:"notes"`
	Filaments           []productFilamentUsage `json:"filaments"`
}

// productView is a product augmented with the derived financial fields.
// Derived values are recomputed on every read and never persisted;
// FilamentUsed is overwritten with the recomputed association total.
type productView struct {
	product
	LaborCost         float64 `json:"labor_cost"`
	FilamentCost      float64 `json:"filament_cost"`
	WearTearCost      float64 `json:"wear_tear_cost"`
	TotalCost         float64 `json:"total_cost"`
	SuggestedPrice    float64 `json:"suggested_price"`
	SellingPrice      float64 `json:"selling_price"`
	PlatformFeeAmount float64 `json:"platform_fee_amount"`
	GrossProfit       float64 `json:"gross_profit"`
	ProfitMargin      float64 `json:"profit_margin"`
}

func (p product) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	for _, check := range []struct {
		field string
		value float64
	}{
		{"print_prep_time", p.PrintPrepTime},
		{"post_processing_time", p.PostProcessingTime},
		{"additional_parts_cost", p.AdditionalPartsCost},
		{"list_price", p.ListPrice},
		{"filament_used", p.FilamentUsed},
	} {
		if check.value < 0 {
			return fmt.Errorf("%s must not be negative", check.field)
		}
	}
	for _, usage := range p.Filaments {
		if usage.UsageAmount < 0 {
			return fmt.Errorf("filament_usage_amount must not be negative")
		}
	}
	return nil
}

func (s *server) handleProductsList(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.pricingSnapshot(r.Context())
	if err != nil {
		s.serverError(w, "failed to load settings", err)
		return
	}

	products, err := s.listProducts(r.Context())
	if err != nil {
		s.serverError(w, "failed to load products", err)
		return
	}

	views := make([]productView, 0, len(products))
	for _, p := range products {
		view, err := s.buildProductView(r.Context(), p, snapshot)
		if err != nil {
			s.writePricingError(w, err)
			return
		}
		views = append(views, view)
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *server) handleProductGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	s.respondWithProduct(w, r, id, http.StatusOK)
}

func (s *server) handleProductCreate(w http.ResponseWriter, r *http.Request) {
	var p product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := p.validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		s.serverError(w, "failed to create product", err)
		return
	}

	result, err := tx.ExecContext(r.Context(), `
		INSERT INTO products (name, print_prep_time, post_processing_time, additional_parts_cost, list_price, filament_used, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.Name, p.PrintPrepTime, p.PostProcessingTime, p.AdditionalPartsCost, p.ListPrice, p.FilamentUsed, p.Notes)
	if err != nil {
		_ = tx.Rollback()
		s.serverError(w, "failed to create product", err)
		return
	}

	id, err := result.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		s.serverError(w, "failed to create product", err)
		return
	}

	if err := replaceProductFilaments(r.Context(), tx, id, p.Filaments); err != nil {
		_ = tx.Rollback()
		var missing *missingFilamentError
		if errors.As(err, &missing) {
			s.writeError(w, http.StatusBadRequest, missing.Error())
			return
		}
		s.serverError(w, "failed to create product", err)
		return
	}

	if err := tx.Commit(); err != nil {
		s.serverError(w, "failed to create product", err)
		return
	}

	s.respondWithProduct(w, r, id, http.StatusCreated)
}

func (s *server) handleProductUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var p product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := p.validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.db.ExecContext(r.Context(), `
		UPDATE products
		SET
			name = ?,
			print_prep_time = ?,
			post_processing_time = ?,
			additional_parts_cost = ?,
			list_price = ?,
			filament_used = ?,
			notes = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, p.Name, p.PrintPrepTime, p.PostProcessingTime, p.AdditionalPartsCost, p.ListPrice, p.FilamentUsed, p.Notes, id)
	if err != nil {
		s.serverError(w, "failed to update product", err)
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.serverError(w, "failed to update product", err)
		return
	}
	if affected == 0 {
		s.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	s.respondWithProduct(w, r, id, http.StatusOK)
}

func (s *server) handleProductDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	// Association rows cascade with the product.
	result, err := s.db.ExecContext(r.Context(), `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		s.serverError(w, "failed to delete product", err)
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.serverError(w, "failed to delete product", err)
		return
	}
	if affected == 0 {
		s.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleProductFilamentsReplace swaps the product's full filament usage set
// in one transaction.
func (s *server) handleProductFilamentsReplace(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var usages []productFilamentUsage
	if err := json.NewDecoder(r.Body).Decode(&usages); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	for _, usage := range usages {
		if usage.UsageAmount < 0 {
			s.writeError(w, http.StatusBadRequest, "filament_usage_amount must not be negative")
			return
		}
	}

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		s.serverError(w, "failed to update product filaments", err)
		return
	}

	var exists bool
	if err := tx.QueryRowContext(r.Context(), `SELECT EXISTS(SELECT 1 FROM products WHERE id = ?)`, id).Scan(&exists); err != nil {
		_ = tx.Rollback()
		s.serverError(w, "failed to update product filaments", err)
		return
	}
	if !exists {
		_ = tx.Rollback()
		s.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	if err := replaceProductFilaments(r.Context(), tx, id, usages); err != nil {
		_ = tx.Rollback()
		var missing *missingFilamentError
		if errors.As(err, &missing) {
			s.writeError(w, http.StatusNotFound, missing.Error())
			return
		}
		s.serverError(w, "failed to update product filaments", err)
		return
	}

	if err := tx.Commit(); err != nil {
		s.serverError(w, "failed to update product filaments", err)
		return
	}

	s.respondWithProduct(w, r, id, http.StatusOK)
}

type missingFilamentError struct {
	ID int64
}

func (e *missingFilamentError) Error() string {
	return fmt.Sprintf("filament %d not found", e.ID)
}

func replaceProductFilaments(ctx context.Context, tx *sql.Tx, productID int64, usages []productFilamentUsage) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM product_filaments WHERE product_id = ?`, productID); err != nil {
		return fmt.Errorf("clear product filaments: %w", err)
	}

	for _, usage := range usages {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM filaments WHERE id = ?)`, usage.FilamentID).Scan(&exists); err != nil {
			return fmt.Errorf("check filament existence: %w", err)
		}
		if !exists {
			return &missingFilamentError{ID: usage.FilamentID}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO product_filaments (product_id, filament_id, filament_usage_amount)
			VALUES (?, ?, ?)
			ON CONFLICT(product_id, filament_id) DO UPDATE SET
				filament_usage_amount = filament_usage_amount + excluded.filament_usage_amount
		`, productID, usage.FilamentID, usage.UsageAmount); err != nil {
			return fmt.Errorf("insert product filament: %w", err)
		}
	}

	return nil
}

// respondWithProduct loads the product plus associations, computes the
// derived fields against a fresh settings snapshot, and writes the view.
func (s *server) respondWithProduct(w http.ResponseWriter, r *http.Request, id int64, status int) {
	snapshot, err := s.pricingSnapshot(r.Context())
	if err != nil {
		s.serverError(w, "failed to load settings", err)
		return
	}

	p, err := s.getProduct(r.Context(), id)
	if err != nil {
		if err == sql.ErrNoRows {
			s.writeError(w, http.StatusNotFound, "product not found")
			return
		}
		s.serverError(w, "failed to load product", err)
		return
	}

	view, err := s.buildProductView(r.Context(), p, snapshot)
	if err != nil {
		s.writePricingError(w, err)
		return
	}
	s.writeJSON(w, status, view)
}

func (s *server) writePricingError(w http.ResponseWriter, err error) {
	if errors.Is(err, pricing.ErrUnachievableMargin) {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	var invalid *pricing.InvalidInputError
	if errors.As(err, &invalid) {
		s.writeError(w, http.StatusBadRequest, invalid.Error())
		return
	}
	s.serverError(w, "failed to compute pricing", err)
}

func (s *server) buildProductView(ctx context.Context, p product, snapshot pricing.Settings) (productView, error) {
	usages, err := s.productPricingUsages(ctx, p.ID)
	if err != nil {
		return productView{}, err
	}

	breakdown, err := pricing.Calculate(pricing.ProductInput{
		PrintPrepTime:       p.PrintPrepTime,
		PostProcessingTime:  p.PostProcessingTime,
		AdditionalPartsCost: p.AdditionalPartsCost,
		ListPrice:           p.ListPrice,
		FilamentUsed:        p.FilamentUsed,
	}, usages, snapshot)
	if err != nil {
		return productView{}, err
	}

	view := productView{
		product:           p,
		LaborCost:         breakdown.LaborCost,
		FilamentCost:      breakdown.FilamentCost,
		WearTearCost:      breakdown.WearTearCost,
		TotalCost:         breakdown.TotalCost,
		SuggestedPrice:    breakdown.SuggestedPrice,
		SellingPrice:      breakdown.SellingPrice,
		PlatformFeeAmount: breakdown.PlatformFeeAmount,
		GrossProfit:       breakdown.GrossProfit,
		ProfitMargin:      breakdown.ProfitMargin,
	}
	view.FilamentUsed = breakdown.FilamentUsed
	return view, nil
}

func (s *server) listProducts(ctx context.Context) ([]product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, print_prep_time, post_processing_time, additional_parts_cost, list_price, filament_used, notes
		FROM products
		ORDER BY name COLLATE NOCASE, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]product, 0)
	for rows.Next() {
		var p product
		if err := rows.Scan(&p.ID, &p.Name, &p.PrintPrepTime, &p.PostProcessingTime, &p.AdditionalPartsCost, &p.ListPrice, &p.FilamentUsed, &p.Notes); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	for i := range products {
		usages, err := s.listProductFilaments(ctx, products[i].ID)
		if err != nil {
			return nil, err
		}
		products[i].Filaments = usages
	}

	return products, nil
}

func (s *server) getProduct(ctx context.Context, id int64) (product, error) {
	var p product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, print_prep_time, post_processing_time, additional_parts_cost, list_price, filament_used, notes
		FROM products
		WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.PrintPrepTime, &p.PostProcessingTime, &p.AdditionalPartsCost, &p.ListPrice, &p.FilamentUsed, &p.Notes)
	if err != nil {
		if err == sql.ErrNoRows {
			return product{}, err
		}
		return product{}, fmt.Errorf("query product: %w", err)
	}

	p.Filaments, err = s.listProductFilaments(ctx, id)
	if err != nil {
		return product{}, err
	}
	return p, nil
}

func (s *server) listProductFilaments(ctx context.Context, productID int64) ([]productFilamentUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT filament_id, filament_usage_amount
		FROM product_filaments
		WHERE product_id = ?
		ORDER BY filament_id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("query product filaments: %w", err)
	}
	defer rows.Close()

	usages := make([]productFilamentUsage, 0)
	for rows.Next() {
		var usage productFilamentUsage
		if err := rows.Scan(&usage.FilamentID, &usage.UsageAmount); err != nil {
			return nil, fmt.Errorf("scan product filament: %w", err)
		}
		usages = append(usages, usage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product filaments: %w", err)
	}

	return usages, nil
}

// productPricingUsages resolves each association with its filament's
// optional per-kg cost, ready to feed the margin calculator.
func (s *server) productPricingUsages(ctx context.Context, productID int64) ([]pricing.FilamentUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pf.filament_id, pf.filament_usage_amount, f.cost
		FROM product_filaments pf
		JOIN filaments f ON f.id = pf.filament_id
		WHERE pf.product_id = ?
		ORDER BY pf.filament_id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("query pricing usages: %w", err)
	}
	defer rows.Close()

	usages := make([]pricing.FilamentUsage, 0)
	for rows.Next() {
		var usage pricing.FilamentUsage
		var cost sql.NullFloat64
		if err := rows.Scan(&usage.FilamentID, &usage.Grams, &cost); err != nil {
			return nil, fmt.Errorf("scan pricing usage: %w", err)
		}
		if cost.Valid {
			usage.CostPerKg = &cost.Float64
		}
		usages = append(usages, usage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pricing usages: %w", err)
	}

	return usages, nil
}
