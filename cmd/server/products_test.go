package main

import (
	"fmt"
	"math"
	"net/http"
	"testing"
)

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func TestProductViewMatchesWorkedExample(t *testing.T) {
	srv := newTestServer(t)

	// Seed defaults are: hourly_rate 20, filament_spool_price 18,
	// wear_tear_markup 5, platform_fees 7, desired_profit_margin 55,
	// packaging_cost 0.5.
	fil := createFilament(t, srv, filament{Name: "PLA Black", Material: "PLA", Quantity: 1000})
	created := createProduct(t, srv, product{
		Name:                "Phone Stand",
		PrintPrepTime:       30,
		PostProcessingTime:  15,
		AdditionalPartsCost: 1.0,
	})

	rec := doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/products/%d/filaments", created.ID),
		[]productFilamentUsage{{FilamentID: fil.ID, UsageAmount: 100}})
	requireStatus(t, rec, http.StatusOK)
	view := decodeBody[productView](t, rec)

	approx(t, "labor_cost", view.LaborCost, 15)
	approx(t, "filament_cost", view.FilamentCost, 1.8)
	approx(t, "wear_tear_cost", view.WearTearCost, 0.09)
	approx(t, "total_cost", view.TotalCost, 18.39)
	approx(t, "suggested_price", view.SuggestedPrice, 18.39/0.38)
	approx(t, "selling_price", view.SellingPrice, 18.39/0.38)
	approx(t, "platform_fee_amount", view.PlatformFeeAmount, 18.39/0.38*0.07)
	approx(t, "profit_margin", view.ProfitMargin, 55)
	approx(t, "filament_used", view.FilamentUsed, 100)
}

func TestProductWithoutAssociationsUsesLegacyAggregate(t *testing.T) {
	srv := newTestServer(t)

	view := createProduct(t, srv, product{Name: "Vase", FilamentUsed: 340})

	approx(t, "filament_cost", view.FilamentCost, 0.34*18)
	approx(t, "filament_used", view.FilamentUsed, 340)
}

func TestProductPerFilamentCostOverridesSpoolPrice(t *testing.T) {
	srv := newTestServer(t)

	cost := 30.0
	expensive := createFilament(t, srv, filament{Name: "Carbon PETG", Material: "PETG", Quantity: 500, Cost: &cost})
	cheap := createFilament(t, srv, filament{Name: "PLA White", Material: "PLA", Quantity: 500})
	created := createProduct(t, srv, product{Name: "Drone Frame"})

	rec := doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/products/%d/filaments", created.ID),
		[]productFilamentUsage{
			{FilamentID: expensive.ID, UsageAmount: 200},
			{FilamentID: cheap.ID, UsageAmount: 50},
		})
	requireStatus(t, rec, http.StatusOK)
	view := decodeBody[productView](t, rec)

	// 0.2kg at 30 plus 0.05kg at the global 18 fallback.
	approx(t, "filament_cost", view.FilamentCost, 6+0.9)
	approx(t, "filament_used", view.FilamentUsed, 250)
	if len(view.Filaments) != 2 {
		t.Fatalf("expected 2 associations, got %+v", view.Filaments)
	}
}

func TestProductListPriceOverridesSuggestedPrice(t *testing.T) {
	srv := newTestServer(t)

	view := createProduct(t, srv, product{Name: "Lamp Shade", FilamentUsed: 100, ListPrice: 25})

	approx(t, "selling_price", view.SellingPrice, 25)
	if view.SuggestedPrice == view.SellingPrice {
		t.Fatalf("suggested_price should come from the formula, got %v", view.SuggestedPrice)
	}
	approx(t, "platform_fee_amount", view.PlatformFeeAmount, 25*0.07)
}

func TestProductUnachievableMarginConfiguration(t *testing.T) {
	srv := newTestServer(t)

	createProduct(t, srv, product{Name: "Bracket", FilamentUsed: 50})
	updateSettings(t, srv, map[string]any{"desired_profit_margin": 95, "platform_fees": 7})

	rec := doJSON(t, srv, http.MethodGet, "/api/products", nil)
	requireStatus(t, rec, http.StatusUnprocessableEntity)
}

func TestProductDerivedFieldsFollowSettingsChanges(t *testing.T) {
	srv := newTestServer(t)

	created := createProduct(t, srv, product{Name: "Gear", FilamentUsed: 100})
	approx(t, "filament_cost", created.FilamentCost, 1.8)

	// Derived fields are recomputed, not cached: a spool-price change shows
	// up on the next read.
	updateSettings(t, srv, map[string]any{"filament_spool_price": 36})

	rec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/products/%d", created.ID), nil)
	requireStatus(t, rec, http.StatusOK)
	view := decodeBody[productView](t, rec)
	approx(t, "filament_cost", view.FilamentCost, 3.6)
}

func TestProductFilamentsReplaceUnknownFilament(t *testing.T) {
	srv := newTestServer(t)

	fil := createFilament(t, srv, filament{Name: "PLA Red", Material: "PLA"})
	created := createProduct(t, srv, product{Name: "Keychain"})

	rec := doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/products/%d/filaments", created.ID),
		[]productFilamentUsage{{FilamentID: fil.ID, UsageAmount: 20}})
	requireStatus(t, rec, http.StatusOK)

	rec = doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/products/%d/filaments", created.ID),
		[]productFilamentUsage{
			{FilamentID: fil.ID, UsageAmount: 40},
			{FilamentID: 9999, UsageAmount: 10},
		})
	requireStatus(t, rec, http.StatusNotFound)

	// The failed replace must leave the prior association intact.
	getRec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/products/%d", created.ID), nil)
	requireStatus(t, getRec, http.StatusOK)
	view := decodeBody[productView](t, getRec)
	if len(view.Filaments) != 1 || view.Filaments[0].UsageAmount != 20 {
		t.Fatalf("associations changed after failed replace: %+v", view.Filaments)
	}
}

func TestDeletingFilamentCascadesAssociations(t *testing.T) {
	srv := newTestServer(t)

	fil := createFilament(t, srv, filament{Name: "PLA Blue", Material: "PLA"})
	created := createProduct(t, srv, product{Name: "Planter", FilamentUsed: 75})

	rec := doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/products/%d/filaments", created.ID),
		[]productFilamentUsage{{FilamentID: fil.ID, UsageAmount: 120}})
	requireStatus(t, rec, http.StatusOK)

	del := doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/filaments/%d", fil.ID), nil)
	requireStatus(t, del, http.StatusNoContent)

	// Without associations the product falls back to its legacy aggregate.
	getRec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/products/%d", created.ID), nil)
	requireStatus(t, getRec, http.StatusOK)
	view := decodeBody[productView](t, getRec)
	if len(view.Filaments) != 0 {
		t.Fatalf("expected associations to cascade away, got %+v", view.Filaments)
	}
	approx(t, "filament_used", view.FilamentUsed, 75)
}

func TestDeletingProductRemovesAssociations(t *testing.T) {
	srv := newTestServer(t)

	fil := createFilament(t, srv, filament{Name: "PLA Green", Material: "PLA"})
	created := createProduct(t, srv, product{Name: "Coaster"})

	rec := doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/products/%d/filaments", created.ID),
		[]productFilamentUsage{{FilamentID: fil.ID, UsageAmount: 30}})
	requireStatus(t, rec, http.StatusOK)

	del := doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/products/%d", created.ID), nil)
	requireStatus(t, del, http.StatusNoContent)

	var count int
	if err := srv.db.QueryRow(`SELECT COUNT(*) FROM product_filaments WHERE product_id = ?`, created.ID).Scan(&count); err != nil {
		t.Fatalf("count associations: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 association rows after delete, got %d", count)
	}
}

func TestProductCreateRejectsNegativeFields(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/products", product{Name: "Broken", PrintPrepTime: -1})
	requireStatus(t, rec, http.StatusBadRequest)
}
