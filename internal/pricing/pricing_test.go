package pricing

import (
	"errors"
	"math"
	"testing"
)

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func ptr(v float64) *float64 { return &v }

func baseSettings() Settings {
	return Settings{
		HourlyRate:          20,
		FilamentSpoolPrice:  18,
		WearTearMarkup:      5,
		PlatformFees:        7,
		DesiredProfitMargin: 55,
		PackagingCost:       0.5,
	}
}

func TestCalculate_SingleUsageAtSpoolPrice(t *testing.T) {
	product := ProductInput{
		PrintPrepTime:       30,
		PostProcessingTime:  15,
		AdditionalPartsCost: 1.0,
	}
	usages := []FilamentUsage{{FilamentID: 1, Grams: 100}}

	got, err := Calculate(product, usages, baseSettings())
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}

	nearlyEqual(t, "laborCost", got.LaborCost, 15)
	nearlyEqual(t, "filamentCost", got.FilamentCost, 1.8)
	nearlyEqual(t, "wearTearCost", got.WearTearCost, 0.09)
	nearlyEqual(t, "totalCost", got.TotalCost, 18.39)
	nearlyEqual(t, "suggestedPrice", got.SuggestedPrice, 18.39/0.38)
	nearlyEqual(t, "sellingPrice", got.SellingPrice, 18.39/0.38)
	nearlyEqual(t, "platformFeeAmount", got.PlatformFeeAmount, 18.39/0.38*0.07)
	nearlyEqual(t, "grossProfit", got.GrossProfit, 18.39/0.38-18.39-18.39/0.38*0.07)
	nearlyEqual(t, "profitMargin", got.ProfitMargin, 55)
	nearlyEqual(t, "filamentUsed", got.FilamentUsed, 100)
}

func TestCalculate_PerFilamentCostOverridesSpoolPrice(t *testing.T) {
	product := ProductInput{}
	usages := []FilamentUsage{
		{FilamentID: 1, Grams: 200, CostPerKg: ptr(30)},
		{FilamentID: 2, Grams: 50},
	}
	settings := Settings{FilamentSpoolPrice: 18, DesiredProfitMargin: 50}

	got, err := Calculate(product, usages, settings)
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}

	// 0.2kg at 30 plus 0.05kg at the 18 fallback.
	nearlyEqual(t, "filamentCost", got.FilamentCost, 6+0.9)
	nearlyEqual(t, "filamentUsed", got.FilamentUsed, 250)
}

func TestCalculate_NoAssociationsUsesLegacyAggregate(t *testing.T) {
	product := ProductInput{FilamentUsed: 340}
	settings := Settings{FilamentSpoolPrice: 25}

	got, err := Calculate(product, nil, settings)
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}

	nearlyEqual(t, "filamentCost", got.FilamentCost, 0.34*25)
	nearlyEqual(t, "filamentUsed", got.FilamentUsed, 340)
}

func TestCalculate_ListPriceOverridesSuggestedPrice(t *testing.T) {
	product := ProductInput{
		PrintPrepTime:      30,
		PostProcessingTime: 15,
		ListPrice:          99.99,
		FilamentUsed:       100,
	}

	got, err := Calculate(product, nil, baseSettings())
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}

	if got.SellingPrice != 99.99 {
		t.Fatalf("sellingPrice = %v, want list price 99.99", got.SellingPrice)
	}
	if got.SuggestedPrice == got.SellingPrice {
		t.Fatalf("suggestedPrice should still reflect the formula, got %v", got.SuggestedPrice)
	}
	nearlyEqual(t, "platformFeeAmount", got.PlatformFeeAmount, 99.99*0.07)
}

func TestCalculate_UnachievableMargin(t *testing.T) {
	product := ProductInput{FilamentUsed: 100}

	for _, tc := range []struct {
		name   string
		margin float64
		fees   float64
	}{
		{"exactly 100", 93, 7},
		{"above 100", 120, 0},
		{"fees alone", 0, 100},
	} {
		t.Run(tc.name, func(t *testing.T) {
			settings := Settings{
				FilamentSpoolPrice:  18,
				DesiredProfitMargin: tc.margin,
				PlatformFees:        tc.fees,
			}
			_, err := Calculate(product, nil, settings)
			if !errors.Is(err, ErrUnachievableMargin) {
				t.Fatalf("err = %v, want ErrUnachievableMargin", err)
			}
		})
	}
}

func TestCalculate_ZeroSellingPriceHasZeroMargin(t *testing.T) {
	got, err := Calculate(ProductInput{}, nil, Settings{})
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}

	nearlyEqual(t, "sellingPrice", got.SellingPrice, 0)
	nearlyEqual(t, "profitMargin", got.ProfitMargin, 0)
}

func TestCalculate_TotalCostComposition(t *testing.T) {
	product := ProductInput{
		PrintPrepTime:       12,
		PostProcessingTime:  8,
		AdditionalPartsCost: 2.5,
		FilamentUsed:        75,
	}
	settings := baseSettings()

	got, err := Calculate(product, nil, settings)
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}

	sum := got.LaborCost + got.FilamentCost + got.WearTearCost + product.AdditionalPartsCost + settings.PackagingCost
	nearlyEqual(t, "totalCost", got.TotalCost, sum)
}

func TestCalculate_NegativeInputsRejected(t *testing.T) {
	for _, tc := range []struct {
		name     string
		product  ProductInput
		usages   []FilamentUsage
		settings Settings
	}{
		{"negative hourly rate", ProductInput{}, nil, Settings{HourlyRate: -1}},
		{"negative prep time", ProductInput{PrintPrepTime: -5}, nil, Settings{}},
		{"negative usage grams", ProductInput{}, []FilamentUsage{{Grams: -10}}, Settings{}},
		{"negative usage cost", ProductInput{}, []FilamentUsage{{Grams: 10, CostPerKg: ptr(-2)}}, Settings{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Calculate(tc.product, tc.usages, tc.settings)
			var invalid *InvalidInputError
			if !errors.As(err, &invalid) {
				t.Fatalf("err = %v, want InvalidInputError", err)
			}
		})
	}
}
