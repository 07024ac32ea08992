package pricing

import (
	"errors"
	"fmt"
)

// ErrUnachievableMargin is returned when the desired profit margin plus the
// platform fee percentage reaches or exceeds 100%, making the suggested-price
// denominator non-positive.
var ErrUnachievableMargin = errors.New("unachievable margin configuration: desired profit margin plus platform fees must be below 100%")

// InvalidInputError reports a negative numeric field in the calculation input.
type InvalidInputError struct {
	Field string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s must not be negative", e.Field)
}

// Settings is an immutable snapshot of the global pricing parameters taken at
// the moment a calculation runs. Percentages are expressed 0-100.
type Settings struct {
	HourlyRate          float64
	FilamentSpoolPrice  float64 // fallback cost per kg
	WearTearMarkup      float64 // percent of filament cost
	PlatformFees        float64 // percent of selling price
	DesiredProfitMargin float64 // percent
	PackagingCost       float64 // flat amount per product
}

// FilamentUsage is one product→filament association: an amount in grams and
// the filament's optional per-kg cost. A nil CostPerKg falls back to
// Settings.FilamentSpoolPrice.
type FilamentUsage struct {
	FilamentID int64
	Grams      float64
	CostPerKg  *float64
}

// ProductInput carries the product fields the calculator reads. Time fields
// are minutes. A ListPrice of 0 means "no override". FilamentUsed is the
// legacy aggregate gram amount, used only when the product has no filament
// associations.
type ProductInput struct {
	PrintPrepTime       float64
	PostProcessingTime  float64
	AdditionalPartsCost float64
	ListPrice           float64
	FilamentUsed        float64
}

// Breakdown is the full derived financial result. All values carry full
// float64 precision; rounding belongs to the presentation layer.
type Breakdown struct {
	LaborCost         float64 `json:"labor_cost"`
	FilamentCost      float64 `json:"filament_cost"`
	WearTearCost      float64 `json:"wear_tear_cost"`
	TotalCost         float64 `json:"total_cost"`
	SuggestedPrice    float64 `json:"suggested_price"`
	SellingPrice      float64 `json:"selling_price"`
	PlatformFeeAmount float64 `json:"platform_fee_amount"`
	GrossProfit       float64 `json:"gross_profit"`
	ProfitMargin      float64 `json:"profit_margin"`
	FilamentUsed      float64 `json:"filament_used"`
}

// Calculate produces the cost/price/profit breakdown for one product against
// one settings snapshot. It owns no state and must be re-run whenever the
// settings or any associated filament usage changes.
func Calculate(p ProductInput, usages []FilamentUsage, s Settings) (Breakdown, error) {
	if err := validate(p, usages, s); err != nil {
		return Breakdown{}, err
	}

	laborCost := (p.PrintPrepTime + p.PostProcessingTime) / 60.0 * s.HourlyRate

	var filamentCost, gramsUsed float64
	if len(usages) > 0 {
		for _, u := range usages {
			costPerKg := s.FilamentSpoolPrice
			if u.CostPerKg != nil {
				costPerKg = *u.CostPerKg
			}
			filamentCost += (u.Grams / 1000.0) * costPerKg
			gramsUsed += u.Grams
		}
	} else {
		// Legacy aggregate fallback for products without associations.
		gramsUsed = p.FilamentUsed
		filamentCost = (p.FilamentUsed / 1000.0) * s.FilamentSpoolPrice
	}

	wearTearCost := filamentCost * (s.WearTearMarkup / 100.0)
	totalCost := laborCost + filamentCost + wearTearCost + p.AdditionalPartsCost + s.PackagingCost

	denominator := 1.0 - s.DesiredProfitMargin/100.0 - s.PlatformFees/100.0
	if denominator <= 0 {
		return Breakdown{}, ErrUnachievableMargin
	}
	suggestedPrice := totalCost / denominator

	sellingPrice := suggestedPrice
	if p.ListPrice > 0 {
		sellingPrice = p.ListPrice
	}

	platformFeeAmount := sellingPrice * (s.PlatformFees / 100.0)
	grossProfit := sellingPrice - totalCost - platformFeeAmount

	profitMargin := 0.0
	if sellingPrice > 0 {
		profitMargin = grossProfit / sellingPrice * 100.0
	}

	return Breakdown{
		LaborCost:         laborCost,
		FilamentCost:      filamentCost,
		WearTearCost:      wearTearCost,
		TotalCost:         totalCost,
		SuggestedPrice:    suggestedPrice,
		SellingPrice:      sellingPrice,
		PlatformFeeAmount: platformFeeAmount,
		GrossProfit:       grossProfit,
		ProfitMargin:      profitMargin,
		FilamentUsed:      gramsUsed,
	}, nil
}

func validate(p ProductInput, usages []FilamentUsage, s Settings) error {
	checks := []struct {
		field string
		value float64
	}{
		{"hourly_rate", s.HourlyRate},
		{"filament_spool_price", s.FilamentSpoolPrice},
		{"wear_tear_markup", s.WearTearMarkup},
		{"platform_fees", s.PlatformFees},
		{"desired_profit_margin", s.DesiredProfitMargin},
		{"packaging_cost", s.PackagingCost},
		{"print_prep_time", p.PrintPrepTime},
		{"post_processing_time", p.PostProcessingTime},
		{"additional_parts_cost", p.AdditionalPartsCost},
		{"list_price", p.ListPrice},
		{"filament_used", p.FilamentUsed},
	}
	for _, c := range checks {
		if c.value < 0 {
			return &InvalidInputError{Field: c.field}
		}
	}

	for _, u := range usages {
		if u.Grams < 0 {
			return &InvalidInputError{Field: "filament_usage_amount"}
		}
		if u.CostPerKg != nil && *u.CostPerKg < 0 {
			return &InvalidInputError{Field: "filament_cost"}
		}
	}

	return nil
}
