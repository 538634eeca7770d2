package service

// TaxCalculator derives a tax breakdown from a tax-inclusive total using a
// fixed tax fraction (e.g. 9/109 for a 9% inclusive rate). Pure integer
// arithmetic with round-half-up on the tax amount, so subtotal + tax always
// reconstitutes the total exactly.
type TaxCalculator struct {
	Numerator   int64
	Denominator int64
	RatePercent float64
}

// NewTaxCalculator returns a calculator for the given tax fraction
func NewTaxCalculator(numerator, denominator int64, ratePercent float64) TaxCalculator {
	return TaxCalculator{
		Numerator:   numerator,
		Denominator: denominator,
		RatePercent: ratePercent,
	}
}

// TaxBreakdown is the result of splitting an inclusive total
type TaxBreakdown struct {
	SubtotalCents int64   `json:"subtotal_cents"`
	TaxCents      int64   `json:"tax_cents"`
	TotalCents    int64   `json:"total_cents"`
	Rate          float64 `json:"tax_rate"`
}

// FromInclusive splits a tax-inclusive total in minor currency units.
// tax = round_half_up(total * num / den), computed as (2*total*num + den) / (2*den)
// to stay in integer arithmetic.
func (c TaxCalculator) FromInclusive(totalCents int64) TaxBreakdown {
	taxCents := (2*totalCents*c.Numerator + c.Denominator) / (2 * c.Denominator)
	return TaxBreakdown{
		SubtotalCents: totalCents - taxCents,
		TaxCents:      taxCents,
		TotalCents:    totalCents,
		Rate:          c.RatePercent,
	}
}
