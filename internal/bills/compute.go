package bills

import (
	"github.com/shopspring/decimal"

	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
)

// Totals holds every derived money column of a bill. All values are minor
// currency units.
type Totals struct {
	SubtotalCents      int
	DiscountCents      int
	ServiceChargeCents int
	TaxCents           int
	TaxPrimaryCents    int
	TaxSecondaryCents  int
	TotalCents         int
	PaidCents          int
	BalanceCents       int
}

var bpsDivisor = decimal.NewFromInt(10000)

// ComputeTotals derives the bill columns from its line items, charges, and
// payments. Tax applies to the discounted subtotal, not the service charge,
// and splits into two components with the odd cent going to the primary one.
func ComputeTotals(items []models.BillItem, payments []models.Payment, discountCents, serviceChargeCents, taxRateBps int) Totals {
	subtotal := 0
	for _, item := range items {
		subtotal += item.UnitPriceCents * item.Qty
	}

	taxable := subtotal - discountCents
	if taxable < 0 {
		taxable = 0
	}
	tax := int(decimal.NewFromInt(int64(taxable)).
		Mul(decimal.NewFromInt(int64(taxRateBps))).
		Div(bpsDivisor).
		Round(0).
		IntPart())
	secondary := tax / 2
	primary := tax - secondary

	paid := 0
	for _, payment := range payments {
		if payment.Status == enums.PaymentStatusSucceeded {
			paid += payment.AmountCents
		}
	}

	total := subtotal - discountCents + serviceChargeCents + tax
	return Totals{
		SubtotalCents:      subtotal,
		DiscountCents:      discountCents,
		ServiceChargeCents: serviceChargeCents,
		TaxCents:           tax,
		TaxPrimaryCents:    primary,
		TaxSecondaryCents:  secondary,
		TotalCents:         total,
		PaidCents:          paid,
		BalanceCents:       total - paid,
	}
}

func (t Totals) asUpdates() map[string]any {
	return map[string]any{
		"subtotal_cents":       t.SubtotalCents,
		"discount_cents":       t.DiscountCents,
		"service_charge_cents": t.ServiceChargeCents,
		"tax_cents":            t.TaxCents,
		"tax_primary_cents":    t.TaxPrimaryCents,
		"tax_secondary_cents":  t.TaxSecondaryCents,
		"total_cents":          t.TotalCents,
		"paid_cents":           t.PaidCents,
		"balance_cents":        t.BalanceCents,
	}
}
