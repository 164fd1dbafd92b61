package services

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"GigSafe/internal/models"
)

var hundred = decimal.NewFromInt(100)

type FeeBreakdown struct {
	GrossAmount        float64 `json:"gross_amount"`
	PlatformCommission float64 `json:"platform_commission"`
	NetAmountToWorker  float64 `json:"net_amount_to_worker"`
	CommissionPercent  float64 `json:"commission_percent"`
	ConfigVersion      int     `json:"config_version"`
}

// CalculateFees splits a gross amount into platform commission and worker net.
// The gross is first normalised to cents; commission is rounded on its own and
// the net is the exact remainder, so the two always sum to the gross.
func CalculateFees(grossAmount float64, cfg models.FeeConfiguration) (FeeBreakdown, error) {
	if math.IsNaN(grossAmount) || math.IsInf(grossAmount, 0) {
		return FeeBreakdown{}, fmt.Errorf("%w: amount must be a finite number", ErrValidation)
	}
	if grossAmount < 0 {
		return FeeBreakdown{}, fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	pct := cfg.PlatformCommissionPercent
	if math.IsNaN(pct) || pct < 0 || pct > 100 {
		return FeeBreakdown{}, fmt.Errorf("%w: commission percent must be between 0 and 100", ErrValidation)
	}

	gross := decimal.NewFromFloat(grossAmount).Round(2)
	commission := gross.Mul(decimal.NewFromFloat(pct)).Div(hundred).Round(2)
	net := gross.Sub(commission).Round(2)

	return FeeBreakdown{
		GrossAmount:        gross.InexactFloat64(),
		PlatformCommission: commission.InexactFloat64(),
		NetAmountToWorker:  net.InexactFloat64(),
		CommissionPercent:  pct,
		ConfigVersion:      cfg.Version,
	}, nil
}

func roundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
