package services

import (
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GigSafe/internal/models"
)

func TestCalculateFees(t *testing.T) {
	cases := []struct {
		name       string
		gross      float64
		percent    float64
		commission float64
		net        float64
	}{
		{name: "ten percent", gross: 1000, percent: 10, commission: 100, net: 900},
		{name: "zero", gross: 0, percent: 10, commission: 0, net: 0},
		{name: "no commission", gross: 250, percent: 0, commission: 0, net: 250},
		{name: "full commission", gross: 250, percent: 100, commission: 250, net: 0},
		{name: "rounds half up", gross: 0.05, percent: 10, commission: 0.01, net: 0.04},
		{name: "fractional percent", gross: 333.33, percent: 12.5, commission: 41.67, net: 291.66},
		{name: "sub-cent gross", gross: 99.999, percent: 10, commission: 10, net: 90},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fees, err := CalculateFees(tc.gross, models.FeeConfiguration{PlatformCommissionPercent: tc.percent, Version: 3})
			require.NoError(t, err)
			assert.Equal(t, tc.commission, fees.PlatformCommission)
			assert.Equal(t, tc.net, fees.NetAmountToWorker)
			assert.Equal(t, 3, fees.ConfigVersion)
		})
	}
}

func TestCalculateFeesSumsToGross(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		gross := math.Round(rng.Float64()*100000*100) / 100
		percent := math.Round(rng.Float64()*100*100) / 100

		fees, err := CalculateFees(gross, models.FeeConfiguration{PlatformCommissionPercent: percent})
		require.NoError(t, err)
		require.GreaterOrEqual(t, fees.PlatformCommission, 0.0)
		require.GreaterOrEqual(t, fees.NetAmountToWorker, 0.0)

		sum := decimal.NewFromFloat(fees.PlatformCommission).Add(decimal.NewFromFloat(fees.NetAmountToWorker))
		diff := sum.Sub(decimal.NewFromFloat(fees.GrossAmount)).Abs()
		require.True(t, diff.LessThanOrEqual(decimal.New(1, -2)), "gross %.2f at %.2f%%: %s", gross, percent, diff)
	}
}

func TestCalculateFeesRejectsInvalidInput(t *testing.T) {
	cfg := models.DefaultFeeConfiguration()
	for _, gross := range []float64{-0.01, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := CalculateFees(gross, cfg)
		assert.ErrorIs(t, err, ErrValidation, "gross %v", gross)
	}
	for _, pct := range []float64{-1, 100.01, math.NaN()} {
		_, err := CalculateFees(100, models.FeeConfiguration{PlatformCommissionPercent: pct})
		assert.ErrorIs(t, err, ErrValidation, "percent %v", pct)
	}
}
