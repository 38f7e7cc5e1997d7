package services

import (
	"context"
	"testing"
	"time"

	"reftrack/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommission_Derive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.affiliate(t, 1, "aff-1", nil)

	t.Run("Rounds Half Up To Cents", func(t *testing.T) {
		ref := env.seedReferral(t, 1, "REF_R1", env.now, "33.33")
		c, err := env.commissions.Derive(ctx, env.store, ref, decimal.RequireFromString("12.5"))
		require.NoError(t, err)
		assert.Equal(t, "4.17", c.Amount.StringFixed(2))
		assert.Equal(t, models.CommissionPending, c.Status)
		assert.True(t, c.EarnedAt.Equal(*ref.ConvertedAt))
		require.NotNil(t, c.ReferralID)
		assert.Equal(t, ref.ID, *c.ReferralID)
	})

	t.Run("Only One Per Referral", func(t *testing.T) {
		ref, err := env.store.FindReferralByCode(ctx, "REF_R1")
		require.NoError(t, err)
		_, err = env.commissions.Derive(ctx, env.store, ref, decimal.NewFromInt(10))
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("Rate Out Of Range", func(t *testing.T) {
		ref := env.seedReferral(t, 1, "REF_R2", env.now, "10")
		for _, r := range []string{"-1", "100.01"} {
			_, err := env.commissions.Derive(ctx, env.store, ref, decimal.RequireFromString(r))
			assert.ErrorIs(t, err, ErrValidation, r)
		}
	})

	t.Run("Referral Not Converted", func(t *testing.T) {
		ref := env.seedReferral(t, 1, "REF_R3", env.now, "")
		_, err := env.commissions.Derive(ctx, env.store, ref, decimal.NewFromInt(10))
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("Zero Value Gives Zero Commission", func(t *testing.T) {
		ref := env.seedReferral(t, 1, "REF_R4", env.now, "0")
		c, err := env.commissions.Derive(ctx, env.store, ref, decimal.NewFromInt(50))
		require.NoError(t, err)
		assert.True(t, c.Amount.IsZero())
	})
}

func TestCommission_RateFor(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, "10", env.commissions.RateFor(nil).String())
	assert.Equal(t, "10", env.commissions.RateFor(&models.Affiliate{}).String())
	assert.Equal(t, "7.5", env.commissions.RateFor(&models.Affiliate{CommissionRate: ratePtr("7.5")}).String())
}

func TestCommission_CreateManual(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.affiliate(t, 1, "aff-1", nil)

	t.Run("Defaults", func(t *testing.T) {
		c, err := env.commissions.CreateManual(ctx, ManualCommissionRequest{
			AffiliateID: 1,
			Amount:      decimal.RequireFromString("12.345"),
			Description: "launch bonus",
		})
		require.NoError(t, err)
		assert.Equal(t, "12.35", c.Amount.StringFixed(2))
		assert.Equal(t, "MANUAL", c.Type)
		assert.Equal(t, "USD", c.Currency)
		assert.EqualValues(t, 100, c.ClientID)
		assert.Nil(t, c.ReferralID)
		assert.Equal(t, []EventType{EventCommissionCreated}, env.publisher.types())
	})

	t.Run("Custom Type And Currency", func(t *testing.T) {
		c, err := env.commissions.CreateManual(ctx, ManualCommissionRequest{
			AffiliateID: 1,
			Amount:      decimal.NewFromInt(5),
			Currency:    "eur",
			Type:        "bonus",
			Percentage:  ratePtr("5"),
		})
		require.NoError(t, err)
		assert.Equal(t, "EUR", c.Currency)
		assert.Equal(t, "BONUS", c.Type)
	})

	t.Run("Validation", func(t *testing.T) {
		cases := map[string]ManualCommissionRequest{
			"missing affiliate": {Amount: decimal.NewFromInt(1)},
			"negative amount":   {AffiliateID: 1, Amount: decimal.NewFromInt(-1)},
			"bad percentage":    {AffiliateID: 1, Amount: decimal.NewFromInt(1), Percentage: ratePtr("101")},
			"bad currency":      {AffiliateID: 1, Amount: decimal.NewFromInt(1), Currency: "EURO"},
			"reserved type":     {AffiliateID: 1, Amount: decimal.NewFromInt(1), Type: "referral"},
		}
		for name, req := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := env.commissions.CreateManual(ctx, req)
				assert.ErrorIs(t, err, ErrValidation)
			})
		}
	})

	t.Run("Unknown Affiliate", func(t *testing.T) {
		_, err := env.commissions.CreateManual(ctx, ManualCommissionRequest{AffiliateID: 42, Amount: decimal.NewFromInt(1)})
		assert.ErrorIs(t, err, ErrUnknownAffiliate)
	})
}

func TestCommission_StatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.affiliate(t, 1, "aff-1", nil)

	newManual := func(t *testing.T, amount string) *models.Commission {
		c, err := env.commissions.CreateManual(ctx, ManualCommissionRequest{AffiliateID: 1, Amount: decimal.RequireFromString(amount)})
		require.NoError(t, err)
		return c
	}

	t.Run("Mark Paid Once", func(t *testing.T) {
		c := newManual(t, "10")
		env.now = env.now.Add(time.Hour)

		paid, err := env.commissions.MarkPaid(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, models.CommissionPaid, paid.Status)
		require.NotNil(t, paid.PaidAt)
		assert.True(t, paid.PaidAt.Equal(env.now))

		_, err = env.commissions.MarkPaid(ctx, c.ID)
		assert.ErrorIs(t, err, ErrAlreadyPaid)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("Failed Can Retry", func(t *testing.T) {
		c := newManual(t, "4")
		_, err := env.commissions.UpdateStatus(ctx, c.ID, models.CommissionFailed)
		require.NoError(t, err)
		back, err := env.commissions.UpdateStatus(ctx, c.ID, models.CommissionPending)
		require.NoError(t, err)
		assert.Equal(t, models.CommissionPending, back.Status)
		assert.Nil(t, back.PaidAt)
	})

	t.Run("Cancelled Is Terminal", func(t *testing.T) {
		c := newManual(t, "3")
		_, err := env.commissions.UpdateStatus(ctx, c.ID, models.CommissionCancelled)
		require.NoError(t, err)
		_, err = env.commissions.UpdateStatus(ctx, c.ID, models.CommissionPaid)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = env.commissions.UpdateStatus(ctx, c.ID, models.CommissionPending)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("Unknown Status", func(t *testing.T) {
		_, err := env.commissions.UpdateStatus(ctx, 1, models.CommissionStatus("LOST"))
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := env.commissions.MarkPaid(ctx, 999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Listing And Totals", func(t *testing.T) {
		paid, err := env.commissions.ListByStatus(ctx, models.CommissionPaid)
		require.NoError(t, err)
		assert.Len(t, paid, 1)

		total, err := env.commissions.TotalByStatus(ctx, models.CommissionPending)
		require.NoError(t, err)
		assert.Equal(t, "4", total.String())

		_, err = env.commissions.ListByStatus(ctx, "nope")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestCommission_TotalByAffiliateAndRange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.affiliate(t, 1, "aff-1", nil)

	_, err := env.commissions.CreateManual(ctx, ManualCommissionRequest{AffiliateID: 1, Amount: decimal.RequireFromString("2.50")})
	require.NoError(t, err)
	_, err = env.commissions.CreateManual(ctx, ManualCommissionRequest{AffiliateID: 1, Amount: decimal.RequireFromString("1.25")})
	require.NoError(t, err)

	total, err := env.commissions.TotalByAffiliateAndRange(ctx, 1, env.now.Add(-time.Hour), env.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "3.75", total.String())

	total, err = env.commissions.TotalByAffiliateAndRange(ctx, 2, env.now.Add(-time.Hour), env.now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, total.IsZero())

	_, err = env.commissions.TotalByAffiliateAndRange(ctx, 1, env.now, env.now.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrValidation)
}
