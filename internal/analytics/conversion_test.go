package analytics

import (
	"testing"
	"time"

	"reftrack/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func converted(code string, at time.Time, value string) models.Referral {
	v := decimal.RequireFromString(value)
	convertedAt := at.Add(time.Minute)
	return models.Referral{
		ReferralCode:    code,
		Status:          models.ReferralConverted,
		ClickedAt:       at,
		ConvertedAt:     &convertedAt,
		ConversionValue: &v,
	}
}

func clicked(code string, at time.Time) models.Referral {
	return models.Referral{ReferralCode: code, Status: models.ReferralClicked, ClickedAt: at}
}

func TestConversionRate(t *testing.T) {
	assert.True(t, ConversionRate(0, 0).IsZero())
	assert.Equal(t, "30.0000", ConversionRate(3, 10).StringFixed(4))
	assert.Equal(t, "33.33", ConversionRate(1, 3).StringFixed(2))
	assert.Equal(t, "66.67", ConversionRate(2, 3).StringFixed(2))
}

func TestSummarize(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		s := Summarize(nil)
		assert.Zero(t, s.Clicks)
		assert.True(t, s.Revenue.IsZero())
		assert.True(t, s.AverageOrderValue.IsZero())
		assert.True(t, s.ConversionRate.IsZero())
	})

	t.Run("Mixed", func(t *testing.T) {
		refs := []models.Referral{
			converted("A", day(1, 0), "100.00"),
			converted("A", day(1, 1), "50.00"),
			clicked("B", day(1, 2)),
			{ReferralCode: "C", Status: models.ReferralCancelled, ClickedAt: day(1, 3)},
		}
		refs[0].IPAddress = "10.0.0.1"
		refs[1].IPAddress = "10.0.0.1"
		refs[2].IPAddress = "10.0.0.2"

		s := Summarize(refs)
		assert.EqualValues(t, 4, s.Clicks)
		assert.EqualValues(t, 2, s.Conversions)
		assert.Equal(t, "150", s.Revenue.String())
		assert.Equal(t, "75.00", s.AverageOrderValue.StringFixed(2))
		assert.Equal(t, "50", s.ConversionRate.String())
		assert.Equal(t, 2, s.UniqueVisitors)
	})
}

func TestConversionTrends_DailyScenario(t *testing.T) {
	refs := []models.Referral{
		clicked("X1", day(1, 10)),
		converted("X2", day(2, 10), "200.00"),
		clicked("X3", day(3, 10)),
	}
	end := time.Date(2024, time.January, 31, 23, 59, 59, 0, time.UTC)
	stats := ConversionTrends(Buckets(day(1, 0), end, Daily), refs)
	require.Len(t, stats, 31)

	d2 := stats[1]
	assert.Equal(t, "2024-01-02", d2.Label)
	assert.EqualValues(t, 1, d2.Clicks)
	assert.EqualValues(t, 1, d2.Conversions)
	assert.Equal(t, "200.00", d2.Revenue.StringFixed(2))
	assert.Equal(t, "100.0000", d2.ConversionRate.StringFixed(4))

	assert.Equal(t, TrendStable, stats[0].TrendDirection)
	assert.Equal(t, TrendStable, d2.TrendDirection, "growth from zero revenue is reported as stable")
	assert.True(t, d2.ChangePercentage.IsZero())
	assert.Equal(t, TrendDown, stats[2].TrendDirection)
	assert.Equal(t, "-100", stats[2].ChangePercentage.String())
	assert.Equal(t, TrendStable, stats[3].TrendDirection)
}

func TestTrend(t *testing.T) {
	dir, change := trend(decimal.NewFromInt(100), decimal.NewFromInt(150))
	assert.Equal(t, TrendUp, dir)
	assert.Equal(t, "50", change.String())

	dir, change = trend(decimal.NewFromInt(100), decimal.NewFromInt(100))
	assert.Equal(t, TrendStable, dir)
	assert.True(t, change.IsZero())

	dir, change = trend(decimal.Zero, decimal.NewFromInt(80))
	assert.Equal(t, TrendStable, dir)
	assert.True(t, change.IsZero())
}

func TestProjectedRevenue(t *testing.T) {
	assert.True(t, ProjectedRevenue(nil).IsZero())
	stats := []PeriodStat{
		{Revenue: decimal.NewFromInt(100)},
		{Revenue: decimal.NewFromInt(200)},
		{Revenue: decimal.NewFromInt(0)},
	}
	assert.Equal(t, "1200", ProjectedRevenue(stats).String())
}

func TestGrowthRate(t *testing.T) {
	assert.True(t, GrowthRate(nil).IsZero())
	assert.True(t, GrowthRate([]decimal.Decimal{decimal.NewFromInt(10)}).IsZero())
	assert.True(t, GrowthRate([]decimal.Decimal{decimal.Zero, decimal.NewFromInt(10)}).IsZero())
	assert.Equal(t, "150", GrowthRate([]decimal.Decimal{
		decimal.NewFromInt(40), decimal.NewFromInt(5), decimal.NewFromInt(100),
	}).String())
}

func TestDailyCounts(t *testing.T) {
	refs := []models.Referral{
		clicked("A", day(1, 10)),
		clicked("B", day(1, 11)),
		converted("C", day(2, 23), "10"),
	}
	clicks := DailyCounts(refs, false)
	assert.Equal(t, map[string]int64{"2024-01-01": 2, "2024-01-02": 1}, clicks)

	convs := DailyCounts(refs, true)
	assert.Equal(t, map[string]int64{"2024-01-02": 1}, convs)
}
