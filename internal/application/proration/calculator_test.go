package proration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/refund-approval/internal/domain/entity"
)

func newTestCalculator(t *testing.T) *Calculator {
	t.Helper()
	calc, err := NewCalculator(Config{ProcessingFeePercent: 5})
	require.NoError(t, err)
	return calc
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalculate_SeasonTwentyDaysAway(t *testing.T) {
	calc := newTestCalculator(t)
	now := date(2025, 9, 25)
	season := &Season{Start: now.AddDate(0, 0, 20)}

	refund := calc.Calculate(Input{TotalPaid: 2000, Season: season, SubmittedAt: now, Kind: entity.RefundKindRefund})
	require.True(t, refund.Available)
	assert.Equal(t, entity.Money(1900), refund.Amount)
	assert.Contains(t, refund.Explanation, "95% tier, 5% fee")

	credit := calc.Calculate(Input{TotalPaid: 2000, Season: season, SubmittedAt: now, Kind: entity.RefundKindCredit})
	require.True(t, credit.Available)
	assert.Equal(t, entity.Money(2000), credit.Amount)
}

func TestCalculate_CreditIgnoresTiming(t *testing.T) {
	calc := newTestCalculator(t)
	season := &Season{Start: date(2025, 1, 1)}

	for days := -30; days <= 400; days += 7 {
		at := season.Start.AddDate(0, 0, days)
		res := calc.Calculate(Input{TotalPaid: 12345, Season: season, SubmittedAt: at, Kind: entity.RefundKindCredit})
		assert.Equal(t, entity.Money(12345), res.Amount, "days=%d", days)
	}

	// credits don't need a season at all
	res := calc.Calculate(Input{TotalPaid: 999, Kind: entity.RefundKindCredit})
	assert.True(t, res.Available)
	assert.Equal(t, entity.Money(999), res.Amount)
}

func TestCalculate_RefundMonotonicAndBelowTotal(t *testing.T) {
	calc := newTestCalculator(t)
	season := &Season{Start: date(2025, 10, 6), OffDates: []time.Time{date(2025, 10, 22)}}

	prev := entity.Money(1 << 40)
	for hours := -24 * 30; hours <= 24*70; hours += 5 {
		at := season.Start.Add(time.Duration(hours) * time.Hour)
		res := calc.Calculate(Input{TotalPaid: 8500, Season: season, SubmittedAt: at, Kind: entity.RefundKindRefund})
		require.True(t, res.Available)
		assert.LessOrEqual(t, int64(res.Amount), int64(prev), "hours=%d", hours)
		assert.Less(t, int64(res.Amount), int64(8500))
		prev = res.Amount
	}
	assert.Equal(t, entity.Money(0), prev)
}

func TestCalculate_Tiers(t *testing.T) {
	calc := newTestCalculator(t)
	season := &Season{Start: date(2025, 10, 6)}

	tests := []struct {
		name string
		at   time.Time
		want entity.Money
	}{
		{"before start", date(2025, 10, 1), 9500},
		{"first week", date(2025, 10, 8), 8500},
		{"after one week", date(2025, 10, 13), 7000},
		{"after two weeks", date(2025, 10, 21), 5500},
		{"after three weeks", date(2025, 10, 27), 4000},
		{"after four weeks", date(2025, 11, 3), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := calc.Calculate(Input{TotalPaid: 10000, Season: season, SubmittedAt: tt.at, Kind: entity.RefundKindRefund})
			assert.Equal(t, tt.want, res.Amount)
		})
	}
}

func TestCalculate_MissingSeasonIsUnavailable(t *testing.T) {
	calc := newTestCalculator(t)

	res := calc.Calculate(Input{TotalPaid: 2000, SubmittedAt: date(2025, 1, 1), Kind: entity.RefundKindRefund})

	assert.False(t, res.Available)
	assert.NotEmpty(t, res.Reason)
	assert.Zero(t, res.Amount)
}

func TestCalculateForOrder_ReadsDescription(t *testing.T) {
	calc := newTestCalculator(t)
	order := &entity.OrderReference{
		TotalPaid:          2000,
		ProductDescription: "Fall Kickball\nSeason Dates: 10/6/25 - 12/8/25\nOff Dates: 11/24/25",
	}

	res := calc.CalculateForOrder(order, entity.RefundKindRefund, date(2025, 9, 1))
	require.True(t, res.Available)
	assert.Equal(t, entity.Money(1900), res.Amount)

	order.ProductDescription = "no schedule here"
	res = calc.CalculateForOrder(order, entity.RefundKindRefund, date(2025, 9, 1))
	assert.False(t, res.Available)
}

func TestElapsedWeeks_SkipsOffWeeks(t *testing.T) {
	season := Season{Start: date(2025, 10, 6), OffDates: []time.Time{date(2025, 10, 15)}}

	assert.Equal(t, -1, ElapsedWeeks(season, date(2025, 10, 5)))
	assert.Equal(t, 0, ElapsedWeeks(season, date(2025, 10, 12)))
	assert.Equal(t, 1, ElapsedWeeks(season, date(2025, 10, 13)))
	// week two contains the off date and does not count
	assert.Equal(t, 1, ElapsedWeeks(season, date(2025, 10, 20)))
	assert.Equal(t, 2, ElapsedWeeks(season, date(2025, 10, 27)))
}

func TestParseSeason(t *testing.T) {
	loc := time.UTC

	season, ok := ParseSeason("Season Start: 2025-10-06\nClosed: 10/15/2025, 11/26/25", loc)
	require.True(t, ok)
	assert.Equal(t, date(2025, 10, 6), season.Start)
	assert.Equal(t, []time.Time{date(2025, 10, 15), date(2025, 11, 26)}, season.OffDates)

	season, ok = ParseSeason("season dates: 1/5/26 – 3/2/26", loc)
	require.True(t, ok)
	assert.Equal(t, date(2026, 1, 5), season.Start)

	_, ok = ParseSeason("Starts soon!", loc)
	assert.False(t, ok)
}

func TestNewCalculator_RejectsIncreasingTiers(t *testing.T) {
	_, err := NewCalculator(Config{Tiers: []Tier{
		{MinWeeks: BeforeSeason, Percent: 50, Label: "a"},
		{MinWeeks: 1, Percent: 80, Label: "b"},
	}})
	assert.Error(t, err)

	_, err = NewCalculator(Config{ProcessingFeePercent: 120})
	assert.Error(t, err)
}
