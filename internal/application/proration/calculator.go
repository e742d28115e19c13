// Package proration computes how much of an order is returned to a
// requester, based on how far into the season the request was made.
package proration

import (
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/refund-approval/internal/domain/entity"
)

// BeforeSeason is the MinWeeks value of the tier used before the season starts
const BeforeSeason = -1

// Tier maps a number of elapsed weeks to a gross refund percentage
type Tier struct {
	MinWeeks int     `mapstructure:"min_weeks"`
	Percent  float64 `mapstructure:"percent"`
	Label    string  `mapstructure:"label"`
}

// DefaultTiers returns the refund schedule used when none is configured.
// Percentages are before the processing fee.
func DefaultTiers() []Tier {
	return []Tier{
		{MinWeeks: BeforeSeason, Percent: 100, Label: "before season start"},
		{MinWeeks: 0, Percent: 90, Label: "during week 1"},
		{MinWeeks: 1, Percent: 75, Label: "after week 1"},
		{MinWeeks: 2, Percent: 60, Label: "after week 2"},
		{MinWeeks: 3, Percent: 45, Label: "after week 3"},
		{MinWeeks: 4, Percent: 0, Label: "after week 4"},
	}
}

// Config holds calculator configuration
type Config struct {
	Tiers                []Tier
	ProcessingFeePercent float64
	Location             *time.Location
}

// Input is everything a calculation depends on
type Input struct {
	TotalPaid   entity.Money
	Season      *Season
	SubmittedAt time.Time
	Kind        entity.RefundKind
}

// Result is a computed refund or credit amount. When Available is false the
// caller falls back to a manually entered amount.
type Result struct {
	Available   bool
	Kind        entity.RefundKind
	Amount      entity.Money
	Percent     float64
	Tier        string
	Explanation string
	Reason      string
	ComputedAt  time.Time
}

// Calculator computes prorated refund amounts
type Calculator struct {
	tiers    []Tier
	fee      float64
	location *time.Location
	now      func() time.Time
}

// NewCalculator validates the tier table and creates a calculator
func NewCalculator(cfg Config) (*Calculator, error) {
	tiers := cfg.Tiers
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	tiers = append([]Tier(nil), tiers...)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinWeeks < tiers[j].MinWeeks })

	for i, t := range tiers {
		if t.Percent < 0 || t.Percent > 100 {
			return nil, fmt.Errorf("tier %q: percent %.2f out of range", t.Label, t.Percent)
		}
		if i > 0 {
			if t.MinWeeks == tiers[i-1].MinWeeks {
				return nil, fmt.Errorf("duplicate tier for %d weeks", t.MinWeeks)
			}
			if t.Percent > tiers[i-1].Percent {
				return nil, fmt.Errorf("tier %q: percent must not increase with elapsed weeks", t.Label)
			}
		}
	}
	if cfg.ProcessingFeePercent < 0 || cfg.ProcessingFeePercent > 100 {
		return nil, fmt.Errorf("processing fee %.2f out of range", cfg.ProcessingFeePercent)
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	return &Calculator{
		tiers:    tiers,
		fee:      cfg.ProcessingFeePercent,
		location: loc,
		now:      time.Now,
	}, nil
}

// WithClock sets the clock used for ComputedAt (for testing)
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// Location returns the time zone season dates are interpreted in
func (c *Calculator) Location() *time.Location {
	return c.location
}

// CalculateForOrder reads the season out of the order's product description
// and calculates the amount due
func (c *Calculator) CalculateForOrder(order *entity.OrderReference, kind entity.RefundKind, submittedAt time.Time) Result {
	in := Input{TotalPaid: order.TotalPaid, SubmittedAt: submittedAt, Kind: kind}
	if season, ok := ParseSeason(order.ProductDescription, c.location); ok {
		in.Season = &season
	}
	return c.Calculate(in)
}

// Calculate computes the amount due for in
func (c *Calculator) Calculate(in Input) Result {
	res := Result{Kind: in.Kind, ComputedAt: c.now()}

	if in.Kind == entity.RefundKindCredit {
		res.Available = true
		res.Amount = in.TotalPaid
		res.Percent = 100
		res.Tier = "credit"
		res.Explanation = "100% credit (credits are not prorated)"
		return res
	}

	if in.Season == nil || in.Season.Start.IsZero() {
		res.Reason = "season start date not found in product description"
		return res
	}

	weeks := ElapsedWeeks(*in.Season, in.SubmittedAt)
	tier := c.tierFor(weeks)

	net := tier.Percent - c.fee
	if net < 0 {
		net = 0
	}

	res.Available = true
	res.Percent = net
	res.Tier = tier.Label
	res.Amount = in.TotalPaid.MulPercent(net)
	res.Explanation = fmt.Sprintf("%s%% tier, %s%% fee (%s)", formatPercent(net), formatPercent(c.fee), tier.Label)
	return res
}

func (c *Calculator) tierFor(weeks int) Tier {
	chosen := c.tiers[0]
	for _, t := range c.tiers {
		if t.MinWeeks <= weeks {
			chosen = t
		}
	}
	return chosen
}

func formatPercent(p float64) string {
	if p == float64(int64(p)) {
		return fmt.Sprintf("%d", int64(p))
	}
	return fmt.Sprintf("%.1f", p)
}
