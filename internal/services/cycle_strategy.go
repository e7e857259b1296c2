// Package services orchestrates the subscription store and the renewal
// scheduler on behalf of the HTTP API and the workers.
//
// This file holds the per-cycle cost strategies used to normalize prices to a
// monthly equivalent.
package services

import (
	"fmt"

	"subtrack/internal/core"
)

// CycleCost converts a price charged once per cycle into its monthly
// equivalent.
type CycleCost interface {
	MonthlyEquivalent(price core.Money) core.Money
}

// MonthlyCost charges the price as is.
type MonthlyCost struct{}

func (MonthlyCost) MonthlyEquivalent(price core.Money) core.Money {
	return price
}

// YearlyCost spreads the price over twelve months, rounding half-up.
type YearlyCost struct{}

func (YearlyCost) MonthlyEquivalent(price core.Money) core.Money {
	return core.Money{Cents: divRoundHalfUp(price.Cents, 12)}
}

// WeeklyCost multiplies by 4.33 weeks per month, rounding half-up.
type WeeklyCost struct{}

func (WeeklyCost) MonthlyEquivalent(price core.Money) core.Money {
	return core.Money{Cents: divRoundHalfUp(price.Cents*433, 100)}
}

var cycleStrategies = map[core.Cycle]CycleCost{
	core.Monthly: MonthlyCost{},
	core.Yearly:  YearlyCost{},
	core.Weekly:  WeeklyCost{},
}

// GetCycleCost returns the strategy for cycle. The zero cycle is Monthly.
func GetCycleCost(cycle core.Cycle) (CycleCost, error) {
	c, ok := cycleStrategies[cycle.OrDefault()]
	if !ok {
		return nil, fmt.Errorf("unknown billing cycle: %s", cycle)
	}
	return c, nil
}

// MonthlyTotal sums the monthly equivalent of every subscription. Records
// with an unknown cycle count as Monthly.
func MonthlyTotal(subs []core.Subscription) core.Money {
	var total int64
	for _, s := range subs {
		strategy, err := GetCycleCost(s.Cycle)
		if err != nil {
			strategy = MonthlyCost{}
		}
		total += strategy.MonthlyEquivalent(s.Price).Cents
	}
	return core.Money{Cents: total}
}

func divRoundHalfUp(n, d int64) int64 {
	if n < 0 {
		return -divRoundHalfUp(-n, d)
	}
	return (n + d/2) / d
}
