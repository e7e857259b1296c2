package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subtrack/internal/core"
)

func TestCycleCost_MonthlyEquivalent(t *testing.T) {
	tests := []struct {
		name  string
		cycle core.Cycle
		cents int64
		want  int64
	}{
		{"monthly unchanged", core.Monthly, 1549, 1549},
		{"empty cycle is monthly", "", 999, 999},
		{"yearly divides by twelve", core.Yearly, 12000, 1000},
		{"yearly rounds half up", core.Yearly, 1399, 117}, // 116.58
		{"yearly exact half", core.Yearly, 18, 2},         // 1.5
		{"weekly times 4.33", core.Weekly, 10000, 43300},
		{"weekly rounds half up", core.Weekly, 199, 862}, // 861.67
		{"free tier", core.Yearly, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy, err := GetCycleCost(tt.cycle)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strategy.MonthlyEquivalent(core.Money{Cents: tt.cents}).Cents)
		})
	}
}

func TestGetCycleCost_Unknown(t *testing.T) {
	_, err := GetCycleCost("Daily")
	assert.Error(t, err)
}

func TestMonthlyTotal(t *testing.T) {
	subs := []core.Subscription{
		{Price: core.Money{Cents: 64900}, Cycle: core.Monthly},
		{Price: core.Money{Cents: 149900}, Cycle: core.Yearly},
		{Price: core.Money{Cents: 9900}, Cycle: core.Weekly},
		{Price: core.Money{Cents: 100}, Cycle: "Fortnightly"},
	}
	// 64900 + 12492 + 42867 + 100
	assert.Equal(t, int64(120359), MonthlyTotal(subs).Cents)
	assert.Zero(t, MonthlyTotal(nil).Cents)
}
