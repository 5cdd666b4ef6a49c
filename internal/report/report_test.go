package report

import (
	"bytes"
	"testing"
	"time"

	"expense-ledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expense(amount, date string, c models.Category) models.Expense {
	d, err := time.Parse(models.DateLayout, date)
	if err != nil {
		panic(err)
	}
	return models.Expense{Amount: decimal.RequireFromString(amount), Date: d, Category: c}
}

var sample = []models.Expense{
	expense("10.00", "2024-01-01", models.CategoryTransport),
	expense("42.50", "2024-03-05", models.CategoryFood),
	expense("7.50", "2024-03-20", models.CategoryFood),
	expense("40.00", "2024-01-31", models.CategoryRent),
}

func TestTotal(t *testing.T) {
	assert.Equal(t, "100.00", Total(sample).StringFixed(2))
	assert.True(t, Total(nil).IsZero())
}

func TestMonthly(t *testing.T) {
	months := Monthly(sample)
	require.Len(t, months, 2)

	assert.Equal(t, "2024-01", months[0].Month)
	assert.Equal(t, "50.00", months[0].Total.StringFixed(2))
	assert.Equal(t, 2, months[0].Count)

	assert.Equal(t, "2024-03", months[1].Month)
	assert.Equal(t, "50.00", months[1].Total.StringFixed(2))
}

func TestByCategory(t *testing.T) {
	cats := ByCategory(sample)
	require.Len(t, cats, 3)

	// Fixed category order, empty categories omitted.
	assert.Equal(t, models.CategoryFood, cats[0].Category)
	assert.Equal(t, "50.00", cats[0].Total.StringFixed(2))
	assert.Equal(t, 2, cats[0].Count)
	assert.InDelta(t, 50.0, cats[0].Percentage, 0.001)

	assert.Equal(t, models.CategoryTransport, cats[1].Category)
	assert.InDelta(t, 10.0, cats[1].Percentage, 0.001)

	assert.Equal(t, models.CategoryRent, cats[2].Category)
	assert.InDelta(t, 40.0, cats[2].Percentage, 0.001)
}

func TestByCategory_Empty(t *testing.T) {
	assert.Empty(t, ByCategory(nil))
	assert.Empty(t, Monthly(nil))
}

func TestBarChart(t *testing.T) {
	var buf bytes.Buffer
	err := BarChart(&buf, "Category Distribution", CategoryBars(ByCategory(sample)), 10)
	require.NoError(t, err)

	want := "Category Distribution\n" +
		"Food      | ########## 50.00\n" +
		"Transport | ## 10.00\n" +
		"Rent      | ######## 40.00\n"
	assert.Equal(t, want, buf.String())
}
