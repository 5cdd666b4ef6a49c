package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the on-disk and form layout of an expense date.
const DateLayout = "2006-01-02"

// Category is one of the fixed expense categories.
type Category string

const (
	CategoryFood      Category = "Food"
	CategoryTransport Category = "Transport"
	CategoryRent      Category = "Rent"
	CategoryUtilities Category = "Utilities"
	CategoryShopping  Category = "Shopping"
	CategoryOther     Category = "Other"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryRent,
	CategoryUtilities,
	CategoryShopping,
	CategoryOther,
}

// Valid reports whether c is one of the fixed categories. Matching is case-sensitive.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Expense represents a financial expense record. ID is only unique per user.
type Expense struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Category    Category        `json:"category"`
	Description string          `json:"description"`
}

// DateString returns the expense date as YYYY-MM-DD.
func (e Expense) DateString() string {
	return e.Date.Format(DateLayout)
}

// ExpenseUpdate holds a partial edit. Nil fields keep their current value.
type ExpenseUpdate struct {
	Amount      *decimal.Decimal
	Date        *string
	Category    *string
	Description *string
}

// Empty reports whether the update changes nothing.
func (u ExpenseUpdate) Empty() bool {
	return u.Amount == nil && u.Date == nil && u.Category == nil && u.Description == nil
}

// User represents a user account.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}
