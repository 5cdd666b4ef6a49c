package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"expense-ledger/internal/csvtable"
	"expense-ledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// MaxAmount is the exclusive upper bound on a single expense amount.
var MaxAmount = decimal.New(1, 12)

// maxAmountScale bounds the decimal places an amount may be given with before rounding.
const maxAmountScale = 20

// ExpensesHeader is the schema row of the expenses table and of exports.
var ExpensesHeader = []string{"expense_id", "user_id", "amount", "date", "category", "description"}

// ExpenseStore is the per-user record store backed by an expenses CSV file.
type ExpenseStore struct {
	table *csvtable.Table
	log   logrus.FieldLogger
}

// NewExpenseStore opens (or creates) the expenses table at path.
func NewExpenseStore(path string, opts ...Option) (*ExpenseStore, error) {
	o := buildOptions("expenses", opts)
	table, err := csvtable.Open(path, ExpensesHeader)
	if err != nil {
		return nil, fmt.Errorf("open expenses table: %w", err)
	}
	return &ExpenseStore{table: table, log: o.logger.WithField("path", table.Path())}, nil
}

// ListForUser returns the user's expenses ordered by date, oldest first.
// Expenses on the same date keep their file order.
func (s *ExpenseStore) ListForUser(userID int64) ([]models.Expense, error) {
	all, err := s.all()
	if err != nil {
		return nil, err
	}
	return forUser(all, userID), nil
}

// NextID returns the id the next Add for userID will assign.
func (s *ExpenseStore) NextID(userID int64) (int64, error) {
	all, err := s.all()
	if err != nil {
		return 0, err
	}
	return nextID(all, userID), nil
}

// Add validates and appends a new expense for userID. The id is one more than
// the highest id the user currently has.
func (s *ExpenseStore) Add(userID int64, amount decimal.Decimal, date, category, description string) (*models.Expense, error) {
	e := models.Expense{UserID: userID, Description: description}
	var err error
	if e.Amount, err = validateAmount(amount); err != nil {
		return nil, err
	}
	if e.Date, err = validateDate(date); err != nil {
		return nil, err
	}
	if e.Category, err = validateCategory(category); err != nil {
		return nil, err
	}

	err = s.table.Update(func(rows [][]string) ([][]string, error) {
		all, err := s.decode(rows)
		if err != nil {
			return nil, err
		}
		e.ID = nextID(all, userID)
		return append(rows, encodeExpense(e)), nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"user_id": userID, "expense_id": e.ID}).Info("expense added")
	return &e, nil
}

// Find returns the expense with the composite key (userID, expenseID).
func (s *ExpenseStore) Find(userID, expenseID int64) (*models.Expense, error) {
	all, err := s.all()
	if err != nil {
		return nil, err
	}
	if i := indexOf(all, userID, expenseID); i >= 0 {
		return &all[i], nil
	}
	return nil, ErrNotFound
}

// Edit applies the non-nil fields of update. Every supplied field is validated
// before any change is made.
func (s *ExpenseStore) Edit(userID, expenseID int64, update models.ExpenseUpdate) (*models.Expense, error) {
	var (
		amount   decimal.Decimal
		date     time.Time
		category models.Category
		err      error
	)
	if update.Amount != nil {
		if amount, err = validateAmount(*update.Amount); err != nil {
			return nil, err
		}
	}
	if update.Date != nil {
		if date, err = validateDate(*update.Date); err != nil {
			return nil, err
		}
	}
	if update.Category != nil {
		if category, err = validateCategory(*update.Category); err != nil {
			return nil, err
		}
	}

	var edited models.Expense
	err = s.table.Update(func(rows [][]string) ([][]string, error) {
		all, err := s.decode(rows)
		if err != nil {
			return nil, err
		}
		i := indexOf(all, userID, expenseID)
		if i < 0 {
			return nil, ErrNotFound
		}
		e := all[i]
		if update.Amount != nil {
			e.Amount = amount
		}
		if update.Date != nil {
			e.Date = date
		}
		if update.Category != nil {
			e.Category = category
		}
		if update.Description != nil {
			e.Description = *update.Description
		}
		rows[i] = encodeExpense(e)
		edited = e
		return rows, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"user_id": userID, "expense_id": expenseID}).Info("expense edited")
	return &edited, nil
}

// Delete removes the expense and reports whether one was removed.
func (s *ExpenseStore) Delete(userID, expenseID int64) (bool, error) {
	errNoMatch := errors.New("no match")
	err := s.table.Update(func(rows [][]string) ([][]string, error) {
		all, err := s.decode(rows)
		if err != nil {
			return nil, err
		}
		i := indexOf(all, userID, expenseID)
		if i < 0 {
			return nil, errNoMatch
		}
		return slices.Delete(rows, i, i+1), nil
	})
	if errors.Is(err, errNoMatch) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.log.WithFields(logrus.Fields{"user_id": userID, "expense_id": expenseID}).Info("expense deleted")
	return true, nil
}

// ExportForUser writes the user's expenses, in ListForUser order, to a CSV file
// at destination using the primary table layout.
func (s *ExpenseStore) ExportForUser(userID int64, destination string) error {
	expenses, err := s.ListForUser(userID)
	if err != nil {
		return err
	}
	if err := csvtable.WriteFile(destination, ExpensesHeader, encodeExpenses(expenses)); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "destination": destination, "count": len(expenses)}).Info("expenses exported")
	return nil
}

// WriteExportForUser writes the same export as ExportForUser to w.
func (s *ExpenseStore) WriteExportForUser(userID int64, w io.Writer) error {
	expenses, err := s.ListForUser(userID)
	if err != nil {
		return err
	}
	return csvtable.Encode(w, ExpensesHeader, encodeExpenses(expenses))
}

// ReadExport parses an export produced by ExportForUser or WriteExportForUser.
func ReadExport(r io.Reader, name string) ([]models.Expense, error) {
	rows, err := csvtable.Parse(r, name, ExpensesHeader)
	if err != nil {
		return nil, err
	}
	return decodeExpenses(rows, name)
}

// ReadExportFile opens and parses an export file.
func ReadExportFile(path string) ([]models.Expense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadExport(f, path)
}

func (s *ExpenseStore) all() ([]models.Expense, error) {
	var all []models.Expense
	err := s.table.View(func(rows [][]string) error {
		var err error
		all, err = s.decode(rows)
		return err
	})
	return all, err
}

func (s *ExpenseStore) decode(rows [][]string) ([]models.Expense, error) {
	return decodeExpenses(rows, s.table.Path())
}

// decodeExpenses parses rows in file order. A malformed row or a repeated
// (user_id, expense_id) pair fails the whole load.
func decodeExpenses(rows [][]string, name string) ([]models.Expense, error) {
	type key struct{ user, id int64 }
	seen := make(map[key]bool, len(rows))
	out := make([]models.Expense, 0, len(rows))
	for i, row := range rows {
		line := i + 2
		id, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil || id < 1 {
			return nil, csvtable.Corrupt(name, line, "expense_id %q", row[0])
		}
		userID, err := strconv.ParseInt(row[1], 10, 64)
		if err != nil || userID < 1 {
			return nil, csvtable.Corrupt(name, line, "user_id %q", row[1])
		}
		amount, err := decimal.NewFromString(row[2])
		if err != nil || !amount.IsPositive() || !amountInRange(amount) {
			return nil, csvtable.Corrupt(name, line, "amount %q", row[2])
		}
		date, err := time.Parse(models.DateLayout, row[3])
		if err != nil {
			return nil, csvtable.Corrupt(name, line, "date %q", row[3])
		}
		category := models.Category(row[4])
		if !category.Valid() {
			return nil, csvtable.Corrupt(name, line, "category %q", row[4])
		}
		k := key{userID, id}
		if seen[k] {
			return nil, csvtable.Corrupt(name, line, "duplicate expense %d for user %d", id, userID)
		}
		seen[k] = true
		out = append(out, models.Expense{
			ID:          id,
			UserID:      userID,
			Amount:      amount,
			Date:        date,
			Category:    category,
			Description: row[5],
		})
	}
	return out, nil
}

func encodeExpenses(expenses []models.Expense) [][]string {
	rows := make([][]string, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, encodeExpense(e))
	}
	return rows
}

func encodeExpense(e models.Expense) []string {
	return []string{
		strconv.FormatInt(e.ID, 10),
		strconv.FormatInt(e.UserID, 10),
		e.Amount.StringFixed(2),
		e.DateString(),
		string(e.Category),
		e.Description,
	}
}

func forUser(all []models.Expense, userID int64) []models.Expense {
	out := make([]models.Expense, 0)
	for _, e := range all {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b models.Expense) int {
		return a.Date.Compare(b.Date)
	})
	return out
}

func nextID(all []models.Expense, userID int64) int64 {
	var maxID int64
	for _, e := range all {
		if e.UserID == userID {
			maxID = max(maxID, e.ID)
		}
	}
	return maxID + 1
}

func indexOf(all []models.Expense, userID, expenseID int64) int {
	return slices.IndexFunc(all, func(e models.Expense) bool {
		return e.UserID == userID && e.ID == expenseID
	})
}

// amountInRange checks the exponent before comparing, so neither the
// comparison nor a later Round expands a huge power of ten.
func amountInRange(amount decimal.Decimal) bool {
	exp := amount.Exponent()
	if exp > 12 || exp < -maxAmountScale {
		return false
	}
	return amount.LessThan(MaxAmount)
}

func validateAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amountInRange(amount) {
		return decimal.Decimal{}, invalid("amount", fmt.Errorf("must be below %s with at most %d decimal places", MaxAmount.String(), maxAmountScale))
	}
	rounded := amount.Round(2)
	if !rounded.IsPositive() {
		return decimal.Decimal{}, invalid("amount", fmt.Errorf("%s is not greater than zero", amount))
	}
	return rounded, nil
}

func validateDate(s string) (time.Time, error) {
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, invalid("date", fmt.Errorf("%q is not YYYY-MM-DD", s))
	}
	return d, nil
}

func validateCategory(s string) (models.Category, error) {
	c := models.Category(s)
	if !c.Valid() {
		return "", invalid("category", fmt.Errorf("%q is not one of %v", s, models.Categories))
	}
	return c, nil
}
