package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/logging"
	"expense-ledger/internal/models"
	"expense-ledger/internal/prompt"
	"expense-ledger/internal/report"
	"expense-ledger/internal/storage"

	"github.com/shopspring/decimal"
)

const (
	defaultDataDir = "./data"
	chartWidth     = 40
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("expenses", flag.ContinueOnError)
	fs.SetOutput(stderr)

	dataDir := fs.String("data", defaultDataDir, "Directory holding users.csv and expenses.csv")
	exportDir := fs.String("export-dir", ".", "Directory EXPORT writes to")
	logLevel := fs.String("log-level", "warn", "Log level for store events written to stderr")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if dir := os.Getenv("DATA_DIR"); dir != "" && *dataDir == defaultDataDir {
		*dataDir = dir
	}

	logger, err := logging.New(stderr, *logLevel, "text")
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to open data directory: %w", err)
	}
	users, err := storage.NewUserStore(filepath.Join(*dataDir, "users.csv"), storage.WithLogger(logger))
	if err != nil {
		return err
	}
	expenses, err := storage.NewExpenseStore(filepath.Join(*dataDir, "expenses.csv"), storage.WithLogger(logger))
	if err != nil {
		return err
	}

	a := &app{
		users:     users,
		expenses:  expenses,
		in:        prompt.New(stdin, stdout),
		out:       stdout,
		exportDir: *exportDir,
	}
	err = a.mainMenu()
	if errors.Is(err, io.EOF) {
		fmt.Fprintln(stdout)
		return nil
	}
	return err
}

type app struct {
	users     *storage.UserStore
	expenses  *storage.ExpenseStore
	in        *prompt.Prompter
	out       io.Writer
	exportDir string
	user      *models.User
}

func (a *app) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// nonEmpty repeats the question until a non-blank answer is given.
func (a *app) nonEmpty(label string) (string, error) {
	for {
		v, err := a.in.Line(label)
		if err != nil {
			return "", err
		}
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
		a.println("Input cannot be empty.")
	}
}

func (a *app) trimmed(label string) (string, error) {
	v, err := a.in.Line(label)
	return strings.TrimSpace(v), err
}

// storeFailed reports a store error and keeps the loop running. Validation
// errors name the offending field; anything else is printed as is.
func (a *app) storeFailed(err error) {
	var ve *storage.ValidationError
	if errors.As(err, &ve) {
		a.printf("Invalid %s.\n", ve.Field)
		return
	}
	a.printf("Error: %v\n", err)
}

func (a *app) mainMenu() error {
	for {
		a.println()
		a.println("--- Personal Expense Manager ---")
		a.println("1) Login")
		a.println("2) Create Account")
		a.println("3) Exit")
		choice, err := a.trimmed("Choose an option: ")
		if err != nil {
			return err
		}
		switch choice {
		case "1":
			err = a.login()
		case "2":
			err = a.createAccount()
		case "3":
			a.println("Goodbye!")
			return nil
		default:
			a.println("Invalid option. Try again.")
		}
		if err != nil {
			return err
		}
	}
}

func (a *app) login() error {
	username, err := a.nonEmpty("Username: ")
	if err != nil {
		return err
	}
	password, err := a.in.Password("Password: ")
	if err != nil {
		return err
	}
	user, err := a.users.Authenticate(username, password)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCredentials) {
			a.println("Authentication failed. Check username/password.")
		} else {
			a.storeFailed(err)
		}
		return nil
	}
	a.user = user
	a.printf("Welcome %s!\n", user.Username)
	defer func() { a.user = nil }()
	return a.transactionMenu()
}

func (a *app) createAccount() error {
	username, err := a.nonEmpty("Choose a username: ")
	if err != nil {
		return err
	}
	if _, err := a.users.FindByUsername(username); err == nil {
		a.println("Username already exists.")
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		a.storeFailed(err)
		return nil
	}

	var password string
	for {
		if password, err = a.in.Password("Choose a password: "); err != nil {
			return err
		}
		if auth.ValidatePasswordPolicy(password) != nil {
			a.println("Password must be at least 8 characters, contain upper, lower, and digit.")
			continue
		}
		confirm, err := a.in.Password("Confirm password: ")
		if err != nil {
			return err
		}
		if password != confirm {
			a.println("Passwords do not match.")
			continue
		}
		break
	}

	user, err := a.users.Register(username, password)
	switch {
	case errors.Is(err, storage.ErrDuplicateUsername):
		a.println("Username already exists.")
	case err != nil:
		a.printf("Failed to create account: %v\n", err)
	default:
		a.printf("Account created. Your user id: %d\n", user.ID)
	}
	return nil
}

func (a *app) transactionMenu() error {
	commands := []struct {
		name, help string
		fn         func() error
	}{
		{"LIST", "List expenses", a.list},
		{"ADD", "Add expense", a.add},
		{"EDIT", "Edit expense", a.edit},
		{"DELETE", "Delete expense", a.delete},
		{"REPORTS", "Show reports", a.reports},
		{"VISUALIZE", "Show charts", a.visualize},
		{"EXPORT", "Export expenses to CSV", a.export},
		{"LOGOUT", "Logout", nil},
	}

	for {
		a.println()
		a.println("--- Transactions ---")
		for _, c := range commands {
			a.printf("%-9s - %s\n", c.name, c.help)
		}
		cmd, err := a.trimmed("Enter command: ")
		if err != nil {
			return err
		}
		cmd = strings.ToUpper(cmd)

		if cmd == "LOGOUT" {
			a.println("Logging out...")
			return nil
		}
		found := false
		for _, c := range commands {
			if c.name == cmd && c.fn != nil {
				found = true
				if err := c.fn(); err != nil {
					return err
				}
			}
		}
		if !found {
			a.println("Unknown command.")
		}
	}
}

func (a *app) list() error {
	expenses, err := a.expenses.ListForUser(a.user.ID)
	if err != nil {
		a.storeFailed(err)
		return nil
	}
	if len(expenses) == 0 {
		a.println("No expenses found.")
		return nil
	}
	a.println("ID | Amount | Date | Category | Description")
	for _, e := range expenses {
		a.printf("%d | %s | %s | %s | %s\n", e.ID, e.Amount.StringFixed(2), e.DateString(), e.Category, e.Description)
	}
	return nil
}

func (a *app) add() error {
	amountText, err := a.nonEmpty("Amount: ")
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		a.println("Invalid amount.")
		return nil
	}
	date, err := a.nonEmpty("Date (YYYY-MM-DD): ")
	if err != nil {
		return err
	}
	a.printf("Categories: %s\n", categoryList())
	category, err := a.trimmed("Category: ")
	if err != nil {
		return err
	}
	description, err := a.trimmed("Description: ")
	if err != nil {
		return err
	}

	if _, err := a.expenses.Add(a.user.ID, amount, date, category, description); err != nil {
		a.storeFailed(err)
		return nil
	}
	a.println("Expense added.")
	return nil
}

func (a *app) edit() error {
	id, ok, err := a.expenseID("Expense ID to edit: ")
	if err != nil || !ok {
		return err
	}
	current, err := a.expenses.Find(a.user.ID, id)
	if errors.Is(err, storage.ErrNotFound) {
		a.println("Expense not found")
		return nil
	}
	if err != nil {
		a.storeFailed(err)
		return nil
	}

	answers := make([]string, 4)
	labels := []string{
		fmt.Sprintf("Amount [%s]: ", current.Amount.StringFixed(2)),
		fmt.Sprintf("Date [%s]: ", current.DateString()),
		fmt.Sprintf("Category [%s]: ", current.Category),
		fmt.Sprintf("Description [%s]: ", current.Description),
	}
	for i, label := range labels {
		if answers[i], err = a.trimmed(label); err != nil {
			return err
		}
	}

	var update models.ExpenseUpdate
	if answers[0] != "" {
		amount, err := decimal.NewFromString(answers[0])
		if err != nil {
			a.println("Invalid amount.")
			return nil
		}
		update.Amount = &amount
	}
	if answers[1] != "" {
		update.Date = &answers[1]
	}
	if answers[2] != "" {
		update.Category = &answers[2]
	}
	if answers[3] != "" {
		update.Description = &answers[3]
	}
	if update.Empty() {
		a.println("Nothing to update.")
		return nil
	}

	if _, err := a.expenses.Edit(a.user.ID, id, update); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.println("Expense not found")
		} else {
			a.storeFailed(err)
		}
		return nil
	}
	a.println("Expense updated.")
	return nil
}

func (a *app) delete() error {
	id, ok, err := a.expenseID("Expense ID to delete: ")
	if err != nil || !ok {
		return err
	}
	yes, err := a.in.Confirm(fmt.Sprintf("Delete expense %d? (yes/no): ", id))
	if err != nil {
		return err
	}
	if !yes {
		a.println("Aborted.")
		return nil
	}
	removed, err := a.expenses.Delete(a.user.ID, id)
	switch {
	case err != nil:
		a.storeFailed(err)
	case removed:
		a.println("Deleted.")
	default:
		a.println("Not found.")
	}
	return nil
}

func (a *app) reports() error {
	expenses, err := a.expenses.ListForUser(a.user.ID)
	if err != nil {
		a.storeFailed(err)
		return nil
	}
	if len(expenses) == 0 {
		a.println("No expenses.")
		return nil
	}

	a.println()
	a.println("Total per month:")
	for _, m := range report.Monthly(expenses) {
		a.printf("%s  %10s\n", m.Month, m.Total.StringFixed(2))
	}
	a.println()
	a.println("By category:")
	for _, c := range report.ByCategory(expenses) {
		a.printf("%-10s %10s  %5.1f%%\n", c.Category, c.Total.StringFixed(2), c.Percentage)
	}
	a.println()
	a.printf("Total: %s\n", report.Total(expenses).StringFixed(2))
	return nil
}

func (a *app) visualize() error {
	expenses, err := a.expenses.ListForUser(a.user.ID)
	if err != nil {
		a.storeFailed(err)
		return nil
	}
	if len(expenses) == 0 {
		a.println("No data to plot.")
		return nil
	}

	a.println()
	if err := report.BarChart(a.out, "Monthly Spending", report.MonthBars(report.Monthly(expenses)), chartWidth); err != nil {
		return err
	}
	a.println()
	return report.BarChart(a.out, "Category Distribution", report.CategoryBars(report.ByCategory(expenses)), chartWidth)
}

func (a *app) export() error {
	filename := filepath.Join(a.exportDir, exportName(a.user.Username))
	if err := a.expenses.ExportForUser(a.user.ID, filename); err != nil {
		a.storeFailed(err)
		return nil
	}
	a.printf("Exported to %s\n", filename)
	return nil
}

// expenseID asks for a positive integer id. ok is false when the answer was not one.
func (a *app) expenseID(label string) (id int64, ok bool, err error) {
	text, err := a.nonEmpty(label)
	if err != nil {
		return 0, false, err
	}
	id, err = strconv.ParseInt(text, 10, 64)
	if err != nil || id < 1 {
		a.println("Invalid ID")
		return 0, false, nil
	}
	return id, true, nil
}

// exportName keeps the export inside the export directory whatever the username holds.
func exportName(username string) string {
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == filepath.Separator || r < ' ' {
			return '_'
		}
		return r
	}, username)
	return fmt.Sprintf("export_%s.csv", safe)
}

func categoryList() string {
	names := make([]string, len(models.Categories))
	for i, c := range models.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
