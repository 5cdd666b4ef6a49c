package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"expense-ledger/internal/prompt"
	"expense-ledger/internal/storage"
)

const defaultDataDir = "./data"

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
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	username := fs.String("user", "", "Username")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	dataDir := fs.String("data", defaultDataDir, "Directory holding users.csv")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *username == "" {
		fmt.Fprintln(stdout, "Usage: adduser -user <username> [-password <password>] [-data <data_dir>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: user")
	}

	password := *passwordFlag
	if password == "" {
		var err error
		password, err = prompt.New(stdin, stdout).Password("Password: ")
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}

	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	// DATA_DIR applies only when -data was left at its default
	if dir := os.Getenv("DATA_DIR"); dir != "" && *dataDir == defaultDataDir {
		*dataDir = dir
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to open data directory: %w", err)
	}
	users, err := storage.NewUserStore(filepath.Join(*dataDir, "users.csv"))
	if err != nil {
		return fmt.Errorf("failed to open users table: %w", err)
	}

	user, err := users.Register(*username, password)
	switch {
	case errors.Is(err, storage.ErrDuplicateUsername):
		return fmt.Errorf("user %s already exists", *username)
	case errors.Is(err, storage.ErrValidation):
		return err
	case err != nil:
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %d\n", user.Username, user.ID)
	return nil
}
