package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/csvtable"
	"expense-ledger/internal/models"

	"github.com/sirupsen/logrus"
)

// UsersHeader is the schema row of the users table.
var UsersHeader = []string{"user_id", "username", "hashed_password"}

// UserStore is the credential store backed by a users CSV file.
type UserStore struct {
	table *csvtable.Table
	log   logrus.FieldLogger
}

// NewUserStore opens (or creates) the users table at path.
func NewUserStore(path string, opts ...Option) (*UserStore, error) {
	o := buildOptions("users", opts)
	table, err := csvtable.Open(path, UsersHeader)
	if err != nil {
		return nil, fmt.Errorf("open users table: %w", err)
	}
	return &UserStore{table: table, log: o.logger.WithField("path", table.Path())}, nil
}

// Register creates a user. Surrounding whitespace is trimmed from the username,
// and the password must satisfy auth.ValidatePasswordPolicy.
func (s *UserStore) Register(username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, invalid("username", errors.New("must not be empty"))
	}
	if err := auth.ValidatePasswordPolicy(password); err != nil {
		return nil, invalid("password", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var created models.User
	err = s.table.Update(func(rows [][]string) ([][]string, error) {
		users, err := s.decode(rows)
		if err != nil {
			return nil, err
		}
		var maxID int64
		for _, u := range users {
			if u.Username == username {
				return nil, ErrDuplicateUsername
			}
			maxID = max(maxID, u.ID)
		}
		created = models.User{ID: maxID + 1, Username: username, PasswordHash: hash}
		return append(rows, encodeUser(created)), nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"user_id": created.ID, "username": created.Username}).Info("user registered")
	created.PasswordHash = ""
	return &created, nil
}

// Authenticate returns the user when password matches. Unknown usernames and
// wrong passwords both yield ErrInvalidCredentials.
func (s *UserStore) Authenticate(username, password string) (*models.User, error) {
	u, err := s.FindByUsername(username)
	if errors.Is(err, ErrNotFound) {
		auth.BurnCycles(password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(password, u.PasswordHash) {
		s.log.WithField("user_id", u.ID).Warn("password mismatch")
		return nil, ErrInvalidCredentials
	}
	u.PasswordHash = ""
	return u, nil
}

// FindByUsername returns the user with this username, ignoring surrounding
// whitespace, including its verifier. Matching is case-sensitive.
func (s *UserStore) FindByUsername(username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	return s.find(func(u models.User) bool { return u.Username == username })
}

// FindByID returns the user with the given id, without its verifier.
func (s *UserStore) FindByID(id int64) (*models.User, error) {
	u, err := s.find(func(u models.User) bool { return u.ID == id })
	if err != nil {
		return nil, err
	}
	u.PasswordHash = ""
	return u, nil
}

// Count returns the number of registered users.
func (s *UserStore) Count() (int, error) {
	users, err := s.all()
	return len(users), err
}

func (s *UserStore) find(match func(models.User) bool) (*models.User, error) {
	users, err := s.all()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *UserStore) all() ([]models.User, error) {
	var users []models.User
	err := s.table.View(func(rows [][]string) error {
		var err error
		users, err = s.decode(rows)
		return err
	})
	return users, err
}

// decode parses every row. Any malformed row fails the whole load.
func (s *UserStore) decode(rows [][]string) ([]models.User, error) {
	users := make([]models.User, 0, len(rows))
	ids := make(map[int64]bool, len(rows))
	names := make(map[string]bool, len(rows))
	for i, row := range rows {
		line := i + 2
		id, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil || id < 1 {
			return nil, csvtable.Corrupt(s.table.Path(), line, "user_id %q", row[0])
		}
		if row[1] == "" {
			return nil, csvtable.Corrupt(s.table.Path(), line, "empty username")
		}
		if _, _, err := auth.ParseHash(row[2]); err != nil {
			return nil, csvtable.Corrupt(s.table.Path(), line, "%v", err)
		}
		if ids[id] {
			return nil, csvtable.Corrupt(s.table.Path(), line, "duplicate user_id %d", id)
		}
		if names[row[1]] {
			return nil, csvtable.Corrupt(s.table.Path(), line, "duplicate username %q", row[1])
		}
		ids[id], names[row[1]] = true, true
		users = append(users, models.User{ID: id, Username: row[1], PasswordHash: row[2]})
	}
	return users, nil
}

func encodeUser(u models.User) []string {
	return []string{strconv.FormatInt(u.ID, 10), u.Username, u.PasswordHash}
}
