package storage

import (
	"path/filepath"
	"testing"
	"time"

	"expense-ledger/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// SessionTestSuite provides a test suite for session operations
type SessionTestSuite struct {
	suite.Suite
	db *DB
}

// SetupTest runs before each test
func (suite *SessionTestSuite) SetupTest() {
	db, err := NewDB(filepath.Join(suite.T().TempDir(), "sessions.db"))
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db
}

// TearDownTest runs after each test
func (suite *SessionTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *SessionTestSuite) newSession(expiresAt time.Time) string {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), suite.db.CreateSession(token, 7, expiresAt))
	return token
}

func (suite *SessionTestSuite) TestCreateAndValidateSession() {
	token := suite.newSession(time.Now().Add(30 * 24 * time.Hour))

	userID, err := suite.db.ValidateSession(token)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(7), userID)
}

func (suite *SessionTestSuite) TestValidateSessionWithInfo() {
	token := suite.newSession(time.Now().Add(30 * 24 * time.Hour))

	info, err := suite.db.ValidateSessionWithInfo(token)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(7), info.UserID)

	// Check that last_activity is recent
	assert.Less(suite.T(), time.Since(info.LastActivity), 5*time.Second, "LastActivity should be recent")
}

func (suite *SessionTestSuite) TestExpiredSessionIsInvalid() {
	token := suite.newSession(time.Now().Add(-time.Minute))

	_, err := suite.db.ValidateSession(token)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *SessionTestSuite) TestRenewSession() {
	token := suite.newSession(time.Now().Add(30 * 24 * time.Hour))

	// Wait a moment to ensure timestamps differ
	time.Sleep(10 * time.Millisecond)

	originalInfo, err := suite.db.ValidateSessionWithInfo(token)
	require.NoError(suite.T(), err)

	err = suite.db.RenewSession(token, time.Now().Add(60*24*time.Hour))
	require.NoError(suite.T(), err)

	updatedInfo, err := suite.db.ValidateSessionWithInfo(token)
	require.NoError(suite.T(), err)

	assert.True(suite.T(), updatedInfo.LastActivity.After(originalInfo.LastActivity),
		"LastActivity should be updated after renewal")
	assert.True(suite.T(), updatedInfo.ExpiresAt.After(originalInfo.ExpiresAt),
		"ExpiresAt should be extended after renewal")
}

func (suite *SessionTestSuite) TestDeleteSession() {
	token := suite.newSession(time.Now().Add(30 * 24 * time.Hour))

	_, err := suite.db.ValidateSession(token)
	require.NoError(suite.T(), err, "session should exist before deletion")

	require.NoError(suite.T(), suite.db.DeleteSession(token))

	_, err = suite.db.ValidateSession(token)
	assert.ErrorIs(suite.T(), err, ErrNotFound, "expected error after deleting session")
}

func (suite *SessionTestSuite) TestCleanExpiredSessions() {
	live := suite.newSession(time.Now().Add(time.Hour))
	suite.newSession(time.Now().Add(-time.Hour))
	suite.newSession(time.Now().Add(-2 * time.Hour))

	removed, err := suite.db.CleanExpiredSessions()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(2), removed)

	_, err = suite.db.ValidateSession(live)
	assert.NoError(suite.T(), err)
}

func TestNewDB_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	first, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, first.CreateSession("tok", 1, time.Now().Add(time.Hour)))
	require.NoError(t, first.Close())

	// Migrations are idempotent and data survives.
	second, err := NewDB(path)
	require.NoError(t, err)
	defer second.Close()

	userID, err := second.ValidateSession("tok")
	require.NoError(t, err)
	assert.Equal(t, int64(1), userID)
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}
