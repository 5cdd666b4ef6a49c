package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// UserStoreTestSuite exercises the credential store against a temp users file
type UserStoreTestSuite struct {
	suite.Suite
	path  string
	store *UserStore
}

// SetupTest runs before each test
func (suite *UserStoreTestSuite) SetupTest() {
	suite.path = filepath.Join(suite.T().TempDir(), "users.csv")
	store, err := NewUserStore(suite.path)
	require.NoError(suite.T(), err, "failed to open users store")
	suite.store = store
}

func (suite *UserStoreTestSuite) TestRegisterAndAuthenticate() {
	user, err := suite.store.Register("alice", "Secret123")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), user.ID)
	assert.Equal(suite.T(), "alice", user.Username)
	assert.Empty(suite.T(), user.PasswordHash, "secret material must not be returned")

	authed, err := suite.store.Authenticate("alice", "Secret123")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), user.ID, authed.ID)
	assert.Empty(suite.T(), authed.PasswordHash)
}

func (suite *UserStoreTestSuite) TestRegisterAssignsSequentialIDs() {
	for i, name := range []string{"alice", "bob", "carol"} {
		user, err := suite.store.Register(name, "Secret123")
		require.NoError(suite.T(), err)
		assert.Equal(suite.T(), int64(i+1), user.ID)
	}

	count, err := suite.store.Count()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 3, count)
}

func (suite *UserStoreTestSuite) TestRegisterDuplicate() {
	_, err := suite.store.Register("alice", "Secret123")
	require.NoError(suite.T(), err)

	_, err = suite.store.Register("alice", "Different9")
	assert.ErrorIs(suite.T(), err, ErrDuplicateUsername)

	// Usernames are case-sensitive.
	_, err = suite.store.Register("Alice", "Secret123")
	assert.NoError(suite.T(), err)
}

func (suite *UserStoreTestSuite) TestUsernameWhitespaceIsTrimmed() {
	created, err := suite.store.Register("  bob ", "Secret123")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "bob", created.Username)

	_, err = suite.store.Register("bob", "Secret123")
	assert.ErrorIs(suite.T(), err, ErrDuplicateUsername)

	for _, name := range []string{"bob", " bob", "bob\t"} {
		u, err := suite.store.Authenticate(name, "Secret123")
		require.NoError(suite.T(), err, "authenticate %q", name)
		assert.Equal(suite.T(), created.ID, u.ID)
	}
}

func (suite *UserStoreTestSuite) TestRegisterEnforcesPolicy() {
	_, err := suite.store.Register("alice", "weak")
	assert.ErrorIs(suite.T(), err, ErrValidation)
	assert.ErrorIs(suite.T(), err, ErrWeakPassword)

	_, err = suite.store.Register("   ", "Secret123")
	assert.ErrorIs(suite.T(), err, ErrValidation)

	count, err := suite.store.Count()
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), count, "rejected registrations must not persist")
}

func (suite *UserStoreTestSuite) TestAuthenticateFailures() {
	_, err := suite.store.Register("alice", "Secret123")
	require.NoError(suite.T(), err)

	_, err = suite.store.Authenticate("alice", "Secret124")
	assert.ErrorIs(suite.T(), err, ErrInvalidCredentials)

	_, err = suite.store.Authenticate("bob", "Secret123")
	assert.ErrorIs(suite.T(), err, ErrInvalidCredentials)

	_, err = suite.store.Authenticate("ALICE", "Secret123")
	assert.ErrorIs(suite.T(), err, ErrInvalidCredentials)
}

func (suite *UserStoreTestSuite) TestFileLayout() {
	_, err := suite.store.Register("alice", "Secret123")
	require.NoError(suite.T(), err)

	rows, err := suite.store.table.Read()
	require.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 1)
	assert.Equal(suite.T(), "1", rows[0][0])
	assert.Equal(suite.T(), "alice", rows[0][1])
	assert.Regexp(suite.T(), `^[0-9a-f]{32}\$[0-9a-f]{64}$`, rows[0][2])
	assert.NotContains(suite.T(), rows[0][2], "Secret123")
}

func (suite *UserStoreTestSuite) TestReopenSeesPersistedUsers() {
	_, err := suite.store.Register("alice", "Secret123")
	require.NoError(suite.T(), err)

	reopened, err := NewUserStore(suite.path)
	require.NoError(suite.T(), err)

	user, err := reopened.FindByID(1)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "alice", user.Username)

	_, err = reopened.FindByID(2)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *UserStoreTestSuite) TestCorruptFileFailsLoad() {
	content := "user_id,username,hashed_password\n1,alice,not-a-hash\n"
	require.NoError(suite.T(), os.WriteFile(suite.path, []byte(content), 0o644))

	_, err := suite.store.Authenticate("alice", "Secret123")
	assert.ErrorIs(suite.T(), err, ErrCorruptRecord)

	_, err = suite.store.Register("bob", "Secret123")
	assert.ErrorIs(suite.T(), err, ErrCorruptRecord)
}

func TestUserStoreSuite(t *testing.T) {
	suite.Run(t, new(UserStoreTestSuite))
}
