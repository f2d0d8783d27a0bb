package authstore

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var credentialPattern = regexp.MustCompile(`^[0-9a-f-]{36}#[0-9a-f-]{36}$`)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewTestStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestIssue_CredentialShape(t *testing.T) {
	store := newStore(t)

	credential, err := store.Issue("test key")
	require.NoError(t, err)
	assert.Regexp(t, credentialPattern, credential)
}

func TestValidate_Lifecycle(t *testing.T) {
	store := newStore(t)

	credential, err := store.Issue("lifecycle")
	require.NoError(t, err)

	prefix, token, ok := strings.Cut(credential, "#")
	require.True(t, ok)

	assert.Equal(t, Valid, store.Validate(prefix, token))

	require.True(t, store.DeleteByPrefix(prefix))
	assert.Equal(t, NotFound, store.Validate(prefix, token))

	// Deleting again affects nothing
	assert.False(t, store.DeleteByPrefix(prefix))
}

func TestValidate_WrongToken(t *testing.T) {
	store := newStore(t)

	credential, err := store.Issue("")
	require.NoError(t, err)
	prefix, _, _ := strings.Cut(credential, "#")

	// Wrong token is indistinguishable from a missing prefix
	assert.Equal(t, NotFound, store.Validate(prefix, "not-the-token"))
	assert.Equal(t, NotFound, store.Validate("no-such-prefix", "whatever"))
}

func TestValidate_Expiry(t *testing.T) {
	store := newStore(t)

	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return issued })

	credential, err := store.Issue("expiring")
	require.NoError(t, err)
	prefix, token, _ := strings.Cut(credential, "#")

	// One day before expiry
	store.SetNowFunc(func() time.Time { return issued.Add(KeyLifetime - 24*time.Hour) })
	assert.Equal(t, Valid, store.Validate(prefix, token))

	// One day after expiry
	store.SetNowFunc(func() time.Time { return issued.Add(KeyLifetime + 24*time.Hour) })
	assert.Equal(t, Expired, store.Validate(prefix, token))
}

func TestEditDescription(t *testing.T) {
	store := newStore(t)

	credential, err := store.Issue("before")
	require.NoError(t, err)
	prefix, _, _ := strings.Cut(credential, "#")

	assert.True(t, store.EditDescription(prefix, "after"))
	assert.False(t, store.EditDescription("no-such-prefix", "after"))

	entries := store.ListAll()
	require.Len(t, entries, 1)
	assert.Equal(t, "after", entries[0].Description)

	// Empty description clears the column
	assert.True(t, store.EditDescription(prefix, ""))
	entries = store.ListAll()
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Description)
}

func TestListAll_InsertionOrder(t *testing.T) {
	store := newStore(t)

	first, err := store.Issue("first")
	require.NoError(t, err)
	second, err := store.Issue("second")
	require.NoError(t, err)

	entries := store.ListAll()
	require.Len(t, entries, 2)
	assert.True(t, strings.HasPrefix(first, entries[0].Prefix))
	assert.True(t, strings.HasPrefix(second, entries[1].Prefix))
	assert.Equal(t, "first", entries[0].Description)
	assert.Equal(t, "second", entries[1].Description)
}
