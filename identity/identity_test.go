package identity

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/deemkeen/mangafedi/activitypub"
	"github.com/deemkeen/mangafedi/db"
	"github.com/deemkeen/mangafedi/domain"
	"github.com/deemkeen/mangafedi/keys"
	"github.com/deemkeen/mangafedi/util"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testBase     = "https://b.example"
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
)

var testSecret = util.StaticSecret("0123456789abcdef0123456789abcdef")

func setupEngine(t *testing.T) (*Engine, *db.DB) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	engine := NewEngine(database, testSecret, activitypub.NewURLs(testBase), Options{
		Registration: true,
		BcryptCost:   bcrypt.MinCost,
	})
	return engine, database
}

func register(t *testing.T, e *Engine, username string) *RegistrationResult {
	t.Helper()
	res, err := e.RegisterAccount(context.Background(), RegistrationRequest{
		Credentials: Credentials{Username: username, Email: username + "@example.com", Password: "correct horse"},
	})
	require.NoError(t, err)
	return res
}

func TestRegisterAccount(t *testing.T) {
	e, database := setupEngine(t)
	ctx := context.Background()

	res := register(t, e, "alice")
	require.NoError(t, keys.ValidateMnemonic(res.Mnemonic))

	portable, err := keys.DerivePortableKeypair(res.Mnemonic)
	require.NoError(t, err)

	acc, err := database.ReadAccByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, portable.Fingerprint, acc.PortableKeyFingerprint)
	require.Equal(t, portable.PublicKey, acc.PortablePublicKey)
	require.Equal(t, testBase+"/users/alice", acc.ActorURI)
	require.Equal(t, testBase+"/users/alice/inbox", acc.InboxURI)
	require.True(t, acc.IsActive)
	require.Empty(t, acc.KnownActorURIs)
	require.NotContains(t, acc.PrivateKey, "PRIVATE KEY")

	private, err := keys.DecryptPrivateKey(testSecret, acc.PrivateKey)
	require.NoError(t, err)
	_, err = keys.ParsePrivateKey(private)
	require.NoError(t, err)
}

func TestRegisterClosed(t *testing.T) {
	e, _ := setupEngine(t)
	e.opts.Registration = false

	_, err := e.RegisterAccount(context.Background(), RegistrationRequest{
		Credentials: Credentials{Username: "alice", Email: "alice@example.com", Password: "correct horse"},
	})
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestRegisterValidation(t *testing.T) {
	e, _ := setupEngine(t)
	register(t, e, "alice")

	cases := map[string]Credentials{
		"short username": {Username: "al", Email: "al@example.com", Password: "correct horse"},
		"bad characters": {Username: "al ice", Email: "alice2@example.com", Password: "correct horse"},
		"bad email":      {Username: "alice2", Email: "not-an-email", Password: "correct horse"},
		"short password": {Username: "alice2", Email: "alice2@example.com", Password: "short"},
		"taken username": {Username: "alice", Email: "other@example.com", Password: "correct horse"},
		"taken email":    {Username: "alice2", Email: "alice@example.com", Password: "correct horse"},
	}
	for name, creds := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.RegisterAccount(context.Background(), RegistrationRequest{Credentials: creds})
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()
	register(t, e, "alice")

	acc, err := e.Authenticate(ctx, "alice", "correct horse")
	require.NoError(t, err)
	require.Equal(t, "alice", acc.Username)

	_, err = e.Authenticate(ctx, "alice", "wrong horse")
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = e.Authenticate(ctx, "nobody", "correct horse")
	require.ErrorIs(t, err, domain.ErrForbidden)
}
