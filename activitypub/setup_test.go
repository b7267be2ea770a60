package activitypub

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/deemkeen/mangafedi/db"
	"github.com/deemkeen/mangafedi/domain"
	"github.com/deemkeen/mangafedi/keys"
	"github.com/deemkeen/mangafedi/util"
	"github.com/google/uuid"
)

const testBase = "https://manga.example"

var testSecret = util.StaticSecret("0123456789abcdef0123456789abcdef")

var (
	testKeysOnce sync.Once
	testKeys     *keys.SigningKeypair
)

// sharedKeypair generates one RSA keypair for the whole test binary.
func sharedKeypair(t *testing.T) *keys.SigningKeypair {
	t.Helper()
	testKeysOnce.Do(func() {
		pair, err := keys.GenerateSigningKeypair(context.Background(), 2048)
		if err != nil {
			t.Fatalf("Failed to generate keypair: %v", err)
		}
		testKeys = pair
	})
	return testKeys
}

type staticResolver struct{}

func (staticResolver) ResolveInbox(_ context.Context, actorURI string) string {
	return Inbox(actorURI)
}

type testEnv struct {
	db        *db.DB
	urls      URLs
	gate      *TrustGate
	outbox    *Outbox
	processor *Processor
	directory *Directory
	owner     *domain.Account
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	urls := NewURLs(testBase)
	gate := NewTrustGate(database)
	outbox := NewOutbox(database, urls)
	env := &testEnv{
		db:        database,
		urls:      urls,
		gate:      gate,
		outbox:    outbox,
		processor: NewProcessor(database, gate, outbox, staticResolver{}, urls),
		directory: NewDirectory(database, testSecret, urls),
	}
	env.owner = env.createAccount(t, "owner")
	return env
}

func (e *testEnv) createAccount(t *testing.T, username string) *domain.Account {
	t.Helper()
	pair := sharedKeypair(t)
	sealed, err := keys.EncryptPrivateKey(testSecret, pair.Private)
	if err != nil {
		t.Fatalf("Failed to encrypt key: %v", err)
	}
	actor := e.urls.User(username)
	acc := &domain.Account{
		Username:   username,
		Email:      username + "@example.com",
		ActorURI:   actor,
		InboxURI:   Inbox(actor),
		PublicKey:  pair.Public,
		PrivateKey: sealed,
		IsActive:   true,
	}
	if err := e.db.CreateAccount(context.Background(), acc); err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	return acc
}

func (e *testEnv) createSeries(t *testing.T, slug string) *domain.Series {
	t.Helper()
	pair := sharedKeypair(t)
	sealed, err := keys.EncryptPrivateKey(testSecret, pair.Private)
	if err != nil {
		t.Fatalf("Failed to encrypt key: %v", err)
	}
	s := &domain.Series{
		Slug:       slug,
		Title:      "Title of " + slug,
		UploaderId: e.owner.Id,
		ActorURI:   e.urls.Series(slug),
		PublicKey:  pair.Public,
		PrivateKey: sealed,
	}
	if err := e.db.CreateSeries(context.Background(), s); err != nil {
		t.Fatalf("Failed to create series: %v", err)
	}
	return s
}

func (e *testEnv) createChapter(t *testing.T, s *domain.Series) (*domain.Chapter, string) {
	t.Helper()
	ch := &domain.Chapter{Id: uuid.New(), SeriesId: s.Id, ChapterNumber: "1", UploaderId: e.owner.Id}
	if err := e.db.CreateChapter(context.Background(), ch); err != nil {
		t.Fatalf("Failed to create chapter: %v", err)
	}
	return ch, e.urls.Chapter(s.Slug, ch.Id)
}
