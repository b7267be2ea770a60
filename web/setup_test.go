package web

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/deemkeen/mangafedi/activitypub"
	"github.com/deemkeen/mangafedi/db"
	"github.com/deemkeen/mangafedi/domain"
	"github.com/deemkeen/mangafedi/identity"
	"github.com/deemkeen/mangafedi/util"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const (
	testDomain   = "manga.example"
	testBase     = "https://" + testDomain
	testPassword = "correct horse"
	testAdmin    = "admin-token"
)

var testSecret = util.StaticSecret("0123456789abcdef0123456789abcdef")

type inboxByConvention struct{}

func (inboxByConvention) ResolveInbox(_ context.Context, actorURI string) string {
	return activitypub.Inbox(actorURI)
}

type testServer struct {
	router   *gin.Engine
	services Services
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	conf := &util.AppConfig{}
	conf.Conf.SslDomain = testDomain
	conf.Conf.WithAp = true
	conf.Conf.AdminToken = testAdmin

	urls := activitypub.NewURLs(testBase)
	gate := activitypub.NewTrustGate(database)
	outbox := activitypub.NewOutbox(database, urls)
	s := Services{
		DB:        database,
		URLs:      urls,
		Directory: activitypub.NewDirectory(database, testSecret, urls),
		Processor: activitypub.NewProcessor(database, gate, outbox, inboxByConvention{}, urls),
		Gate:      gate,
		Health:    activitypub.NewHealthTracker(database, nil),
		Identity: identity.NewEngine(database, testSecret, urls, identity.Options{
			Registration: true,
			BcryptCost:   bcrypt.MinCost,
		}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &testServer{router: NewRouter(ctx, conf, s), services: s}
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte, prepare ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, p := range prepare {
		p(req)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func basicAuth(username string) func(*http.Request) {
	return func(r *http.Request) { r.SetBasicAuth(username, testPassword) }
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func (ts *testServer) register(t *testing.T, username string) *identity.RegistrationResult {
	t.Helper()
	res, err := ts.services.Identity.RegisterAccount(context.Background(), identity.RegistrationRequest{
		Credentials: identity.Credentials{Username: username, Email: username + "@example.com", Password: testPassword},
	})
	if err != nil {
		t.Fatalf("Failed to register %s: %v", username, err)
	}
	return res
}

func (ts *testServer) createSeries(t *testing.T, owner *domain.Account, title string) *domain.Series {
	t.Helper()
	s, err := ts.services.Identity.CreateSeries(context.Background(), owner, identity.SeriesRequest{Title: title})
	if err != nil {
		t.Fatalf("Failed to create series %s: %v", title, err)
	}
	return s
}

func (ts *testServer) createChapter(t *testing.T, s *domain.Series, number, title string) *domain.Chapter {
	t.Helper()
	ch := &domain.Chapter{SeriesId: s.Id, ChapterNumber: number, Title: title, UploaderId: s.UploaderId}
	if err := ts.services.DB.CreateChapter(context.Background(), ch); err != nil {
		t.Fatalf("Failed to create chapter: %v", err)
	}
	return ch
}
