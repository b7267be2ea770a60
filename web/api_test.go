package web

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/deemkeen/mangafedi/keys"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

type accountResponse struct {
	Account struct {
		Username       string   `json:"username"`
		ActorURI       string   `json:"actorUri"`
		KnownActorURIs []string `json:"knownActorUris"`
		IsActive       bool     `json:"isActive"`
	} `json:"account"`
	Mnemonic          string   `json:"mnemonic"`
	IsNewAccount      bool     `json:"isNewAccount"`
	PreviousActorURIs []string `json:"previousActorUris"`
}

type seriesResponse struct {
	Series struct {
		Slug                   string   `json:"slug"`
		ActorURI               string   `json:"actorUri"`
		PortableKeyFingerprint string   `json:"portableKeyFingerprint"`
		KnownActorURIs         []string `json:"knownActorUris"`
	} `json:"series"`
	IsNewActor bool `json:"isNewActor"`
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("Failed to decode %s: %v", body, err)
	}
	return v
}

func TestRegisterEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, "POST", "/api/v1/auth/register",
		[]byte(`{"username":"alice","email":"alice@example.com","password":"`+testPassword+`"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	res := decode[accountResponse](t, w.Body.Bytes())
	if err := keys.ValidateMnemonic(res.Mnemonic); err != nil {
		t.Errorf("Expected a valid mnemonic, got %v", err)
	}
	if res.Account.ActorURI != testBase+"/users/alice" {
		t.Errorf("Expected actor %s/users/alice, got %s", testBase, res.Account.ActorURI)
	}
	for _, secret := range []string{"PRIVATE KEY", "passwordHash", "privateKey", "$2a$"} {
		if strings.Contains(w.Body.String(), secret) {
			t.Errorf("Response leaks %q", secret)
		}
	}
}

func TestRegisterEndpointErrors(t *testing.T) {
	ts := setupTestServer(t)
	ts.register(t, "alice")

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedCode   string
	}{
		{"bad json", `{`, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"short password", `{"username":"carol","email":"carol@example.com","password":"x"}`, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"taken username", `{"username":"alice","email":"other@example.com","password":"` + testPassword + `"}`, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, "POST", "/api/v1/auth/register", []byte(tt.body))
			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			body := decode[map[string]string](t, w.Body.Bytes())
			if body["error"] != tt.expectedCode {
				t.Errorf("Expected error code %s, got %s", tt.expectedCode, body["error"])
			}
		})
	}
}

func TestRecoverEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	prior := ts.register(t, "alice")

	body := `{"mnemonic":"` + prior.Mnemonic + `","username":"alice2","email":"alice2@example.com","password":"` + testPassword + `"}`
	w := ts.do(t, "POST", "/api/v1/identity/recover", []byte(body))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	res := decode[accountResponse](t, w.Body.Bytes())
	if res.IsNewAccount {
		t.Error("Expected the prior account to be linked")
	}
	if len(res.PreviousActorURIs) != 1 || res.PreviousActorURIs[0] != prior.Account.ActorURI {
		t.Errorf("Expected previous actor %s, got %v", prior.Account.ActorURI, res.PreviousActorURIs)
	}
	if res.Mnemonic != "" {
		t.Error("Recovery must not echo the mnemonic")
	}

	if w := ts.do(t, "GET", "/users/alice", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected the prior actor to be gone, got %d", w.Code)
	}
	if w := ts.do(t, "GET", "/users/alice2", nil); w.Code != http.StatusOK {
		t.Errorf("Expected the new actor to be served, got %d", w.Code)
	}
}

func TestRecoverEndpointInvalidMnemonic(t *testing.T) {
	ts := setupTestServer(t)

	body := `{"mnemonic":"not a phrase","username":"alice","email":"alice@example.com","password":"` + testPassword + `"}`
	w := ts.do(t, "POST", "/api/v1/identity/recover", []byte(body))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	if res := decode[map[string]string](t, w.Body.Bytes()); res["error"] != "INVALID_MNEMONIC" {
		t.Errorf("Expected INVALID_MNEMONIC, got %s", res["error"])
	}
}

func TestSeriesEndpointsRequireAuth(t *testing.T) {
	ts := setupTestServer(t)
	ts.register(t, "alice")

	w := ts.do(t, "POST", "/api/v1/series", []byte(`{"title":"Akira"}`))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without credentials, got %d", w.Code)
	}

	w = ts.do(t, "POST", "/api/v1/series", []byte(`{"title":"Akira"}`), func(r *http.Request) {
		r.SetBasicAuth("alice", "wrong password")
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for a wrong password, got %d", w.Code)
	}
}

func TestCreateBindAndClaimSeries(t *testing.T) {
	ts := setupTestServer(t)
	ts.register(t, "alice")
	ts.register(t, "bob")

	w := ts.do(t, "POST", "/api/v1/series", []byte(`{"title":"Chainsaw Man","contentType":"manga"}`), basicAuth("alice"))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decode[seriesResponse](t, w.Body.Bytes())
	if created.Series.Slug != "chainsaw-man" {
		t.Errorf("Expected slug chainsaw-man, got %s", created.Series.Slug)
	}

	// only the owner may bind
	w = ts.do(t, "POST", "/api/v1/series/chainsaw-man/bind", []byte(`{"mnemonic":"`+testMnemonic+`"}`), basicAuth("bob"))
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for a non-owner, got %d", w.Code)
	}

	w = ts.do(t, "POST", "/api/v1/series/chainsaw-man/bind", []byte(`{"mnemonic":"`+testMnemonic+`"}`), basicAuth("alice"))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	portable, err := keys.DerivePortableKeypair(testMnemonic)
	if err != nil {
		t.Fatalf("Failed to derive: %v", err)
	}
	if bound := decode[seriesResponse](t, w.Body.Bytes()); bound.Series.PortableKeyFingerprint != portable.Fingerprint {
		t.Errorf("Expected fingerprint %s, got %s", portable.Fingerprint, bound.Series.PortableKeyFingerprint)
	}

	w = ts.do(t, "POST", "/api/v1/identity/claim-series", []byte(`{"mnemonic":"`+testMnemonic+`"}`), basicAuth("bob"))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	claimed := decode[seriesResponse](t, w.Body.Bytes())
	if claimed.IsNewActor {
		t.Error("Expected a local claim to keep the actor")
	}
	if claimed.Series.ActorURI != created.Series.ActorURI {
		t.Errorf("Expected actor %s, got %s", created.Series.ActorURI, claimed.Series.ActorURI)
	}
}

func TestClaimSeriesNotFound(t *testing.T) {
	ts := setupTestServer(t)
	ts.register(t, "bob")

	w := ts.do(t, "POST", "/api/v1/identity/claim-series", []byte(`{"mnemonic":"`+testMnemonic+`"}`), basicAuth("bob"))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}
