package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/deemkeen/mangafedi/domain"
	"github.com/deemkeen/mangafedi/keys"
	"github.com/deemkeen/mangafedi/util"
)

func TestResolveUser(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	doc, err := env.directory.ResolveUser(ctx, "owner")
	if err != nil {
		t.Fatalf("ResolveUser failed: %v", err)
	}
	if doc == nil {
		t.Fatal("Expected actor document")
	}
	if doc.Type != "Person" {
		t.Errorf("Expected type Person, got %s", doc.Type)
	}
	if doc.ID != testBase+"/users/owner" {
		t.Errorf("Expected id %s/users/owner, got %s", testBase, doc.ID)
	}
	if doc.Inbox != doc.ID+"/inbox" {
		t.Errorf("Expected inbox %s/inbox, got %s", doc.ID, doc.Inbox)
	}
	if doc.Endpoints.SharedInbox != testBase+"/inbox" {
		t.Errorf("Expected shared inbox, got %s", doc.Endpoints.SharedInbox)
	}
	if doc.PublicKey.ID != doc.ID+"#main-key" || doc.PublicKey.Owner != doc.ID {
		t.Errorf("Unexpected public key block: %+v", doc.PublicKey)
	}
	if doc.PublicKey.PublicKeyPem != env.owner.PublicKey {
		t.Error("Expected published key to match the stored public key")
	}
	if len(doc.Attachment) != 1 || doc.Attachment[0].Value != "manga.example" {
		t.Errorf("Expected instance attachment, got %+v", doc.Attachment)
	}

	missing, err := env.directory.ResolveUser(ctx, "nobody")
	if err != nil || missing != nil {
		t.Errorf("Expected nil for unknown user, got %v %v", missing, err)
	}
}

func TestResolveUserNeverLeaksPrivateKey(t *testing.T) {
	env := setupTestEnv(t)
	doc, err := env.directory.ResolveUser(context.Background(), "owner")
	if err != nil {
		t.Fatalf("ResolveUser failed: %v", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, field := range []string{"privateKey", "privateKeyPem"} {
		if _, ok := generic[field]; ok {
			t.Errorf("Expected no %s field in actor document", field)
		}
	}
}

func TestResolveSeries(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	series := env.createSeries(t, "one-piece")

	doc, err := env.directory.ResolveSeries(ctx, "one-piece")
	if err != nil || doc == nil {
		t.Fatalf("Expected series document, got %v %v", doc, err)
	}
	if doc.Type != "Application" {
		t.Errorf("Expected type Application, got %s", doc.Type)
	}
	if doc.PreferredUsername != "one-piece" || doc.Name != series.Title {
		t.Errorf("Unexpected names: %s %s", doc.PreferredUsername, doc.Name)
	}
	if doc.Followers != series.ActorURI+"/followers" {
		t.Errorf("Expected followers collection, got %s", doc.Followers)
	}
	if doc.Outbox != series.ActorURI+"/outbox" {
		t.Errorf("Expected outbox collection, got %s", doc.Outbox)
	}
	if len(doc.Context) != 3 {
		t.Fatalf("Expected 3 context entries, got %d", len(doc.Context))
	}
	if ext, ok := doc.Context[2].(map[string]any); !ok || ext["alsoKnownAs"] == nil {
		t.Errorf("Expected alsoKnownAs term in the context, got %v", doc.Context[2])
	}

	byURI, err := env.directory.ResolveActor(ctx, series.ActorURI)
	if err != nil || byURI == nil || byURI.ID != series.ActorURI {
		t.Errorf("Expected ResolveActor to find the series, got %v %v", byURI, err)
	}

	if _, err := env.db.TombstoneSeries(ctx, series.Id); err != nil {
		t.Fatalf("TombstoneSeries failed: %v", err)
	}
	doc, err = env.directory.ResolveSeries(ctx, "one-piece")
	if err != nil || doc != nil {
		t.Errorf("Expected nil for a tombstoned series, got %v %v", doc, err)
	}
	doc, err = env.directory.ResolveActor(ctx, series.ActorURI)
	if err != nil || doc != nil {
		t.Errorf("Expected nil for a tombstoned series, got %v %v", doc, err)
	}
}

func TestGetSigningKeypair(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	series := env.createSeries(t, "one-piece")

	for _, actor := range []string{env.owner.ActorURI, series.ActorURI} {
		pair, err := env.directory.GetSigningKeypair(ctx, actor)
		if err != nil {
			t.Fatalf("GetSigningKeypair(%s) failed: %v", actor, err)
		}
		if pair.Private != sharedKeypair(t).Private {
			t.Errorf("Expected decrypted private key for %s", actor)
		}
		if _, err := keys.ParsePrivateKey(pair.Private); err != nil {
			t.Errorf("Expected parsable private key, got %v", err)
		}
	}

	_, err := env.directory.GetSigningKeypair(ctx, testBase+"/users/nobody")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestGetSigningKeypairWrongSecret(t *testing.T) {
	env := setupTestEnv(t)
	other := NewDirectory(env.db, util.StaticSecret("ffffffffffffffffffffffffffffffff"), env.urls)

	_, err := other.GetSigningKeypair(context.Background(), env.owner.ActorURI)
	if !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Errorf("Expected decryption failure, got %v", err)
	}
}

func TestFollowersCollection(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	series := env.createSeries(t, "one-piece")

	for _, actor := range []string{"https://a.example/users/1", "https://b.example/users/2"} {
		payload := followPayload(actor+"/follow", actor, series.ActorURI)
		if err := env.processor.HandleInboundActivity(ctx, payload); err != nil {
			t.Fatalf("Follow failed: %v", err)
		}
	}

	collection, err := env.directory.FollowersCollection(ctx, "one-piece")
	if err != nil || collection == nil {
		t.Fatalf("Expected followers collection, got %v %v", collection, err)
	}
	if collection.TotalItems != 2 || len(collection.OrderedItems) != 2 {
		t.Errorf("Expected 2 followers, got %d (%d items)", collection.TotalItems, len(collection.OrderedItems))
	}
	if collection.ID != series.ActorURI+"/followers" {
		t.Errorf("Expected collection id, got %s", collection.ID)
	}

	missing, err := env.directory.FollowersCollection(ctx, "unknown")
	if err != nil || missing != nil {
		t.Errorf("Expected nil for unknown series, got %v %v", missing, err)
	}
}
