package httpapi

import (
	"testing"
	"time"

	"github.com/nguyenhx22/chatops-ai-bot/internal/auth"
)

func TestTokenStoreIssueLookupRevoke(t *testing.T) {
	s := newTokenStore()
	bearer := s.Issue(auth.Identity{UserID: "alice"}, auth.Token{AccessToken: "az"})

	entry, ok := s.Lookup(bearer)
	if !ok || entry.identity.UserID != "alice" {
		t.Fatalf("Lookup = %+v, %v", entry, ok)
	}

	s.Revoke(bearer)
	if _, ok := s.Lookup(bearer); ok {
		t.Error("token still resolvable after Revoke")
	}
}

func TestPruneExpiredDropsUnrefreshable(t *testing.T) {
	s := newTokenStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	dead := s.Issue(auth.Identity{UserID: "alice"}, auth.Token{
		AccessToken: "az1",
		Expiry:      now.Add(-time.Minute),
	})
	refreshable := s.Issue(auth.Identity{UserID: "bob"}, auth.Token{
		AccessToken:  "az2",
		RefreshToken: "rt2",
		Expiry:       now.Add(-time.Minute),
	})
	live := s.Issue(auth.Identity{UserID: "carol"}, auth.Token{
		AccessToken: "az3",
		Expiry:      now.Add(time.Hour),
	})

	dropped := s.PruneExpired()
	if len(dropped) != 1 || dropped[0] != "alice" {
		t.Errorf("dropped = %v, want [alice]", dropped)
	}
	if _, ok := s.Lookup(dead); ok {
		t.Error("expired token without refresh token survived")
	}
	if _, ok := s.Lookup(refreshable); !ok {
		t.Error("refreshable token was pruned")
	}
	if _, ok := s.Lookup(live); !ok {
		t.Error("live token was pruned")
	}
}
