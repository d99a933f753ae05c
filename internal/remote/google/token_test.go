package google

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/dayplanhq/dayplan/internal/remote"
)

const testCredentials = `{"installed":{
	"client_id":"test-client.apps.googleusercontent.com",
	"project_id":"dayplan-test",
	"auth_uri":"https://accounts.google.com/o/oauth2/auth",
	"token_uri":"https://oauth2.googleapis.com/token",
	"client_secret":"test-secret",
	"redirect_uris":["http://localhost"]
}}`

func writeCredentials(t *testing.T, dir string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, credentialsFile), []byte(testCredentials), 0600); err != nil {
		t.Fatalf("Failed to write credentials: %v", err)
	}
}

// TestNewManagerWithoutCredentials tests that a manager can be built before
// credentials.json exists; only remote use requires it
func TestNewManagerWithoutCredentials(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, nil)

	if m.HasTokens("alice") {
		t.Error("HasTokens() true with no token file")
	}

	_, err := m.Credential(context.Background(), "alice")
	if err == nil {
		t.Fatal("Credential() succeeded without credentials.json")
	}
	if !errors.Is(err, remote.ErrNoTokens) {
		t.Errorf("Credential() error = %v, want ErrNoTokens", err)
	}
}

// TestAuthorizeWithoutCredentials tests that the interactive flow fails with
// a setup hint instead of panicking when credentials.json is missing
func TestAuthorizeWithoutCredentials(t *testing.T) {
	m := NewManager(t.TempDir(), nil)

	err := m.Authorize(context.Background(), "alice")
	if err == nil {
		t.Fatal("Authorize() succeeded without credentials.json")
	}
}

// TestCredentialNoTokenFile tests the never-connected path with valid client
// credentials in place
func TestCredentialNoTokenFile(t *testing.T) {
	dir := t.TempDir()
	writeCredentials(t, dir)
	m := NewManager(dir, nil)

	_, err := m.Credential(context.Background(), "alice")
	if !errors.Is(err, remote.ErrNoTokens) {
		t.Errorf("Credential() error = %v, want ErrNoTokens", err)
	}
}

// TestCredentialCorruptTokenFile tests that an unreadable token is reported
// as a refresh failure, not a missing connection
func TestCredentialCorruptTokenFile(t *testing.T) {
	dir := t.TempDir()
	writeCredentials(t, dir)
	m := NewManager(dir, nil)

	if err := os.WriteFile(m.TokenPath("alice"), []byte("{not json"), 0600); err != nil {
		t.Fatalf("Failed to write token file: %v", err)
	}

	_, err := m.Credential(context.Background(), "alice")
	if !errors.Is(err, remote.ErrRefreshFailed) {
		t.Errorf("Credential() error = %v, want ErrRefreshFailed", err)
	}
}

// TestCredentialRoundTrip tests StoreToken followed by Credential with a
// still-valid token, which never touches the network
func TestCredentialRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeCredentials(t, dir)
	m := NewManager(dir, nil)

	tok := &oauth2.Token{
		AccessToken:  "access-token",
		TokenType:    "Bearer",
		RefreshToken: "refresh-token",
		Expiry:       time.Now().Add(time.Hour),
	}
	if err := m.StoreToken("alice", tok); err != nil {
		t.Fatalf("StoreToken() failed: %v", err)
	}
	if !m.HasTokens("alice") {
		t.Error("HasTokens() false after StoreToken")
	}

	h, err := m.Credential(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Credential() failed: %v", err)
	}
	if h.UserID() != "alice" {
		t.Errorf("UserID() = %q, want alice", h.UserID())
	}

	// The handle is cached; a second call returns the same one.
	h2, err := m.Credential(context.Background(), "alice")
	if err != nil {
		t.Fatalf("second Credential() failed: %v", err)
	}
	if h2 != h {
		t.Error("second Credential() built a new handle")
	}

	// Invalidate drops the cache so the next call rebuilds from disk.
	m.Invalidate("alice")
	h3, err := m.Credential(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Credential() after Invalidate failed: %v", err)
	}
	if h3 == h {
		t.Error("Invalidate() did not drop the cached handle")
	}
}
