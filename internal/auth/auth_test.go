package auth

import (
	"context"
	"encoding/base64"
	"testing"
	"time"
)

func newTestService(t *testing.T) *AuthService {
	t.Helper()
	as, err := NewAuthService(context.Background(), Config{
		Secret:      base64.StdEncoding.EncodeToString([]byte("test-secret")),
		TokenExpiry: time.Hour,
	}, nil)
	if err != nil {
		t.Fatalf("NewAuthService failed: %v", err)
	}
	return as
}

func TestAuthService_LoginAndVerify(t *testing.T) {
	as := newTestService(t)

	user, err := as.AddUser("driver1", "Dave Driver", "driver", "hunter2")
	if err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}
	if user.ID == "" {
		t.Fatal("AddUser returned empty id")
	}

	resp := as.Login(LoginRequest{Username: "driver1", Password: "hunter2"})
	if !resp.Success {
		t.Fatalf("login failed: %s", resp.Message)
	}
	if resp.Token == "" {
		t.Fatal("login returned empty token")
	}
	if resp.UserID != user.ID {
		t.Errorf("login user id mismatch: %s vs %s", resp.UserID, user.ID)
	}

	userID, err := as.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if userID != user.ID {
		t.Errorf("VerifyToken returned %s, want %s", userID, user.ID)
	}
}

func TestAuthService_WrongPassword(t *testing.T) {
	as := newTestService(t)
	if _, err := as.AddUser("driver1", "Dave", "driver", "hunter2"); err != nil {
		t.Fatal(err)
	}

	resp := as.Login(LoginRequest{Username: "driver1", Password: "wrong"})
	if resp.Success {
		t.Fatal("login with wrong password succeeded")
	}

	resp = as.Login(LoginRequest{Username: "nobody", Password: "x"})
	if resp.Success {
		t.Fatal("login with unknown user succeeded")
	}
}

func TestAuthService_Throttling(t *testing.T) {
	as := newTestService(t)
	if _, err := as.AddUser("driver1", "Dave", "driver", "hunter2"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		as.Login(LoginRequest{Username: "driver1", Password: "wrong"})
	}

	// Even the right password is rejected while throttled.
	resp := as.Login(LoginRequest{Username: "driver1", Password: "hunter2"})
	if resp.Success {
		t.Fatal("throttled login succeeded")
	}
}

type memCredentialsStore struct {
	creds map[string]UserCredentials
}

func newMemCredentialsStore() *memCredentialsStore {
	return &memCredentialsStore{creds: make(map[string]UserCredentials)}
}

func (s *memCredentialsStore) UpsertCredentials(c UserCredentials) error {
	s.creds[c.ID] = c
	return nil
}

func (s *memCredentialsStore) ListCredentials() ([]UserCredentials, error) {
	out := make([]UserCredentials, 0, len(s.creds))
	for _, c := range s.creds {
		out = append(out, c)
	}
	return out, nil
}

func TestAuthService_ThrottlingSurvivesRestart(t *testing.T) {
	store := newMemCredentialsStore()
	cfg := Config{
		Secret:      base64.StdEncoding.EncodeToString([]byte("test-secret")),
		TokenExpiry: time.Hour,
	}

	as, err := NewAuthService(context.Background(), cfg, store)
	if err != nil {
		t.Fatalf("NewAuthService failed: %v", err)
	}
	if _, err := as.AddUser("driver1", "Dave", "driver", "hunter2"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		as.Login(LoginRequest{Username: "driver1", Password: "wrong"})
	}

	// A fresh service over the same store must still be throttled.
	restarted, err := NewAuthService(context.Background(), cfg, store)
	if err != nil {
		t.Fatalf("NewAuthService failed: %v", err)
	}
	resp := restarted.Login(LoginRequest{Username: "driver1", Password: "hunter2"})
	if resp.Success {
		t.Fatal("failed-attempt counters were lost across restart")
	}

	// The throttled rejection happens before any counter change, so the
	// persisted count is still the five real failures.
	if creds, ok := store.creds[findUserID(t, store, "driver1")]; !ok || creds.FailedLoginAttempts != 5 {
		t.Fatalf("expected 5 persisted failed attempts, got %+v", creds)
	}
}

func findUserID(t *testing.T, store *memCredentialsStore, username string) string {
	t.Helper()
	for id, c := range store.creds {
		if c.UserName == username {
			return id
		}
	}
	t.Fatalf("no stored credentials for %s", username)
	return ""
}

func TestAuthService_Logoff(t *testing.T) {
	as := newTestService(t)
	if _, err := as.AddUser("driver1", "Dave", "driver", "hunter2"); err != nil {
		t.Fatal(err)
	}

	resp := as.Login(LoginRequest{Username: "driver1", Password: "hunter2"})
	if !resp.Success {
		t.Fatal("login failed")
	}
	if err := as.Logoff(resp.Token); err != nil {
		t.Fatalf("Logoff failed: %v", err)
	}
	if _, err := as.VerifyToken(resp.Token); err == nil {
		t.Error("token still valid after logoff")
	}
}

func TestAuthService_DuplicateUser(t *testing.T) {
	as := newTestService(t)
	if _, err := as.AddUser("driver1", "Dave", "driver", "hunter2"); err != nil {
		t.Fatal(err)
	}
	if _, err := as.AddUser("driver1", "Other Dave", "driver", "x"); err != ErrUserExists {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
}
