package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/fpang/mentor-metrics-cli/internal/config"
)

// fakeSSM returns a fixed parameter value and counts calls.
type fakeSSM struct {
	value string
	err   error
	calls int
}

func (f *fakeSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if !aws.ToBool(in.WithDecryption) {
		return nil, errors.New("expected WithDecryption")
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(f.value)}}, nil
}

func TestResolve_EnvTokenWins(t *testing.T) {
	cfg := config.AuthConfig{AccessToken: "env-token", RefreshToken: "r", SSMTokenParam: "/p"}
	s, err := Resolve(context.Background(), cfg, t.TempDir(), Deps{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Source() != SourceEnv {
		t.Errorf("expected source %s, got %s", SourceEnv, s.Source())
	}
	tok, err := s.BearerToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "env-token" {
		t.Errorf("expected env-token, got %q", tok)
	}
	if err := s.Refresh(context.Background()); !errors.Is(err, ErrNotRefreshable) {
		t.Errorf("expected ErrNotRefreshable, got %v", err)
	}
}

func TestResolve_Anonymous(t *testing.T) {
	s, err := Resolve(context.Background(), config.AuthConfig{}, t.TempDir(), Deps{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.IsAnonymous() {
		t.Errorf("expected anonymous session, got %s", s.Source())
	}
	tok, err := s.BearerToken(context.Background())
	if err != nil || tok != "" {
		t.Errorf("expected empty token, got %q (%v)", tok, err)
	}
}

func TestResolve_SupabaseRequiresURL(t *testing.T) {
	_, err := Resolve(context.Background(), config.AuthConfig{RefreshToken: "r"}, t.TempDir(), Deps{})
	if err == nil {
		t.Fatal("expected error for refresh token without Supabase URL")
	}
}

func TestResolve_GPGFile(t *testing.T) {
	dir := t.TempDir()
	credPath := filepath.Join(dir, credentialFile)
	if err := os.WriteFile(credPath, []byte("ciphertext"), 0o600); err != nil {
		t.Fatal(err)
	}

	deps := Deps{Decrypt: func(path string) (string, error) {
		if path != credPath {
			t.Errorf("expected %s, got %s", credPath, path)
		}
		return "gpg-token", nil
	}}
	s, err := Resolve(context.Background(), config.AuthConfig{}, dir, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Source() != SourceGPG {
		t.Errorf("expected source %s, got %s", SourceGPG, s.Source())
	}
	if tok, _ := s.BearerToken(context.Background()); tok != "gpg-token" {
		t.Errorf("expected gpg-token, got %q", tok)
	}
}

func TestResolve_GPGFailureFallsThroughToSSM(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, credentialFile), []byte("x"), 0o600)

	fake := &fakeSSM{value: "ssm-token"}
	deps := Deps{
		Decrypt: func(string) (string, error) { return "", errors.New("no secret key") },
		NewSSM:  func(context.Context) (ParameterGetter, error) { return fake, nil },
	}
	s, err := Resolve(context.Background(), config.AuthConfig{SSMTokenParam: "/mentor/token"}, dir, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Source() != SourceSSM {
		t.Fatalf("expected source %s, got %s", SourceSSM, s.Source())
	}
	for i := 0; i < 3; i++ {
		if tok, err := s.BearerToken(context.Background()); err != nil || tok != "ssm-token" {
			t.Fatalf("expected ssm-token, got %q (%v)", tok, err)
		}
	}
	if fake.calls != 1 {
		t.Errorf("expected token to be reused (1 SSM call), got %d", fake.calls)
	}

	fake.value = "rotated"
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	if tok, _ := s.BearerToken(context.Background()); tok != "rotated" {
		t.Errorf("expected rotated token after refresh, got %q", tok)
	}
}

func TestGetFromGPGFileNotFound(t *testing.T) {
	_, err := getFromGPG(filepath.Join(t.TempDir(), credentialFile))
	if err == nil {
		t.Error("expected error when credentials file does not exist")
	}
}

func TestSupabaseSource(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "refresh_token" {
			t.Errorf("unexpected request: %s", r.URL.String())
		}
		if r.Header.Get("apikey") != "anon" {
			t.Errorf("expected apikey header, got %q", r.Header.Get("apikey"))
		}
		if n == 1 {
			w.Write([]byte(`{"access_token":"a1","token_type":"bearer","expires_in":3600,"refresh_token":"r2"}`))
			return
		}
		w.Write([]byte(`{"access_token":"a2","token_type":"bearer","expires_in":3600,"refresh_token":"r3"}`))
	}))
	defer server.Close()

	src := newSupabaseSource(context.Background(), server.Client(), server.URL+"/", "anon", "r1")
	s := NewSession(SourceSupabase, src, true, nil)

	tok, err := s.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.AccessToken != "a1" || time.Until(tok.Expiry) < 59*time.Minute {
		t.Errorf("unexpected token: %+v", tok)
	}
	if src.refreshToken != "r2" {
		t.Errorf("expected rotated refresh token r2, got %s", src.refreshToken)
	}

	// Cached until refresh is forced.
	if got, _ := s.BearerToken(context.Background()); got != "a1" {
		t.Errorf("expected cached a1, got %s", got)
	}
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	if got, _ := s.BearerToken(context.Background()); got != "a2" {
		t.Errorf("expected a2 after refresh, got %s", got)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 token calls, got %d", calls)
	}
}

func TestSupabaseSource_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid Refresh Token: Already Used"}`))
	}))
	defer server.Close()

	src := newSupabaseSource(context.Background(), server.Client(), server.URL, "anon", "used")
	_, err := src.Token()
	if !IsInvalidToken(err) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Already Used") {
		t.Errorf("expected provider message in error, got %v", err)
	}
}

func TestUserIDStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	store := NewUserIDStore(dir)

	id, err := store.Load()
	if err != nil || id != "" {
		t.Fatalf("expected empty id, got %q (%v)", id, err)
	}

	if err := store.Save("user-42"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fi, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := fi.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600, got %04o", perm)
	}

	// A fresh store reads what was persisted.
	id, err = NewUserIDStore(dir).Load()
	if err != nil || id != "user-42" {
		t.Errorf("expected user-42, got %q (%v)", id, err)
	}
}

func TestSessionRemembersUserID(t *testing.T) {
	s := Anonymous(NewUserIDStore(t.TempDir()))
	if s.UserID() != "" {
		t.Fatalf("expected no user id, got %q", s.UserID())
	}
	if err := s.RememberUserID("anon-7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.UserID() != "anon-7" {
		t.Errorf("expected anon-7, got %q", s.UserID())
	}
}

// goTrue accepts each refresh token exactly once, like Supabase rotation.
type goTrue struct {
	mu     sync.Mutex
	valid  map[string]bool
	issued int
}

func (g *goTrue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.valid[body.RefreshToken] {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid Refresh Token: Already Used"}`))
		return
	}
	delete(g.valid, body.RefreshToken)
	g.issued++
	next := fmt.Sprintf("rt%d", g.issued)
	g.valid[next] = true
	fmt.Fprintf(w, `{"access_token":"ar%d","token_type":"bearer","expires_in":3600,"refresh_token":%q}`, g.issued, next)
}

func TestResolve_RotatedRefreshTokenSurvivesInvocations(t *testing.T) {
	server := httptest.NewServer(&goTrue{valid: map[string]bool{"rt0": true}})
	defer server.Close()

	dir := t.TempDir()
	cfg := config.AuthConfig{SupabaseURL: server.URL, SupabaseAnonKey: "anon", RefreshToken: "rt0"}

	for i, want := range []string{"ar1", "ar2"} {
		s, err := Resolve(context.Background(), cfg, dir, Deps{HTTPClient: server.Client()})
		if err != nil {
			t.Fatalf("invocation %d: unexpected error: %v", i+1, err)
		}
		got, err := s.BearerToken(context.Background())
		if err != nil {
			t.Fatalf("invocation %d: unexpected error: %v", i+1, err)
		}
		if got != want {
			t.Errorf("invocation %d: expected %s, got %s", i+1, want, got)
		}
	}

	store := NewRefreshTokenStore(dir)
	fi, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := fi.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600, got %04o", perm)
	}
	if saved, _ := store.Load("rt0"); saved != "rt2" {
		t.Errorf("expected saved rt2, got %q", saved)
	}
}

func TestResolve_NewRefreshTokenSupersedesSaved(t *testing.T) {
	dir := t.TempDir()
	if err := NewRefreshTokenStore(dir).Save("old-login", "stale"); err != nil {
		t.Fatal(err)
	}
	server := httptest.NewServer(&goTrue{valid: map[string]bool{"fresh": true}})
	defer server.Close()

	cfg := config.AuthConfig{SupabaseURL: server.URL, SupabaseAnonKey: "anon", RefreshToken: "fresh"}
	s, err := Resolve(context.Background(), cfg, dir, Deps{HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, err := s.BearerToken(context.Background()); err != nil || got != "ar1" {
		t.Errorf("expected ar1 from the configured token, got %q (%v)", got, err)
	}
}

func TestResolve_SavedRefreshTokenWithoutEnv(t *testing.T) {
	dir := t.TempDir()
	if err := NewRefreshTokenStore(dir).Save("", "rt5"); err != nil {
		t.Fatal(err)
	}
	server := httptest.NewServer(&goTrue{valid: map[string]bool{"rt5": true}})
	defer server.Close()

	cfg := config.AuthConfig{SupabaseURL: server.URL, SupabaseAnonKey: "anon"}
	s, err := Resolve(context.Background(), cfg, dir, Deps{HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Source() != SourceSupabase {
		t.Errorf("expected supabase source, got %s", s.Source())
	}
}
