package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// supabaseSource exchanges a Supabase refresh token for an access token on
// every call. Supabase rotates refresh tokens and revokes the used one, so
// the latest is kept and, when store is set, written to the state dir.
type supabaseSource struct {
	ctx        context.Context
	httpClient *http.Client
	endpoint   string
	anonKey    string
	now        func() time.Time

	store  *RefreshTokenStore
	origin string

	mu           sync.Mutex
	refreshToken string
}

func newSupabaseSource(ctx context.Context, hc *http.Client, baseURL, anonKey, refreshToken string) *supabaseSource {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &supabaseSource{
		ctx:          ctx,
		httpClient:   hc,
		endpoint:     strings.TrimRight(baseURL, "/") + "/auth/v1/token?grant_type=refresh_token",
		anonKey:      anonKey,
		now:          time.Now,
		refreshToken: refreshToken,
	}
}

type supabaseTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// Token implements oauth2.TokenSource.
func (s *supabaseSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(map[string]string{"refresh_token": s.refreshToken})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.anonKey)

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, classifyError(SourceSupabase, err)
	}
	defer resp.Body.Close()
	log.Debug().Int("statusCode", resp.StatusCode).Dur("duration", time.Since(start)).Msg("Supabase token response")

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, classifyError(SourceSupabase, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(SourceSupabase, resp.StatusCode, supabaseErrorMessage(body))
	}

	var out supabaseTokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &TokenError{Type: ErrTypeUnknown, Source: SourceSupabase, Message: "malformed token response", Err: err}
	}
	if out.AccessToken == "" {
		return nil, &TokenError{Type: ErrTypeUnknown, Source: SourceSupabase, Message: "token response missing access_token"}
	}
	if out.RefreshToken != "" && out.RefreshToken != s.refreshToken {
		s.refreshToken = out.RefreshToken
		if s.store != nil {
			if err := s.store.Save(s.origin, out.RefreshToken); err != nil {
				log.Warn().Err(err).Str("file", s.store.Path()).Msg("Failed to save rotated refresh token")
			}
		}
	}

	tok := &oauth2.Token{
		AccessToken:  out.AccessToken,
		TokenType:    out.TokenType,
		RefreshToken: s.refreshToken,
	}
	if out.ExpiresIn > 0 {
		tok.Expiry = s.now().Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	log.Debug().Time("expiry", tok.Expiry).Msg("Supabase access token issued")
	return tok, nil
}

// supabaseErrorMessage pulls the message out of a GoTrue error body.
func supabaseErrorMessage(body []byte) string {
	var e struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		for _, m := range []string{e.ErrorDescription, e.Msg, e.Error} {
			if m != "" {
				return m
			}
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
