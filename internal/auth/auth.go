// Package auth resolves the credentials used to call the backend.
//
// A Session is built once per invocation and passed to the API client.
// Sources are tried in order and the first configured one wins:
//  1. MENTOR_ACCESS_TOKEN environment variable (static bearer token)
//  2. Supabase refresh-token grant (MENTOR_SUPABASE_URL, MENTOR_SUPABASE_ANON_KEY, MENTOR_REFRESH_TOKEN).
//     Rotated tokens are saved to <state dir>/refresh_token.json and
//     preferred over the configured one on later runs.
//  3. GPG-encrypted token at <state dir>/credentials.gpg
//  4. AWS SSM SecureString parameter named by MENTOR_SSM_TOKEN_PARAM
//
// With none of these the session is anonymous and requests carry the
// cached X-User-ID instead.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/fpang/mentor-metrics-cli/internal/config"
)

// Credential source names.
const (
	SourceEnv       = "env"
	SourceSupabase  = "supabase"
	SourceGPG       = "gpg"
	SourceSSM       = "ssm"
	SourceAnonymous = "anonymous"
)

const credentialFile = "credentials.gpg"

// Deps supplies the collaborators Resolve may need. Zero values select the
// defaults.
type Deps struct {
	HTTPClient *http.Client
	// NewSSM builds an SSM client; only called when an SSM parameter is
	// configured and no earlier source applies.
	NewSSM func(ctx context.Context) (ParameterGetter, error)
	// Decrypt decrypts the GPG credentials file. Defaults to the gpg binary.
	Decrypt func(path string) (string, error)
}

// Resolve builds the session for this invocation. It performs no network
// calls: remote sources are contacted on first use of the token.
func Resolve(ctx context.Context, cfg config.AuthConfig, stateDir string, deps Deps) (*Session, error) {
	users := NewUserIDStore(stateDir)

	if cfg.AccessToken != "" {
		log.Debug().Msg("Using access token from environment")
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})
		return NewSession(SourceEnv, src, false, users), nil
	}

	if cfg.RefreshToken != "" && (cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "") {
		return nil, fmt.Errorf("%s and %s are required with %s",
			config.EnvSupabaseURL, config.EnvSupabaseAnonKey, config.EnvRefreshToken)
	}
	if cfg.SupabaseURL != "" && cfg.SupabaseAnonKey != "" {
		refreshTokens := NewRefreshTokenStore(stateDir)
		refresh := cfg.RefreshToken
		saved, err := refreshTokens.Load(cfg.RefreshToken)
		if err != nil {
			log.Warn().Err(err).Str("file", refreshTokens.Path()).Msg("Ignoring saved refresh token")
		}
		if saved != "" {
			log.Debug().Str("file", refreshTokens.Path()).Msg("Using saved rotated refresh token")
			refresh = saved
		}
		if refresh != "" {
			log.Debug().Str("url", cfg.SupabaseURL).Msg("Using Supabase refresh token")
			src := newSupabaseSource(ctx, deps.HTTPClient, cfg.SupabaseURL, cfg.SupabaseAnonKey, refresh)
			src.store, src.origin = refreshTokens, cfg.RefreshToken
			return NewSession(SourceSupabase, src, true, users), nil
		}
	}

	credPath := filepath.Join(stateDir, credentialFile)
	if _, err := os.Stat(credPath); err == nil {
		decrypt := deps.Decrypt
		if decrypt == nil {
			decrypt = getFromGPG
		}
		token, err := decrypt(credPath)
		if err == nil && token != "" {
			log.Debug().Msg("Using access token from GPG encrypted file")
			src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
			return NewSession(SourceGPG, src, false, users), nil
		}
		log.Warn().Err(err).Str("file", credPath).Msg("Failed to decrypt GPG credentials; trying next source")
	}

	if cfg.SSMTokenParam != "" {
		if deps.NewSSM == nil {
			return nil, fmt.Errorf("%s is set but no SSM client is available", config.EnvSSMTokenParam)
		}
		client, err := deps.NewSSM(ctx)
		if err != nil {
			return nil, fmt.Errorf("create SSM client: %w", err)
		}
		log.Debug().Str("param", cfg.SSMTokenParam).Msg("Using access token from SSM Parameter Store")
		src := &ssmSource{ctx: ctx, client: client, name: cfg.SSMTokenParam}
		return NewSession(SourceSSM, src, true, users), nil
	}

	log.Debug().Msg("No credentials configured, using anonymous session")
	return Anonymous(users), nil
}

// getFromGPG decrypts the access token from the GPG-encrypted credentials file.
func getFromGPG(credPath string) (string, error) {
	log.Debug().Str("file", credPath).Msg("Decrypting GPG credentials")

	// Build GPG command with optional passphrase file for non-interactive use
	args := []string{"--decrypt", "--quiet"}

	passphrasePath, err := getPassphrasePath()
	if err == nil {
		fi, statErr := os.Stat(passphrasePath)
		if statErr == nil {
			mode := fi.Mode().Perm()
			if mode&0077 != 0 {
				log.Warn().
					Str("passphrase_file", passphrasePath).
					Str("permissions", fmt.Sprintf("%04o", mode)).
					Msg("Passphrase file has insecure permissions (should be 0600); skipping")
			} else {
				log.Debug().Str("passphrase_file", passphrasePath).Msg("Using passphrase file for GPG decryption")
				args = append(args, "--pinentry-mode", "loopback", "--passphrase-file", passphrasePath)
			}
		}
	}

	args = append(args, credPath)
	cmd := exec.Command("gpg", args...)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("GPG decryption failed: %s", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// getPassphrasePath returns the path to the GPG passphrase file, looked up
// beside the executable first and then in the working directory.
func getPassphrasePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}

	passphrasePath := filepath.Join(filepath.Dir(exe), ".gpg-passphrase")
	if _, err := os.Stat(passphrasePath); err == nil {
		return passphrasePath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return filepath.Join(cwd, ".gpg-passphrase"), nil
}
