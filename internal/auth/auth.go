// Package auth obtains an OAuth2-authenticated HTTP client for the Google
// Calendar backend and keeps its token on disk.
package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
)

const (
	// authTimeout bounds how long the loopback flow waits for the browser.
	authTimeout = 5 * time.Minute
	// RequestTimeout bounds every request made by a Client.
	RequestTimeout = 30 * time.Second
)

// TokenStore is an interface for saving and loading OAuth tokens.
type TokenStore interface {
	SaveToken(token *oauth2.Token) error
	// LoadToken returns nil, nil when no token has been saved yet.
	LoadToken() (*oauth2.Token, error)
}

// Flow obtains a first token from the user.
type Flow func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)

// LoadOAuthConfig reads a client credentials file downloaded from the Google
// Cloud console ("installed" or "web" application).
func LoadOAuthConfig(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, gcal.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return cfg, nil
}

// autoSaveTokenSource wraps an oauth2.TokenSource and saves refreshed tokens.
type autoSaveTokenSource struct {
	source     oauth2.TokenSource
	tokenStore TokenStore
	lastToken  *oauth2.Token
	logger     *zap.Logger
}

// Token implements oauth2.TokenSource and saves the token if it was refreshed.
func (a *autoSaveTokenSource) Token() (*oauth2.Token, error) {
	token, err := a.source.Token()
	if err != nil {
		return nil, err
	}

	if a.lastToken == nil || a.lastToken.AccessToken != token.AccessToken {
		if err := a.tokenStore.SaveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
		a.logger.Debug("Saved refreshed OAuth token", zap.Time("expiry", token.Expiry))
		a.lastToken = token
	}

	return token, nil
}

// Client returns an authenticated HTTP client. If the store holds no token,
// flow is run to get one and the result is saved.
func Client(ctx context.Context, oauthConfig *oauth2.Config, tokenStore TokenStore, flow Flow, logger *zap.Logger) (*http.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	token, err := tokenStore.LoadToken()
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	if token == nil {
		if flow == nil {
			return nil, errors.New("no saved token and no interactive flow available")
		}
		token, err = flow(ctx, oauthConfig)
		if err != nil {
			return nil, err
		}
		if err := tokenStore.SaveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save token: %w", err)
		}
		logger.Info("Authorization successful")
	}

	// Refreshes must keep working after ctx, which only bounds sign-in, ends.
	base := context.WithoutCancel(ctx)
	source := &autoSaveTokenSource{
		source:     oauth2.ReuseTokenSource(token, oauthConfig.TokenSource(base, token)),
		tokenStore: tokenStore,
		lastToken:  token,
		logger:     logger,
	}
	client := oauth2.NewClient(base, source)
	client.Timeout = RequestTimeout
	return client, nil
}

// PasteFlow prints the authorization URL to out and reads the code the user
// pastes back from in. It suits machines without a browser.
func PasteFlow(in io.Reader, out io.Writer) Flow {
	return func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
		authURL := cfg.AuthCodeURL(uuid.NewString(), oauth2.AccessTypeOffline)

		fmt.Fprintln(out, "Please visit the following URL to authorize the application:")
		fmt.Fprintln(out, authURL)
		fmt.Fprint(out, "Enter the authorization code: ")

		var code string
		if _, err := fmt.Fscanln(in, &code); err != nil {
			return nil, fmt.Errorf("failed to read authorization code: %w", err)
		}

		token, err := cfg.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
		}
		return token, nil
	}
}

// LoopbackFlow receives the authorization code on a local HTTP server. Port
// 8080 is tried first so it can be registered as a redirect URI; a random
// port is used when it is taken.
func LoopbackFlow(out io.Writer) Flow {
	return func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
		state := uuid.NewString()
		redirectURL, codeChan, errorChan, shutdown, err := startLocalServer(state)
		if err != nil {
			return nil, err
		}
		defer shutdown()

		// Copy so the caller's config keeps its redirect URL.
		local := *cfg
		local.RedirectURL = redirectURL
		authURL := local.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

		fmt.Fprintf(out, "Starting local server on %s\n", redirectURL)
		if redirectURL != "http://127.0.0.1:8080" {
			fmt.Fprintf(out, "Note: Port 8080 was unavailable. Make sure to add %s to your authorized redirect URIs in Google Cloud Console.\n", redirectURL)
		}
		fmt.Fprintln(out, "\nPlease visit the following URL to authorize the application:")
		fmt.Fprintln(out, authURL)
		fmt.Fprintln(out, "\nWaiting for authorization...")

		var code string
		select {
		case code = <-codeChan:
		case err := <-errorChan:
			return nil, fmt.Errorf("failed to receive authorization code: %w", err)
		case <-time.After(authTimeout):
			return nil, fmt.Errorf("authorization timeout: no response received within %s", authTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		token, err := local.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
		}
		return token, nil
	}
}

// startLocalServer starts a local HTTP server to receive the OAuth callback.
func startLocalServer(state string) (string, <-chan string, <-chan error, func(), error) {
	listener, err := net.Listen("tcp", "127.0.0.1:8080")
	if err != nil {
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return "", nil, nil, nil, fmt.Errorf("failed to start local server: %w", err)
		}
	}

	port := listener.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("error") != "":
			fmt.Fprintf(w, "<html><body><h1>Authorization failed</h1><p>Error: %s</p></body></html>", html.EscapeString(q.Get("error")))
			sendErr(errorChan, fmt.Errorf("authorization error: %s", q.Get("error")))
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
		case q.Get("code") == "":
			fmt.Fprint(w, "<html><body><h1>No authorization code received</h1></body></html>")
			sendErr(errorChan, errors.New("no authorization code received"))
		default:
			fmt.Fprint(w, "<html><body><h1>Authorization successful!</h1><p>You can close this window.</p></body></html>")
			select {
			case codeChan <- q.Get("code"):
			default:
			}
		}
	})

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			sendErr(errorChan, fmt.Errorf("server error: %w", err))
		}
	}()

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
	return redirectURL, codeChan, errorChan, shutdown, nil
}

func sendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}
