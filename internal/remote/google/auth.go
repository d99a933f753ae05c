package google

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// authPort is the localhost port the OAuth redirect lands on. It must match
// the redirect URI registered with the Google API client.
const authPort = "8989"

// Authorize runs the interactive OAuth flow for userID: it prints an
// authorization URL, waits for Google to redirect the browser back to a
// local listener, exchanges the code, and stores the resulting token.
//
// AccessTypeOffline is requested so the token carries a refresh token;
// "prompt=consent" forces Google to issue one even when the user has
// authorized before.
func (m *Manager) Authorize(ctx context.Context, userID string) error {
	base, err := m.clientConfig()
	if err != nil {
		return fmt.Errorf("google client credentials unavailable: %w (place credentials.json in %s)", err, m.dir)
	}

	cfg := *base
	cfg.RedirectURL = fmt.Sprintf("http://localhost:%s", authPort)

	ln, err := net.Listen("tcp", ":"+authPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", authPort, err)
	}
	defer ln.Close()

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	server := &http.Server{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "authorization code not found", http.StatusBadRequest)
				errCh <- fmt.Errorf("authorization code not found in redirect")
				return
			}
			fmt.Fprint(w, "Authorization successful. You can close this window.")
			codeCh <- code
		}),
	}

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("auth redirect server error: %w", err)
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := cfg.AuthCodeURL("state-token",
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("Open the following URL in your browser to authorize dayplan:\n\n  %s\n\n", authURL)
	m.logger.Printf("Waiting for authorization code on port %s", authPort)

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("authorization timed out")
	case <-ctx.Done():
		return ctx.Err()
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tok, err := cfg.Exchange(exchangeCtx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if err := m.StoreToken(userID, tok); err != nil {
		return err
	}
	m.Invalidate(userID)
	m.logger.Printf("Stored token for user %s", userID)
	return nil
}
