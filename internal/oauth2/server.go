package oauth2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

const callbackTimeout = 5 * time.Minute

// WaitForCode serves the redirect URL's path on its host and returns the
// authorization code of the first callback carrying the expected state.
func WaitForCode(ctx context.Context, redirectURL, state string, logger *slog.Logger) (string, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return "", fmt.Errorf("invalid redirect url: %w", err)
	}

	listener, err := net.Listen("tcp", u.Host)
	if err != nil {
		return "", fmt.Errorf("failed to start local server: %w", err)
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(u.Path, callbackHandler(state, codeChan, errChan))
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errChan <- fmt.Errorf("server error: %w", err):
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Debug("started local OAuth2 server", "url", redirectURL)

	timeoutCtx, cancel := context.WithTimeout(ctx, callbackTimeout)
	defer cancel()

	select {
	case code := <-codeChan:
		return code, nil
	case err := <-errChan:
		return "", err
	case <-timeoutCtx.Done():
		return "", fmt.Errorf("timeout waiting for authorization")
	}
}

func callbackHandler(state string, codeChan chan<- string, errChan chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "Invalid state", http.StatusBadRequest)
			return
		}
		if msg := q.Get("error"); msg != "" {
			select {
			case errChan <- fmt.Errorf("authorization denied: %s", msg):
			default:
			}
			http.Error(w, "Authorization denied", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "No code provided", http.StatusBadRequest)
			return
		}

		select {
		case codeChan <- code:
		default:
		}

		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `<html>
	<head><title>Authentication Successful</title></head>
	<body style="font-family: Arial, sans-serif; text-align: center; padding: 50px;">
		<div style="color: green; font-size: 24px;">Authentication Successful!</div>
		<div>You can now close this window and return to the terminal.</div>
	</body>
</html>`)
	}
}
