package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	loginURL = "https://epauth.tepco.co.jp/u/login"
	// apiHost identifies requests whose Authorization header carries the
	// bearer token we need
	apiHost = "kcx-api.tepco-z.com"

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"
)

// Authenticator obtains a bearer token via an interactive login flow
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// BrowserAuthenticator drives the TEPCO portal login in a headless
// browser and captures the bearer token from the portal's own API calls.
// Each Login call owns its browser session and releases it on every exit
// path.
type BrowserAuthenticator struct {
	headless bool
	timeout  time.Duration
	logger   *slog.Logger
}

// NewBrowserAuthenticator creates a browser-based authenticator
func NewBrowserAuthenticator(headless bool, timeout time.Duration, logger *slog.Logger) *BrowserAuthenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserAuthenticator{
		headless: headless,
		timeout:  timeout,
		logger:   logger,
	}
}

// Login performs the portal login and returns the captured bearer token
func (a *BrowserAuthenticator) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", ErrCredentialsNotConfigured
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", a.headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("disable-http2", true),
		chromedp.Flag("disable-quic", true),
		chromedp.UserAgent(userAgent),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, a.timeout)
	defer cancel()

	// The portal front-end sends the bearer token on its own API calls
	// right after login. The listener resolves tokenCh exactly once and
	// the login flow waits on it below.
	tokenCh := make(chan string, 1)
	var once sync.Once
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		req, ok := ev.(*network.EventRequestWillBeSent)
		if !ok || !strings.Contains(req.Request.URL, apiHost) {
			return
		}
		header, ok := req.Request.Headers["Authorization"]
		if !ok {
			return
		}
		if auth, ok := header.(string); ok && strings.HasPrefix(auth, "Bearer ") {
			once.Do(func() {
				tokenCh <- strings.TrimPrefix(auth, "Bearer ")
			})
		}
	})

	a.logger.Info("Navigating to portal login page", "url", loginURL)

	if err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(loginURL),
		chromedp.Sleep(2*time.Second), // Auth0 redirect settles
	); err != nil {
		return "", fmt.Errorf("navigating to login page: %w", err)
	}

	// A missing form is a distinct failure: UI change or bot detection
	formCtx, formCancel := context.WithTimeout(browserCtx, 15*time.Second)
	defer formCancel()
	if err := chromedp.Run(formCtx,
		chromedp.WaitVisible(`input[type="email"], input[name="email"]`, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLoginFormNotFound, err)
	}

	if err := chromedp.Run(browserCtx,
		chromedp.SendKeys(`input[type="email"], input[name="email"]`, username, chromedp.ByQuery),
		chromedp.SendKeys(`input[type="password"], input[name="password"]`, password, chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("submitting login form: %w", err)
	}

	select {
	case token := <-tokenCh:
		a.logger.Info("Bearer token captured from network request")
		return token, nil
	case <-time.After(30 * time.Second):
		// The front-end sometimes stores the token without firing an API
		// call right away; check browser storage before giving up.
		if token, err := a.tokenFromStorage(browserCtx); err == nil && token != "" {
			a.logger.Info("Bearer token captured from browser storage")
			return token, nil
		}
		return "", ErrTokenNotCaptured
	case <-browserCtx.Done():
		return "", fmt.Errorf("login flow aborted: %w", browserCtx.Err())
	}
}

func (a *BrowserAuthenticator) tokenFromStorage(ctx context.Context) (string, error) {
	var token string
	err := chromedp.Run(ctx,
		chromedp.Evaluate(`
			localStorage.getItem('access_token') ||
			localStorage.getItem('bearer_token') ||
			sessionStorage.getItem('access_token') ||
			sessionStorage.getItem('bearer_token') ||
			""
		`, &token),
	)
	if err != nil {
		return "", fmt.Errorf("reading browser storage: %w", err)
	}
	return token, nil
}
