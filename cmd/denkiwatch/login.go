package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"

	"github.com/jmorita/denkiwatch/internal/auth"
)

var loginInteractive bool

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the TEPCO portal and store the token",
	Long: `Performs the portal login and stores the captured bearer token in the
database with a 24-hour expiry. With credentials in the config this runs
headless; --interactive opens a visible browser for you to log in manually,
useful when the automated flow is blocked by bot detection.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVar(&loginInteractive, "interactive", false, "open a visible browser and log in manually")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg)

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if loginInteractive {
		return runInteractiveLogin(db)
	}

	if !cfg.HasCredentials() {
		return fmt.Errorf("no credentials in config; add tepco.username/password or use --interactive")
	}

	tokens, _ := buildCore(cfg, db, logger)
	if _, err := tokens.Refresh(context.Background()); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Println("✓ Login successful, token stored")
	return nil
}

// runInteractiveLogin opens a visible browser, lets the user log in, and
// captures the bearer token from the portal's API traffic
func runInteractiveLogin(db tokenStore) error {
	fmt.Println("Opening browser for TEPCO login...")
	fmt.Println("Please log in manually in the browser window.")
	fmt.Println("Then press Enter here to save the captured token...")

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, cancel = context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	var capturedToken string
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		req, ok := ev.(*network.EventRequestWillBeSent)
		if !ok || capturedToken != "" {
			return
		}
		if header, ok := req.Request.Headers["Authorization"]; ok {
			if authStr, ok := header.(string); ok && strings.HasPrefix(authStr, "Bearer ") {
				capturedToken = strings.TrimPrefix(authStr, "Bearer ")
				fmt.Println("✓ Captured bearer token from network request")
			}
		}
	})

	if err := chromedp.Run(ctx,
		network.Enable(),
		chromedp.Navigate("https://epauth.tepco.co.jp/u/login"),
	); err != nil {
		return fmt.Errorf("navigating to login page: %w", err)
	}

	fmt.Scanln()

	if capturedToken == "" {
		return fmt.Errorf("no bearer token captured - make sure you logged in and the portal loaded usage data")
	}

	if err := db.StoreToken(capturedToken, time.Now().Add(auth.TokenTTL)); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}

	fmt.Println("✓ Token stored")
	return nil
}

// tokenStore is the slice of the database the interactive login needs
type tokenStore interface {
	StoreToken(token string, expiresAt time.Time) error
}
