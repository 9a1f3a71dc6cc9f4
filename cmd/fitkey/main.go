package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"bogofit/internal/infra"
	"bogofit/internal/infra/credentials"
)

var envKeys = map[string]string{
	credentials.ProviderFitting: "FITTING_API_KEY",
	credentials.ProviderVideo:   "VIDEO_API_KEY",
	credentials.ProviderGemini:  "GEMINI_API_KEY",
}

func main() {
	var (
		keyFlag      string
		providerFlag string
		noteFlag     string
	)
	flag.StringVar(&keyFlag, "key", "", "API key for the selected provider (falls back to the environment)")
	flag.StringVar(&providerFlag, "provider", credentials.ProviderFitting, "engine to configure (fitting, video or gemini)")
	flag.StringVar(&noteFlag, "note", "", "free-form note stored with the token")
	flag.Parse()

	_ = godotenv.Load()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	if provider == "" {
		provider = credentials.ProviderFitting
	}
	if !credentials.KnownProvider(provider) {
		fmt.Fprintf(os.Stderr, "unsupported provider %q\n", providerFlag)
		os.Exit(1)
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(envKeys[provider]))
	}
	if key == "" {
		fmt.Fprintf(os.Stderr, "%s API key is required via -key or %s\n", strings.ToUpper(provider), envKeys[provider])
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "fitkey").Str("provider", provider).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	ctxExec, cancelExec := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelExec()
	if err := store.EnsureSchema(ctxExec); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare token table: %v\n", err)
		os.Exit(1)
	}
	props := map[string]any{"stored_by": "fitkey", "stored_at": time.Now().UTC().Format(time.RFC3339)}
	if note := strings.TrimSpace(noteFlag); note != "" {
		props["note"] = note
	}
	if err := store.SetToken(ctxExec, provider, key, props); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s api key: %v\n", provider, err)
		os.Exit(1)
	}

	fmt.Printf("%s API key stored successfully\n", strings.ToUpper(provider))
}
