// Command geminikey stores or revokes the Gemini API key kept in the
// database.
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

	"imagestudio/internal/infra"
	"imagestudio/internal/infra/credentials"
)

func main() {
	_ = godotenv.Load()

	var (
		keyFlag string
		revoke  bool
	)
	flag.StringVar(&keyFlag, "key", "", "Gemini API key (falls back to GEMINI_API_KEY)")
	flag.BoolVar(&revoke, "revoke", false, "revoke the stored key instead of setting one")
	flag.Parse()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fatalf("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fatalf("failed to create pool: %v", err)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "geminikey").Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	if revoke {
		ok, err := store.Revoke(ctx, credentials.ProviderGemini)
		if err != nil {
			fatalf("failed to revoke gemini api key: %v", err)
		}
		if !ok {
			fmt.Println("no active gemini api key")
			return
		}
		fmt.Println("gemini api key revoked")
		return
	}

	key, source := strings.TrimSpace(keyFlag), "flag"
	if key == "" {
		key, source = strings.TrimSpace(os.Getenv("GEMINI_API_KEY")), "env"
	}
	if key == "" {
		fatalf("gemini api key is required via -key or GEMINI_API_KEY")
	}
	if err := store.SetGeminiAPIKey(ctx, key, source); err != nil {
		fatalf("failed to persist gemini api key: %v", err)
	}
	fmt.Println("gemini api key stored")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
