package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"imagestudio/internal/adapter/repo"
	"imagestudio/internal/domain"
	"imagestudio/internal/infra"
)

func main() {
	_ = godotenv.Load()

	var (
		idFlag    string
		tierFlag  string
		resetFlag bool
	)
	flag.StringVar(&idFlag, "id", "", "user ID to update")
	flag.StringVar(&tierFlag, "tier", string(domain.TierBasic), "tier to assign (FREE, BASIC, PRO, UNLIMITED)")
	flag.BoolVar(&resetFlag, "reset", false, "reset today's counters to 0")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	if userID == "" {
		exitWithError(errors.New("-id is required"))
	}
	tier, err := domain.ParseTier(tierFlag)
	if err != nil {
		exitWithError(fmt.Errorf("%w: %q", err, tierFlag))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "userplan").Logger()
	users := repo.NewUserRepository(infra.NewSQLRunner(pool, logger))

	state, err := users.SetTier(ctx, userID, tier, resetFlag)
	if err != nil {
		exitWithError(fmt.Errorf("failed to update user tier: %w", err))
	}

	fmt.Printf("User %s updated to tier %s\n", state.UserID, state.Tier)
	fmt.Printf("images=%d/%s\n", state.ImagesGenerated, formatLimit(state.ImagesLimit))
	fmt.Printf("ghibli_images=%d/%s\n", state.GhibliImagesGenerated, formatLimit(state.GhibliImagesLimit))
	fmt.Printf("last_refresh=%s\n", state.LastRefresh.UTC().Format(time.RFC3339))
}

func formatLimit(limit int) string {
	if limit == domain.Unlimited {
		return "unlimited"
	}
	return fmt.Sprint(limit)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
