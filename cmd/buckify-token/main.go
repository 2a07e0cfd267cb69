// buckify-token prints an API token for a household member, creating the
// household first when asked to.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"buckify/internal/auth"
	"buckify/internal/cli"
	"buckify/internal/core"
	applog "buckify/internal/log"
)

func main() {
	var (
		userID      = flag.String("user", "", "user id to put in the token (required)")
		householdID = flag.String("household", "", "household id; generated when -create is set and this is empty")
		create      = flag.Bool("create", false, "create the household with -user as owner")
		name        = flag.String("name", "Home", "household name used with -create")
		currency    = flag.String("currency", "EUR", "household currency used with -create")
		ttl         = flag.Duration("ttl", 0, "token lifetime; defaults to JWT_TTL")
	)
	flag.Parse()

	if *userID == "" {
		flag.Usage()
		os.Exit(2)
	}

	cli.LoadEnvFile()
	// stdout carries only the token.
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: applog.ComponentAuth,
		Output:    os.Stderr,
	})
	applog.SetDefault(logger)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *create {
		if *householdID == "" {
			*householdID = uuid.NewString()
		}
		store := cli.InitBackend(ctx, logger, cfg)
		err := store.Store.CreateHousehold(ctx, core.Household{
			ID:        *householdID,
			Name:      *name,
			OwnerID:   *userID,
			MemberIDs: []string{*userID},
			Currency:  *currency,
			CreatedAt: time.Now().UTC(),
		})
		store.Close()
		if err != nil {
			log.Fatalf("create household: %v", err)
		}
		logger.Info("Household created", applog.FieldHouseholdID, *householdID)
	}
	if *householdID == "" {
		log.Fatal("-household is required unless -create is set")
	}

	lifetime := cfg.JWTTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	issuer, err := auth.NewIssuer(cfg.JWTSecret, lifetime)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}
	token, err := issuer.Issue(*userID, *householdID)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(token)
}
