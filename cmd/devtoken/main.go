// Command devtoken prints a signed buyer token for local testing.  Tokens
// are normally issued by the identity provider.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/iliyamo/seat-reservation-engine/internal/config"
	"github.com/iliyamo/seat-reservation-engine/internal/middleware"
	"github.com/iliyamo/seat-reservation-engine/internal/utils"
)

func main() {
	envFile := flag.String("env-file", "", "path to a .env file (default .env when present)")
	buyer := flag.StringP("buyer", "b", "", "buyer id (random UUID when empty)")
	role := flag.String("role", middleware.RoleBuyer, "role claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is required")
		os.Exit(1)
	}
	if *buyer == "" {
		*buyer = uuid.NewString()
	}

	tok, err := utils.NewAccessToken(secret, *buyer, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "buyer %s, expires %s\n", *buyer, tok.Exp.Format(time.RFC3339))
	fmt.Println(tok.Token)
}
