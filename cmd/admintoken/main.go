// Command admintoken prints a bearer token for the admin booking routes.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/gm0202/TicketSys/internal/middleware"
)

func main() {
	subject := flag.String("sub", "ops", "token subject")
	role := flag.String("role", middleware.RoleAdmin, "role claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	tok, err := middleware.NewAccessToken(os.Getenv("JWT_SECRET"), *subject, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "admintoken:", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
	fmt.Fprintln(os.Stderr, "expires", tok.Exp.Format(time.RFC3339))
}
