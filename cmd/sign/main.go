package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/AaravAtGit/DecentChat/internal/api/middleware"
)

func main() {
	secret := flag.String("secret", os.Getenv("ADMIN_SECRET"), "Admin secret (defaults to $ADMIN_SECRET)")
	subject := flag.String("sub", "operator", "Token subject")
	ttl := flag.Duration("ttl", time.Hour, "Token lifetime")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -secret <admin-secret> [-sub <name>] [-ttl 1h]")
		fmt.Fprintln(os.Stderr, "  Mints a bearer token for GET /graph/{soul}")
		os.Exit(1)
	}

	token, err := middleware.IssueAdminToken([]byte(*secret), *subject, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
