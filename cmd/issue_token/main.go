package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/verbatim-backend/internal/http/middleware"
)

func main() {
	var subject string
	var ttl time.Duration
	flag.StringVar(&subject, "subject", "", "token subject")
	flag.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	flag.Parse()

	if subject == "" {
		fmt.Println("-subject is required")
		os.Exit(2)
	}
	token, err := middleware.IssueToken(os.Getenv("JWT_SECRET_KEY"), subject, ttl)
	if err != nil {
		fmt.Printf("issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
