package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/service"
)

// issue-token mints a development bearer token signed with JWT_SECRET.
//
//	issue-token -type student -id 12 -grade XII
//	issue-token -type teacher -id 3
func main() {
	tokenType := flag.String("type", "student", "Token type: student or teacher")
	userID := flag.Int("id", 0, "Student or teacher id")
	grade := flag.String("grade", "", "Student grade (required for student tokens)")
	flag.Parse()

	if *userID <= 0 {
		fmt.Fprintln(os.Stderr, "-id is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	authService := service.NewAuthService(cfg)

	token, err := authService.IssueToken(service.TokenType(*tokenType), *userID, *grade)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
