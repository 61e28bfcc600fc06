// genjwt mints a bearer token for local testing.
//
//	go run ./cmd/dev/genjwt -admin
//	go run ./cmd/dev/genjwt -user 6f1c... -ttl 2h
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func main() {
	userFlag := flag.String("user", "", "user id (random when empty)")
	admin := flag.Bool("admin", false, "issue an admin token")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-123"
	}

	userID := uuid.New()
	if *userFlag != "" {
		id, err := uuid.Parse(*userFlag)
		if err != nil {
			log.Fatalf("invalid -user: %v", err)
		}
		userID = id
	}

	userType := "individual"
	if *admin {
		userType = "admin"
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":   userID.String(),
		"user_type": userType,
		"exp":       now.Add(*ttl).Unix(),
		"iat":       now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Fprintf(os.Stderr, "user_id=%s user_type=%s\n", userID, userType)
	fmt.Println(signed)
}
