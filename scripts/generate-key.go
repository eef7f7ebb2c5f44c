// Package main is a development utility that prints a fresh ENCRYPTION_KEY and,
// when given a profile ID, a bearer token for that profile signed with
// MKT_JWT_SECRET. Use it to seed a local .env and call the API with curl. Do not
// use its output in production.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/GarretWalker/marketplace-management/internal/auth"
	"github.com/GarretWalker/marketplace-management/internal/crypto"
)

func main() {
	profile := flag.String("profile", "", "profile ID to mint a bearer token for")
	email := flag.String("email", "dev@localhost", "email claim for the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	key, err := crypto.GenerateKey()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("Development credentials")
	fmt.Println("==========================================================")
	fmt.Printf("\nENCRYPTION_KEY=%s\n", hex.EncodeToString(key))

	if *profile == "" {
		fmt.Println("\nPass -profile <uuid> to also mint a bearer token.")
		return
	}
	if _, err := uuid.Parse(*profile); err != nil {
		log.Fatalf("invalid -profile: %v", err)
	}
	if err := auth.ValidateJWTSecret(); err != nil {
		log.Fatal(err)
	}

	token, err := auth.GenerateJWT(*profile, *email, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("\n==========================================================")
	fmt.Printf("Authorization: Bearer %s\n", token)
	fmt.Println("==========================================================")
}
