package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stayhub/checkout-gateway/internal/utils"
	"github.com/stayhub/checkout-gateway/pkg/jwt"
)

func main() {
	var (
		secret  string
		userID  string
		phone   string
		expires time.Duration
	)
	flag.StringVar(&secret, "secret", "", "sign a development access token with this JWT_SECRET")
	flag.StringVar(&userID, "user", "", "user id for the development token (random if empty)")
	flag.StringVar(&phone, "phone", "", "phone claim for the development token")
	flag.DurationVar(&expires, "expires", time.Hour, "development token lifetime")
	flag.Parse()

	fmt.Println("===========================================")
	fmt.Println("Secret Generator for the StayHub checkout gateway")
	fmt.Println("===========================================")
	fmt.Println()

	if secret == "" {
		generated, err := utils.GenerateSecret(32)
		if err != nil {
			log.Fatalf("Failed to generate secret: %v", err)
		}

		fmt.Println("Add this to your .env file:")
		fmt.Println()
		fmt.Printf("JWT_SECRET=%s\n", generated)
		fmt.Println()
		fmt.Println("The secret must match the one the marketplace backend signs tokens with.")
		fmt.Println("Keep it safe and never commit it to version control!")
		return
	}

	id := uuid.New()
	if strings.TrimSpace(userID) != "" {
		parsed, err := uuid.Parse(userID)
		if err != nil {
			log.Fatalf("Invalid -user: %v", err)
		}
		id = parsed
	}

	token, err := jwt.NewService(secret, "", expires).GenerateAccessToken(id, "", phone, []string{"user"})
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Printf("User:    %s\n", id)
	fmt.Printf("Expires: %s\n", time.Now().Add(expires).Format(time.RFC3339))
	fmt.Println()
	fmt.Printf("Authorization: Bearer %s\n", token)
	fmt.Println()
	fmt.Printf("Fingerprint in audit rows: %s\n", utils.CredentialFingerprint(token))
}
