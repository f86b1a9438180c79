// Command token mints an access token for local testing of the booking API.
//
//	go run ./cmd/token -user 42 -role CUSTOMER -email a@example.com
//	go run ./cmd/token -lookup owner@example.com
//
// -lookup reads id, role and email of an existing account from the
// database configured by the DB_* variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/event-booking/internal/database"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/utils"
)

func main() {
	_ = godotenv.Load()

	user := flag.Uint64("user", 0, "user id (sub claim)")
	role := flag.String("role", model.RoleCustomer, "CUSTOMER, OWNER or ADMIN")
	email := flag.String("email", "", "optional email claim")
	lookup := flag.String("lookup", "", "email of an existing account to mint for")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	if *lookup != "" {
		u, err := findUser(*lookup)
		if err != nil {
			log.Fatalf("lookup %s: %v", *lookup, err)
		}
		if !u.IsActive {
			log.Fatalf("user %d is inactive", u.ID)
		}
		*user, *role, *email = u.ID, u.Role, u.Email
	}
	if *user == 0 {
		log.Fatal("-user or -lookup is required")
	}
	tok, err := utils.NewAccessToken(secret, *user, *role, *email, *ttl)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(tok.Token)
}

func findUser(email string) (model.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := database.Open(ctx, database.Options{
		User: os.Getenv("DB_USER"), Pass: os.Getenv("DB_PASS"),
		Host: os.Getenv("DB_HOST"), Port: os.Getenv("DB_PORT"), Name: os.Getenv("DB_NAME"),
		MaxOpenConns: 1,
	})
	if err != nil {
		return model.User{}, err
	}
	defer db.Close()
	return repository.NewUserRepo(db).GetByEmail(ctx, email)
}
