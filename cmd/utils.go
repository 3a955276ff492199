package cmd

import (
	"flag"
	"log"
	"time"

	"ingest-backend/internal/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// EnsureAdminUser creates the admin account on first start so the API is
// usable out of the box. An existing user with the same name is left
// untouched, so password changes survive restarts.
func EnsureAdminUser(db *gorm.DB, username, password string) (database.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return database.User{}, err
	}

	var user database.User
	if err := db.Where(database.User{Username: username}).Attrs(database.User{
		Id:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		IsAdmin:      true,
		CreationTime: time.Now().UTC(),
	}).FirstOrCreate(&user).Error; err != nil {
		return database.User{}, err
	}

	return user, nil
}
