package db

import (
	"context"
	"errors"
	"flag"
	"os"
)

// ErrAlreadySubscribed is returned by Insert when a record for the email
// already exists, whether from the duplicate pre-check racing another
// request or from a repeated verification click.
var ErrAlreadySubscribed = errors.New("email is already subscribed")

// SubscriberStore is what the API needs from the subscriber database.
type SubscriberStore interface {
	// Exists reports whether a subscriber record is present for email.
	Exists(ctx context.Context, email string) (bool, error)
	// Insert persists a verified subscriber record for email. Uniqueness is
	// enforced by the store; a duplicate yields ErrAlreadySubscribed.
	Insert(ctx context.Context, email string) error
}

// SuppressionStore records addresses that have bounced or complained, so
// the emailer can refuse to send to them.
type SuppressionStore interface {
	PutSuppressedEmail(ctx context.Context, email string, reason string, timestamp string) error
	IsSuppressedEmail(ctx context.Context, email string) (bool, error)
}

// Config is a configuration struct for a Database.
type Config struct {
	Port                  string
	MongoURI              string
	DbName                string
	SubscriberCollection  string
	SuppressionCollection string
}

// Default configuration values. Can be overwritten by env vars of the same name.
var configDefaults = map[string]string{
	"PORT":                   "8080",
	"MONGODB_DATABASE":       "newsletter",
	"TEST_MONGODB_DATABASE":  "newsletter_test",
	"SUBSCRIBER_COLLECTION":  "subscribers",
	"SUPPRESSION_COLLECTION": "suppressed_emails",
}

func getEnvOrDefault(varName string) string {
	envVar := os.Getenv(varName)
	if len(envVar) == 0 {
		envVar = configDefaults[varName]
	}
	return envVar
}

// LoadEnvironmentVariables loads relevant environment variables into a
// Config object. The connection string carries credentials and has no
// sensible default, so its absence is an error.
func LoadEnvironmentVariables() (Config, error) {
	config := Config{
		Port:                  getEnvOrDefault("PORT"),
		MongoURI:              os.Getenv("MONGODB_URI"),
		DbName:                getEnvOrDefault("MONGODB_DATABASE"),
		SubscriberCollection:  getEnvOrDefault("SUBSCRIBER_COLLECTION"),
		SuppressionCollection: getEnvOrDefault("SUPPRESSION_COLLECTION"),
	}
	if len(config.MongoURI) == 0 {
		return config, errors.New("environment variable MONGODB_URI must be set")
	}
	if flag.Lookup("test.v") != nil {
		// Avoid accidentally writing to the default db during tests.
		config.DbName = getEnvOrDefault("TEST_MONGODB_DATABASE")
	}
	return config, nil
}
