package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/kaanmetep/deepintodev/api"
	"github.com/kaanmetep/deepintodev/db"
	"github.com/kaanmetep/deepintodev/email"
	"github.com/kaanmetep/deepintodev/ratelimit"
	"github.com/kaanmetep/deepintodev/token"
	"github.com/kaanmetep/deepintodev/util"
)

func main() {
	godotenv.Load()
	cfg, err := db.LoadEnvironmentVariables()
	if err != nil {
		log.Fatal(err)
	}
	portString, err := util.ValidPort(cfg.Port)
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	store := db.NewMongoStore(cfg)
	if err := store.EnsureIndexes(ctx); err != nil {
		log.Fatal(err)
	}
	tokens, err := token.NewService(os.Getenv("SECRET_KEY"), token.TTLFromEnv())
	if err != nil {
		log.Fatal(err)
	}
	emailer, err := email.MakeConfigFromEnv(store, tokens.TTL())
	if err != nil {
		log.Fatal(err)
	}
	enforce := os.Getenv("RATE_LIMIT_ENFORCED") == "true"
	// The key-value client is constructed once here and shared by all
	// requests. In advisory mode a failed connection disables rate
	// limiting rather than the whole service.
	var kv ratelimit.Store
	redisStore, err := ratelimit.NewRedisStore(ctx)
	if err != nil {
		if enforce {
			log.Fatal(err)
		}
		log.Printf("Redis unavailable, rate limiting disabled: %v", err)
	} else {
		kv = redisStore
	}
	a := api.API{
		Store:             store,
		Suppressions:      store,
		KV:                kv,
		Tokens:            tokens,
		Emailer:           emailer,
		EnforceRateLimits: enforce,
	}
	a.ParseTemplates("views")
	mux := http.NewServeMux()
	log.Printf("Serving the newsletter API on %s", portString)
	log.Fatal(http.ListenAndServe(portString, a.RegisterHandlers(mux)))
}
