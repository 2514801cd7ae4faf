package api

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/idna"

	"github.com/kaanmetep/deepintodev/ratelimit"
)

// Subscriber addresses longer than this are rejected before any
// external call is made.
const maxEmailLength = 255

var validate = validator.New()

// Retrieves the submitted address, rejecting malformed or oversized input
// and normalizing the rest: the address is lowercased and its domain part
// converted to ASCII, so the same mailbox always maps to the same record.
func normalizeEmail(raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	if len(addr) == 0 {
		return "", errors.New("Email is required!")
	}
	if len(addr) > maxEmailLength {
		return "", errors.New("Email is too long!")
	}
	addr = strings.ToLower(addr)
	if err := validate.Var(addr, "required,email"); err != nil {
		return "", errors.New("Invalid email format!")
	}
	at := strings.LastIndex(addr, "@")
	domain, err := idna.ToASCII(addr[at+1:])
	if err != nil {
		return "", errors.New("Invalid email format!")
	}
	return addr[:at+1] + domain, nil
}

// clientIP extracts the requester's network address from forwarded-for
// headers, best-effort. The result is spoofable and is only ever used as a
// rate-limit key, never as authenticated identity.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}

// Subscribe is the handler for /api/subscribe.
//   POST /api/subscribe
//        email: Address to subscribe to the newsletter.
// Validates the address, rejects duplicates, rate limits by client
// address, then emails a verification link. The status field of the JSON
// envelope is the signal the subscription form reads.
func (api *API) subscribe(r *http.Request) response {
	if r.Method != http.MethodPost {
		return response{StatusCode: http.StatusMethodNotAllowed, Status: StatusError,
			Message: "/api/subscribe only accepts POST requests"}
	}
	emailAddr, err := normalizeEmail(r.FormValue("email"))
	if err != nil {
		return response{StatusCode: http.StatusOK, Status: StatusError, Message: err.Error()}
	}
	ctx := r.Context()
	exists, err := api.Store.Exists(ctx, emailAddr)
	if err != nil {
		log.Printf("Subscriber lookup failed: %v", err)
		return serverError()
	}
	if exists {
		// No email sent, no rate-limit counter touched.
		return response{StatusCode: http.StatusOK, Status: StatusError,
			Message: "You are already subscribed to DeepIntoDev."}
	}
	if ip := clientIP(r); ip != "" {
		err := api.checkRateLimit(ctx, "ratelimit:subscribe:"+ip, ratelimit.SubscribePolicy)
		switch {
		case errors.Is(err, ratelimit.ErrRateLimitExceeded):
			return response{StatusCode: http.StatusTooManyRequests, Status: StatusRateLimited,
				Message: "Too many requests. Please try again later."}
		case err != nil:
			return serverError()
		}
	}
	verificationToken, err := api.Tokens.Issue(emailAddr)
	if err != nil {
		log.Printf("Token issuance failed: %v", err)
		return serverError()
	}
	if err := api.Emailer.SendVerification(ctx, emailAddr, verificationToken); err != nil {
		log.Print(err)
		return serverError()
	}
	return response{StatusCode: http.StatusOK, Status: StatusSuccess,
		Message: "Invitation email sent. Please check your inbox. (Don't forget to check your spam folder)"}
}
