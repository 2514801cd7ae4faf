package api

import (
	"errors"
	"log"
	"net/http"

	raven "github.com/getsentry/raven-go"

	"github.com/kaanmetep/deepintodev/db"
	"github.com/kaanmetep/deepintodev/ratelimit"
	"github.com/kaanmetep/deepintodev/token"
)

// Pages rendered by the verification endpoint. Each outcome gets a
// distinct page; error pages carry a button to request a fresh link.
var (
	pageVerified = page{
		Title: "Email Verified Successfully",
		Description: "You've been successfully subscribed to DeepIntoDev's blog. " +
			"Every ~one week you'll get something good to read. You can now close this page.",
	}
	pageAlreadySubscribed = page{
		Title: "Already Subscribed",
		Description: "This email address is already subscribed to DeepIntoDev's newsletter. " +
			"No further action is needed.",
	}
	pageTokenRequired = page{
		Title: "Token Required",
		Description: "No verification token was provided. Please use the link sent " +
			"to your email or request a new verification email.",
		IsError: true,
	}
	pageTokenExpired = page{
		Title: "Verification Token Expired",
		Description: "The verification link has expired. Please request a new " +
			"verification email using the button below.",
		IsError: true,
	}
	pageTokenInvalid = page{
		Title: "Invalid Verification Token",
		Description: "The verification token is not valid. It may have been tampered " +
			"with or is incorrect. Please request a new verification email using the button below.",
		IsError: true,
	}
	pageRateLimited = page{
		Title: "Rate Limit Exceeded",
		Description: "You've made too many verification attempts. Please wait 30 " +
			"minutes before trying again.",
		IsError: true,
	}
	pageGenericFailure = page{
		Title: "Verification Failed",
		Description: "An unexpected error occurred during email verification. Please try " +
			"again by requesting a new verification email using the button below.",
		IsError: true,
	}
)

func htmlResponse(code int, p page) response {
	return response{StatusCode: code, page: &p}
}

// Verify is the handler for /api/verify.
//   GET /api/verify?token=<token>
// Redeems an emailed verification token and persists the subscriber.
// Always renders a full HTML document. Redeeming the same valid token
// again is an idempotent success.
func (api *API) verify(r *http.Request) response {
	if r.Method != http.MethodGet {
		return response{StatusCode: http.StatusMethodNotAllowed, Status: StatusError,
			Message: "/api/verify only accepts GET requests"}
	}
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		// No store access on this path.
		return htmlResponse(http.StatusBadRequest, pageTokenRequired)
	}
	claims, err := api.Tokens.Verify(tokenStr)
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		log.Printf("Expired verification token presented")
		return htmlResponse(http.StatusBadRequest, pageTokenExpired)
	case err != nil:
		log.Printf("Invalid verification token presented: %v", err)
		return htmlResponse(http.StatusBadRequest, pageTokenInvalid)
	}
	ctx := r.Context()
	err = api.checkRateLimit(ctx, "ratelimit:verify:"+claims.Email, ratelimit.VerifyPolicy)
	switch {
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		return htmlResponse(http.StatusTooManyRequests, pageRateLimited)
	case err != nil:
		return htmlResponse(http.StatusBadRequest, pageGenericFailure)
	}
	err = api.Store.Insert(ctx, claims.Email)
	switch {
	case errors.Is(err, db.ErrAlreadySubscribed):
		// The link may be clicked more than once.
		return htmlResponse(http.StatusOK, pageAlreadySubscribed)
	case err != nil:
		log.Printf("Persisting subscriber failed: %v", err)
		raven.CaptureError(err, nil)
		return htmlResponse(http.StatusBadRequest, pageGenericFailure)
	}
	return htmlResponse(http.StatusOK, pageVerified)
}
