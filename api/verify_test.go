package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/kaanmetep/deepintodev/token"
)

func TestVerifyPersistsSubscriber(t *testing.T) {
	defer teardown()
	result := postSubscribe(t, "a@example.com", nil)
	require.Equal(t, StatusSuccess, result.Status, result.Message)

	status, body := getVerify(t, emailer.lastToken())
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "Email Verified Successfully")

	subs := store.Subscribers()
	require.Len(t, subs, 1)
	require.Equal(t, "a@example.com", subs[0].Email)
	require.True(t, subs[0].Verified)
}

func TestVerifyIsIdempotent(t *testing.T) {
	defer teardown()
	verificationToken, err := api.Tokens.Issue("a@example.com")
	require.NoError(t, err)

	status, body := getVerify(t, verificationToken)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "Email Verified Successfully")

	// The link may be clicked more than once; the second visit is a
	// success-equivalent and writes nothing.
	status, body = getVerify(t, verificationToken)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "Already Subscribed")
	require.Len(t, store.Subscribers(), 1)
}

func TestVerifyMissingTokenSkipsStore(t *testing.T) {
	defer teardown()
	status, body := getVerify(t, "")
	if status != http.StatusBadRequest {
		t.Errorf("missing token should return 400, got %d", status)
	}
	if !strings.Contains(body, "Token Required") {
		t.Errorf("missing token should render the token-required page")
	}
	if store.ExistsCalls != 0 || store.InsertCalls != 0 {
		t.Errorf("missing token should not touch the store (exists=%d, insert=%d)",
			store.ExistsCalls, store.InsertCalls)
	}
}

func TestVerifyInvalidToken(t *testing.T) {
	defer teardown()
	status, body := getVerify(t, "not-a-real-token")
	if status != http.StatusBadRequest {
		t.Errorf("invalid token should return 400, got %d", status)
	}
	if !strings.Contains(body, "Invalid Verification Token") {
		t.Errorf("invalid token should render the invalid-token page")
	}
	if store.InsertCalls != 0 {
		t.Errorf("invalid token should not persist anything")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	defer teardown()
	other, err := token.NewService("some-other-secret", time.Hour)
	require.NoError(t, err)
	forged, err := other.Issue("a@example.com")
	require.NoError(t, err)
	status, body := getVerify(t, forged)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, body, "Invalid Verification Token")
}

func TestVerifyExpiredToken(t *testing.T) {
	defer teardown()
	claims := token.Claims{
		Email: "a@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "abcd",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	status, body := getVerify(t, expired)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, body, "Verification Token Expired")
	require.Empty(t, store.Subscribers())
}

func TestVerifyRateLimitedByEmail(t *testing.T) {
	defer teardown()
	// The address is mid-block from earlier attempts.
	err := kv.SetWithTTL(context.Background(), "ratelimit:verify:a@example.com:blocked", "1", time.Minute)
	require.NoError(t, err)
	verificationToken, err := api.Tokens.Issue("a@example.com")
	require.NoError(t, err)
	status, body := getVerify(t, verificationToken)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Contains(t, body, "Rate Limit Exceeded")
	require.Empty(t, store.Subscribers())
}

func TestVerifyAdvisoryWhenLimitStoreDown(t *testing.T) {
	defer teardown()
	kv.setErr(errors.New("connection refused"))
	verificationToken, err := api.Tokens.Issue("a@example.com")
	require.NoError(t, err)
	status, body := getVerify(t, verificationToken)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "Email Verified Successfully")
}

func TestVerifyEnforcedWhenLimitStoreDown(t *testing.T) {
	defer teardown()
	api.EnforceRateLimits = true
	kv.setErr(errors.New("connection refused"))
	verificationToken, err := api.Tokens.Issue("a@example.com")
	require.NoError(t, err)
	status, body := getVerify(t, verificationToken)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, body, "Verification Failed")
	require.Empty(t, store.Subscribers())
}

func TestVerifyErrorPagesLinkToNewsletter(t *testing.T) {
	defer teardown()
	_, body := getVerify(t, "not-a-real-token")
	if !strings.Contains(body, "/newsletter") {
		t.Errorf("error pages should point the user at a fresh verification link")
	}
}

func TestSNSNotificationRecordsSuppression(t *testing.T) {
	defer teardown()
	message := `{"notificationType":"Bounce","bounce":{"bouncedRecipients":[{"emailAddress":"bounce@example.com"}]}}`
	payload := `{"Message":` + jsonEscape(message) + `,"Timestamp":"2025-07-21T18:47:13.498Z"}`
	resp, err := http.Post(
		server.URL+"/sns?amazon_authorize_key=test-sns-key",
		"application/json",
		strings.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	suppressed, err := store.IsSuppressedEmail(context.Background(), "bounce@example.com")
	require.NoError(t, err)
	require.True(t, suppressed, "bounced address should be suppressed")
}

func TestSNSNotificationRequiresKey(t *testing.T) {
	defer teardown()
	resp, err := http.Post(
		server.URL+"/sns?amazon_authorize_key=wrong-key",
		"application/json",
		strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func jsonEscape(s string) string {
	escaped := strings.ReplaceAll(s, `"`, `\"`)
	return `"` + escaped + `"`
}
