package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscribeSendsVerificationEmail(t *testing.T) {
	defer teardown()
	result := postSubscribe(t, "a@example.com", nil)
	require.Equal(t, StatusSuccess, result.Status, result.Message)
	require.Equal(t, 1, emailer.sentCount(), "exactly one email should go out")
	require.Equal(t, "a@example.com", emailer.lastRecipient())

	// The captured token must redeem for the submitted address.
	claims, err := api.Tokens.Verify(emailer.lastToken())
	require.NoError(t, err)
	require.Equal(t, "a@example.com", claims.Email)

	// Nothing is persisted until the link is visited.
	require.Empty(t, store.Subscribers())
}

func TestSubscribeDuplicateSendsNoEmail(t *testing.T) {
	defer teardown()
	require.NoError(t, store.Insert(context.Background(), "a@example.com"))
	result := postSubscribe(t, "a@example.com", nil)
	if result.Status != StatusError || !strings.Contains(result.Message, "already subscribed") {
		t.Errorf("duplicate submission should report already subscribed, got %+v", result)
	}
	if emailer.sentCount() != 0 {
		t.Errorf("duplicate submission should not send email")
	}
}

func TestSubscribeRejectsBadInput(t *testing.T) {
	defer teardown()
	badInputs := []string{
		"",
		"not-an-email",
		"missing@tld@example",
		strings.Repeat("a", 250) + "@example.com",
	}
	for _, input := range badInputs {
		result := postSubscribe(t, input, nil)
		if result.Status != StatusError {
			t.Errorf("input %q should be rejected, got %+v", input, result)
		}
	}
	// Validation failures never reach the store or the emailer.
	if store.ExistsCalls != 0 {
		t.Errorf("store should not be queried for invalid input, saw %d lookups", store.ExistsCalls)
	}
	if emailer.sentCount() != 0 {
		t.Errorf("no email should be sent for invalid input")
	}
}

func TestSubscribeNormalizesAddress(t *testing.T) {
	defer teardown()
	result := postSubscribe(t, "A@Example.COM", nil)
	require.Equal(t, StatusSuccess, result.Status, result.Message)
	require.Equal(t, "a@example.com", emailer.lastRecipient())
}

func TestSubscribeRateLimitedByClientAddress(t *testing.T) {
	defer teardown()
	fromAttacker := map[string]string{"X-Forwarded-For": "203.0.113.7"}
	for i := 0; i < 3; i++ {
		result := postSubscribe(t, fmt.Sprintf("user%d@example.com", i), fromAttacker)
		if result.Status != StatusSuccess {
			t.Fatalf("submission %d should be allowed, got %+v", i+1, result)
		}
	}
	result := postSubscribe(t, "user3@example.com", fromAttacker)
	if result.Status != StatusRateLimited {
		t.Errorf("4th submission from the same address should be rate limited, got %+v", result)
	}
	if emailer.sentCount() != 3 {
		t.Errorf("rate-limited submission should not send email, sent %d", emailer.sentCount())
	}

	// A different client address is not affected.
	result = postSubscribe(t, "other@example.com", map[string]string{"X-Forwarded-For": "198.51.100.9"})
	if result.Status != StatusSuccess {
		t.Errorf("other addresses should be unaffected, got %+v", result)
	}
}

func TestSubscribeSkipsLimitWithoutClientAddress(t *testing.T) {
	defer teardown()
	// Requests with no forwarded-for headers have no rate-limit key.
	for i := 0; i < 5; i++ {
		result := postSubscribe(t, fmt.Sprintf("direct%d@example.com", i), nil)
		if result.Status != StatusSuccess {
			t.Fatalf("submission %d should be allowed, got %+v", i+1, result)
		}
	}
}

func TestSubscribeAdvisoryWhenLimitStoreDown(t *testing.T) {
	defer teardown()
	kv.setErr(errors.New("connection refused"))
	result := postSubscribe(t, "a@example.com", map[string]string{"X-Forwarded-For": "203.0.113.7"})
	if result.Status != StatusSuccess {
		t.Errorf("advisory mode should proceed without limiting, got %+v", result)
	}
	if emailer.sentCount() != 1 {
		t.Errorf("email should still be sent in advisory mode")
	}
}

func TestSubscribeEnforcedWhenLimitStoreDown(t *testing.T) {
	defer teardown()
	api.EnforceRateLimits = true
	kv.setErr(errors.New("connection refused"))
	result := postSubscribe(t, "a@example.com", map[string]string{"X-Forwarded-For": "203.0.113.7"})
	if result.Status != StatusError {
		t.Errorf("enforced mode should fail closed, got %+v", result)
	}
	if strings.Contains(result.Message, "connection refused") {
		t.Errorf("internal error detail should not cross the boundary: %s", result.Message)
	}
	if emailer.sentCount() != 0 {
		t.Errorf("no email should be sent when failing closed")
	}
}

func TestSubscribeEmailDeliveryFailure(t *testing.T) {
	defer teardown()
	emailer.setErr(errors.New("smtp: 550 mailbox unavailable"))
	result := postSubscribe(t, "a@example.com", nil)
	if result.Status != StatusError {
		t.Errorf("delivery failure should surface as an error, got %+v", result)
	}
	if strings.Contains(result.Message, "550") {
		t.Errorf("transport detail should not cross the boundary: %s", result.Message)
	}
}
