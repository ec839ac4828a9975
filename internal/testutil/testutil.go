// Package testutil provides helpers for HTTP-level tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/levelup/internal/auth"
)

// TestJWTSecret signs tokens accepted by TestVerifier.
const TestJWTSecret = "levelup-test-secret"

func TestVerifier() *auth.JWTVerifier {
	return auth.NewJWTVerifier(TestJWTSecret, "")
}

// AssertStatusCode checks if the response has the expected status code.
func AssertStatusCode(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// AssertJSONContains checks that the top-level JSON object has key set to expected.
func AssertJSONContains(t *testing.T, body []byte, key string, expected interface{}) {
	t.Helper()
	result := ParseJSONResponse(t, body)
	if result[key] != expected {
		t.Errorf("expected %s to be %v, got %v", key, expected, result[key])
	}
}

func AssertHeader(t *testing.T, rr *httptest.ResponseRecorder, name, expected string) {
	t.Helper()
	if got := rr.Header().Get(name); got != expected {
		t.Errorf("header %s: expected %q, got %q", name, expected, got)
	}
}

// NewTestRequest creates a new HTTP request for testing.
func NewTestRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewTestRequestWithJSON creates a new HTTP request with JSON body.
func NewTestRequestWithJSON(t *testing.T, method, path string, data interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return NewTestRequest(method, path, strings.NewReader(string(body)))
}

// WithBearer signs a short-lived token for userID and attaches it to req.
func WithBearer(t *testing.T, req *http.Request, userID string) *http.Request {
	t.Helper()
	token, err := TestVerifier().IssueToken(userID, RandomEmail(), time.Minute)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// RandomUserID generates an identity-provider style user ID.
func RandomUserID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// RandomEmail generates a random email for testing.
func RandomEmail() string {
	return uuid.NewString()[:8] + "@test.com"
}

// ParseJSONResponse parses a JSON response body into a map.
func ParseJSONResponse(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v", err)
	}
	return result
}
