package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	apperrors "sentinel/pkg/errors"
)

func signRequest(secret, method, path, timestamp, tier string, body []byte) string {
	canonical := strings.Join([]string{method, path, timestamp, tier, string(body)}, "\n")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestVerifier(now time.Time) *SignatureVerifier {
	return NewSignatureVerifier(SignatureConfig{
		Secrets:       map[string]string{"tier1": "tier1-secret"},
		DefaultSecret: "default-secret",
		MaxSkew:       5 * time.Minute,
		Now:           func() time.Time { return now },
	})
}

func TestVerifyValidSignature(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(now)

	body := []byte(`{"action":"book"}`)
	timestamp := strconv.FormatInt(now.UnixMilli(), 10)
	signature := signRequest("tier1-secret", "POST", "/api/v1/agent/actions", timestamp, "tier1", body)

	header := http.Header{}
	header.Set(HeaderTimestamp, timestamp)
	header.Set(HeaderSignature, signature)
	header.Set(HeaderAuditTier, "tier1")

	result := verifier.Verify("POST", "/api/v1/agent/actions", header, body)
	if !result.OK {
		t.Fatalf("expected verification to pass, got reason %q", result.Reason)
	}
	if result.AuditTier != "tier1" {
		t.Errorf("expected audit tier tier1, got %q", result.AuditTier)
	}
}

func TestVerifyReadsWireHeaderNames(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(now)

	body := []byte(`{"action":"book"}`)
	timestamp := strconv.FormatInt(now.UnixMilli(), 10)
	signature := signRequest("tier1-secret", "POST", "/api/v1/agent/actions", timestamp, "tier1", body)

	// Literal header names are the wire contract agents sign against.
	header := http.Header{}
	header.Set("X-Sentinel-Timestamp", timestamp)
	header.Set("X-Sentinel-Signature", signature)
	header.Set("X-Audit-Tier", "tier1")

	result := verifier.Verify("POST", "/api/v1/agent/actions", header, body)
	if !result.OK {
		t.Fatalf("expected request signed under the documented header names to pass, got reason %q", result.Reason)
	}
}

func TestVerifyFallsBackToDefaultSecret(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(now)

	body := []byte(`{"action":"cancel"}`)
	timestamp := strconv.FormatInt(now.UnixMilli(), 10)
	signature := signRequest("default-secret", "POST", "/api/v1/agent/actions", timestamp, "tier2", body)

	header := http.Header{}
	header.Set(HeaderTimestamp, timestamp)
	header.Set(HeaderSignature, signature)
	header.Set(HeaderAuditTier, "tier2")

	result := verifier.Verify("POST", "/api/v1/agent/actions", header, body)
	if !result.OK {
		t.Fatalf("expected fallback secret to verify, got reason %q", result.Reason)
	}
}

func TestVerifyMissingHeaders(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(now)

	header := http.Header{}
	header.Set(HeaderTimestamp, strconv.FormatInt(now.UnixMilli(), 10))

	result := verifier.Verify("POST", "/api/v1/agent/actions", header, nil)
	if result.OK {
		t.Fatal("expected verification to fail")
	}
	if result.Reason != apperrors.CodeMissingSignatureHeader {
		t.Errorf("expected reason %q, got %q", apperrors.CodeMissingSignatureHeader, result.Reason)
	}
}

func TestVerifyInvalidTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(now)

	header := http.Header{}
	header.Set(HeaderTimestamp, "not-a-number")
	header.Set(HeaderSignature, strings.Repeat("ab", 32))
	header.Set(HeaderAuditTier, "tier1")

	result := verifier.Verify("POST", "/api/v1/agent/actions", header, nil)
	if result.Reason != apperrors.CodeInvalidTimestamp {
		t.Errorf("expected reason %q, got %q", apperrors.CodeInvalidTimestamp, result.Reason)
	}
}

func TestVerifyTimestampOutOfWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(now)

	stale := now.Add(-6 * time.Minute)
	timestamp := strconv.FormatInt(stale.UnixMilli(), 10)
	body := []byte(`{}`)
	signature := signRequest("tier1-secret", "POST", "/api/v1/agent/actions", timestamp, "tier1", body)

	header := http.Header{}
	header.Set(HeaderTimestamp, timestamp)
	header.Set(HeaderSignature, signature)
	header.Set(HeaderAuditTier, "tier1")

	result := verifier.Verify("POST", "/api/v1/agent/actions", header, body)
	if result.Reason != apperrors.CodeTimestampOutOfWindow {
		t.Errorf("expected reason %q, got %q", apperrors.CodeTimestampOutOfWindow, result.Reason)
	}
}

func TestVerifyFutureTimestampWithinWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(now)

	ahead := now.Add(2 * time.Minute)
	timestamp := strconv.FormatInt(ahead.UnixMilli(), 10)
	body := []byte(`{}`)
	signature := signRequest("tier1-secret", "POST", "/api/v1/agent/actions", timestamp, "tier1", body)

	header := http.Header{}
	header.Set(HeaderTimestamp, timestamp)
	header.Set(HeaderSignature, signature)
	header.Set(HeaderAuditTier, "tier1")

	result := verifier.Verify("POST", "/api/v1/agent/actions", header, body)
	if !result.OK {
		t.Fatalf("expected clock-ahead request within skew to pass, got %q", result.Reason)
	}
}

func TestVerifyMissingServerSecret(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	verifier := NewSignatureVerifier(SignatureConfig{
		Secrets: map[string]string{"tier1": "tier1-secret"},
		MaxSkew: 5 * time.Minute,
		Now:     func() time.Time { return now },
	})

	timestamp := strconv.FormatInt(now.UnixMilli(), 10)
	header := http.Header{}
	header.Set(HeaderTimestamp, timestamp)
	header.Set(HeaderSignature, strings.Repeat("ab", 32))
	header.Set(HeaderAuditTier, "tier9")

	result := verifier.Verify("POST", "/api/v1/agent/actions", header, nil)
	if result.Reason != apperrors.CodeMissingServerSecret {
		t.Errorf("expected reason %q, got %q", apperrors.CodeMissingServerSecret, result.Reason)
	}
}

func TestVerifyMalformedSignature(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(now)
	timestamp := strconv.FormatInt(now.UnixMilli(), 10)

	cases := []struct {
		name      string
		signature string
	}{
		{"too short", "abcd"},
		{"not hex", strings.Repeat("zz", 32)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := http.Header{}
			header.Set(HeaderTimestamp, timestamp)
			header.Set(HeaderSignature, tc.signature)
			header.Set(HeaderAuditTier, "tier1")

			result := verifier.Verify("POST", "/api/v1/agent/actions", header, nil)
			if result.Reason != apperrors.CodeSignatureMismatch {
				t.Errorf("expected reason %q, got %q", apperrors.CodeSignatureMismatch, result.Reason)
			}
		})
	}
}

func TestVerifyTamperedBody(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(now)

	timestamp := strconv.FormatInt(now.UnixMilli(), 10)
	signature := signRequest("tier1-secret", "POST", "/api/v1/agent/actions", timestamp, "tier1", []byte(`{"action":"book"}`))

	header := http.Header{}
	header.Set(HeaderTimestamp, timestamp)
	header.Set(HeaderSignature, signature)
	header.Set(HeaderAuditTier, "tier1")

	result := verifier.Verify("POST", "/api/v1/agent/actions", header, []byte(`{"action":"cancel"}`))
	if result.Reason != apperrors.CodeSignatureMismatch {
		t.Errorf("expected reason %q, got %q", apperrors.CodeSignatureMismatch, result.Reason)
	}
}

func TestVerifyTierLookupIsCaseInsensitive(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(now)

	body := []byte(`{}`)
	timestamp := strconv.FormatInt(now.UnixMilli(), 10)
	signature := signRequest("tier1-secret", "POST", "/api/v1/agent/actions", timestamp, "TIER1", body)

	header := http.Header{}
	header.Set(HeaderTimestamp, timestamp)
	header.Set(HeaderSignature, signature)
	header.Set(HeaderAuditTier, "TIER1")

	result := verifier.Verify("POST", "/api/v1/agent/actions", header, body)
	if !result.OK {
		t.Fatalf("expected case-insensitive tier lookup to pass, got %q", result.Reason)
	}
	if result.AuditTier != "TIER1" {
		t.Errorf("expected verified tier to keep its original casing, got %q", result.AuditTier)
	}
}
