package middleware

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "sentinel/pkg/errors"
	httputil "sentinel/pkg/http"
	"sentinel/pkg/logger"
)

const (
	HeaderTimestamp = "X-Sentinel-Timestamp"
	HeaderSignature = "X-Sentinel-Signature"
	HeaderAuditTier = "X-Audit-Tier"
)

type auditTierKey struct{}

// VerifiedTier returns the audit tier the signature was verified against,
// or "" if the request never passed through signature verification.
func VerifiedTier(ctx context.Context) string {
	tier, _ := ctx.Value(auditTierKey{}).(string)
	return tier
}

// WithVerifiedTier stamps a verified audit tier onto the context.
func WithVerifiedTier(ctx context.Context, tier string) context.Context {
	return context.WithValue(ctx, auditTierKey{}, tier)
}

// SignatureConfig holds per-tier shared secrets. Tiers without a dedicated
// secret fall back to DefaultSecret when it is set.
type SignatureConfig struct {
	Secrets       map[string]string
	DefaultSecret string
	MaxSkew       time.Duration
	Now           func() time.Time
}

type SignatureVerifier struct {
	secrets       map[string]string
	defaultSecret string
	maxSkew       time.Duration
	now           func() time.Time
}

// Verification carries the outcome of a signature check. Reason holds the
// rejection code when OK is false.
type Verification struct {
	OK          bool
	Reason      string
	AuditTier   string
	TimestampMs int64
}

func NewSignatureVerifier(cfg SignatureConfig) *SignatureVerifier {
	secrets := make(map[string]string, len(cfg.Secrets))
	for tier, secret := range cfg.Secrets {
		secrets[strings.ToLower(tier)] = secret
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &SignatureVerifier{
		secrets:       secrets,
		defaultSecret: cfg.DefaultSecret,
		maxSkew:       cfg.MaxSkew,
		now:           now,
	}
}

// Verify checks the tiered HMAC signature over the canonical request string:
// method, path, timestamp, tier and raw body joined by newlines.
func (v *SignatureVerifier) Verify(method, path string, header http.Header, body []byte) Verification {
	timestamp := strings.TrimSpace(header.Get(HeaderTimestamp))
	signature := strings.TrimSpace(header.Get(HeaderSignature))
	tier := strings.TrimSpace(header.Get(HeaderAuditTier))

	if timestamp == "" || signature == "" || tier == "" {
		return Verification{Reason: apperrors.CodeMissingSignatureHeader}
	}

	tsMs, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil || tsMs <= 0 {
		return Verification{Reason: apperrors.CodeInvalidTimestamp}
	}

	skew := v.now().UnixMilli() - tsMs
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Millisecond > v.maxSkew {
		return Verification{Reason: apperrors.CodeTimestampOutOfWindow}
	}

	secret, ok := v.secrets[strings.ToLower(tier)]
	if !ok {
		secret = v.defaultSecret
	}
	if secret == "" {
		return Verification{Reason: apperrors.CodeMissingServerSecret}
	}

	canonical := strings.Join([]string{
		strings.ToUpper(method),
		path,
		timestamp,
		tier,
		string(body),
	}, "\n")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	expected := mac.Sum(nil)

	// Reject structurally invalid signatures before the constant-time
	// comparison so hmac.Equal only ever sees equal-length digests.
	if len(signature) != hex.EncodedLen(len(expected)) {
		return Verification{Reason: apperrors.CodeSignatureMismatch}
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return Verification{Reason: apperrors.CodeSignatureMismatch}
	}

	if !hmac.Equal(provided, expected) {
		return Verification{Reason: apperrors.CodeSignatureMismatch}
	}

	return Verification{OK: true, AuditTier: tier, TimestampMs: tsMs}
}

// SignatureVerification rejects unsigned or tampered agent requests with 403
// and stashes the verified tier in the request context for handlers to audit
// against the payload.
func SignatureVerification(verifier *SignatureVerifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body []byte
			if r.Body != nil {
				var err error
				body, err = io.ReadAll(r.Body)
				r.Body.Close()
				if err != nil {
					_ = httputil.WriteError(w, apperrors.InvalidPayload("failed to read request body"))
					return
				}
			}

			result := verifier.Verify(r.Method, r.URL.Path, r.Header, body)
			if !result.OK {
				log.Warn("Agent signature rejected",
					"request_id", requestIDFrom(r),
					"reason", result.Reason,
					"path", r.URL.Path,
				)

				_ = httputil.WriteError(w, apperrors.SignatureFailure(result.Reason))
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r.WithContext(WithVerifiedTier(r.Context(), result.AuditTier)))
		})
	}
}
