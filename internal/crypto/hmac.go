// Package crypto provides HMAC request signing for the exchange REST APIs.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the API credentials for HMAC-authenticated requests against
// a centralized exchange REST API.
type HMACAuth struct {
	Key    string // API key
	Secret string // API secret
}

// SignQuery computes HMAC-SHA256(secret, query) and returns the signature as
// a lowercase hex string. Both MEXC and BingX sign the url-encoded request
// parameters this way.
func (h *HMACAuth) SignQuery(query string) string {
	return hmacSHA256Hex([]byte(h.Secret), query)
}

// Timestamp returns the current Unix epoch milliseconds as a decimal string,
// the timestamp format both venues expect in signed requests.
func Timestamp() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// TimestampAt is like Timestamp but lets the caller supply the time (useful
// for deterministic testing).
func TimestampAt(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// hmacSHA256Hex computes HMAC-SHA256 of message using key and returns the
// result hex-encoded.
func hmacSHA256Hex(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
