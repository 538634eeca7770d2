package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the webhook signature from the processor
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds how stale a signed timestamp may be
const DefaultTolerance = 5 * time.Minute

// ErrInvalidSignature means the webhook payload could not be authenticated.
// Such payloads are dropped, never processed.
var ErrInvalidSignature = errors.New("webhook signature verification failed")

// ComputeSignature returns the hex HMAC-SHA256 of "<timestamp>.<payload>"
// under the shared endpoint secret.
func ComputeSignature(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignPayload builds a signature header value ("t=<unix>,v1=<hex>") for a
// payload. Used by tests and local tooling to simulate provider deliveries.
func SignPayload(secret string, timestamp int64, payload []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, ComputeSignature(secret, timestamp, payload))
}

// VerifySignature checks a signature header against the payload. The header
// format is "t=<unix>,v1=<hex>[,v1=<hex>...]"; any matching v1 signature
// within the timestamp tolerance passes.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration) error {
	var timestamp int64 = -1
	var candidates []string

	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			timestamp = ts
		case "v1":
			candidates = append(candidates, v)
		}
	}

	if timestamp < 0 || len(candidates) == 0 {
		return ErrInvalidSignature
	}
	if tolerance > 0 {
		age := time.Since(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return ErrInvalidSignature
		}
	}

	expected := ComputeSignature(secret, timestamp, payload)
	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// ConstructEvent verifies the signature header and unmarshals the payload
// into an Event.
func ConstructEvent(payload []byte, header, secret string) (*Event, error) {
	if err := VerifySignature(payload, header, secret, DefaultTolerance); err != nil {
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook event: %w", err)
	}
	if event.ID == "" {
		return nil, fmt.Errorf("webhook event missing id")
	}
	return &event, nil
}
