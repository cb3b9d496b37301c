// mock-psp simulates a payment provider for local development: it builds
// a webhook payload, signs it the way the real provider would, and
// delivers it with exponential backoff until the endpoint acknowledges —
// the same redelivery behaviour real PSPs exhibit.
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/coventis/psp-webhooks/internal/logging"
	"github.com/coventis/psp-webhooks/internal/provider"
)

const maxDeliveryAttempts = 8

func main() {
	var (
		providerName = flag.String("provider", "gocardless", "gocardless or multisafepay")
		baseURL      = flag.String("url", "http://localhost:8080", "api base URL")
		tenantID     = flag.String("tenant", "", "tenant (company) id")
		secret       = flag.String("secret", "", "webhook secret; empty sends unsigned")
		eventID      = flag.String("event-id", "", "provider event id (random if empty)")
		action       = flag.String("action", "confirmed", "gocardless action (confirmed, failed, cancelled, ...)")
		resource     = flag.String("resource", "payments", "gocardless resource type")
		reason       = flag.String("reason", "", "gocardless failure reason code")
		status       = flag.String("status", "completed", "multisafepay transaction status")
		repeat       = flag.Int("repeat", 1, "deliver the same event N times (duplicate testing)")
	)
	flag.Parse()

	logging.Init("mock-psp", "info", os.Getenv("APP_ENV"))

	if *tenantID == "" {
		slog.Error("-tenant is required")
		os.Exit(1)
	}

	id := *eventID
	if id == "" {
		id = uuid.NewString()
	}

	var (
		body   []byte
		url    string
		header string
		sig    string
		err    error
	)

	switch *providerName {
	case "gocardless":
		body, err = gocardlessBody(id, *resource, *action, *reason)
		url = fmt.Sprintf("%s/webhooks/gocardless/%s", *baseURL, *tenantID)
		header = provider.SignatureHeaderGoCardless
		if *secret != "" {
			sig = signSHA256Hex(body, *secret)
		}
	case "multisafepay":
		body, err = multisafepayBody(id, *status)
		url = fmt.Sprintf("%s/webhooks/multisafepay/%s", *baseURL, *tenantID)
		header = provider.SignatureHeaderMultiSafepay
		if *secret != "" {
			sig = signSHA512Base64(body, *secret)
		}
	default:
		slog.Error("unknown provider", "provider", *providerName)
		os.Exit(1)
	}
	if err != nil {
		slog.Error("failed to build payload", "error", err)
		os.Exit(1)
	}

	for n := range *repeat {
		if deliverErr := deliver(url, header, sig, body); deliverErr != nil {
			slog.Error("delivery failed", "attempt_group", n+1, "error", deliverErr)
			os.Exit(1)
		}
		slog.Info("webhook delivered", "event_id", id, "delivery", n+1)
	}
}

func gocardlessBody(id, resource, action, reason string) ([]byte, error) {
	details := map[string]string{
		"origin":      "bank",
		"cause":       action,
		"description": "simulated event",
	}
	if reason != "" {
		details["reason_code"] = reason
	}
	return json.Marshal(map[string]any{
		"events": []map[string]any{{
			"id":            id,
			"created_at":    time.Now().UTC().Format(time.RFC3339),
			"resource_type": resource,
			"action":        action,
			"links":         map[string]string{"payment": "PM-" + id},
			"details":       details,
		}},
	})
}

func multisafepayBody(id, status string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"transactionid": id,
		"status":        status,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"amount":        1999,
		"currency":      "EUR",
	})
}

// deliver retries until a 2xx, mirroring provider redelivery: anything
// else is treated as "not acknowledged".
func deliver(url, header, sig string, body []byte) error {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = 500 * time.Millisecond
	backoffCfg.MaxInterval = 30 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxDeliveryAttempts; attempt++ {
		lastErr = attemptDelivery(url, header, sig, body)
		if lastErr == nil {
			return nil
		}

		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			break
		}
		slog.Warn("delivery not acknowledged, retrying",
			"attempt", attempt, "error", lastErr, "next_in", sleep)
		time.Sleep(sleep)
	}
	return lastErr
}

func attemptDelivery(url, header, sig string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("attemptDelivery: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set(header, sig)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("attemptDelivery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("attemptDelivery: status %d", resp.StatusCode)
	}
	return nil
}

func signSHA256Hex(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func signSHA512Base64(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
