// Package invoicing delivers tax invoices to the government e-invoicing
// gateway (Peppol BIS Billing, simplified representation).
package invoicing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PlaceholderClientID enables mock mode for environments without live
// gateway credentials.
const PlaceholderClientID = "placeholder"

// Supplier identifies the invoicing party
type Supplier struct {
	UEN             string `json:"uen"`
	TaxRegistration string `json:"gst_reg"`
	Name            string `json:"name"`
}

// Customer identifies the invoiced party
type Customer struct {
	Email string `json:"email"`
}

// Totals carries the monetary summary in major currency units
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"gst"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
}

// Item is one invoice line
type Item struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

// Payload is the transmission body sent to the gateway
type Payload struct {
	InvoiceNumber string   `json:"invoice_number"`
	IssueDate     string   `json:"issue_date"`
	Supplier      Supplier `json:"supplier"`
	Customer      Customer `json:"customer"`
	Totals        Totals   `json:"totals"`
	Items         []Item   `json:"items"`
}

// Client posts invoice payloads to the gateway with basic auth. When the
// client id is the placeholder, Send synthesizes a transmission id locally
// without any network call.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewClient creates a new gateway client
func NewClient(baseURL, clientID, clientSecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       util.GetLogger(),
	}
}

// Send delivers one payload and returns the gateway's transmission id
func (c *Client) Send(ctx context.Context, payload Payload) (string, error) {
	if c.clientID == PlaceholderClientID {
		id := "MOCK-" + strings.ToUpper(uuid.New().String()[:13])
		c.logger.Info("Mocking invoice transmission",
			zap.String("invoice_number", payload.InvoiceNumber),
			zap.String("transmission_id", id))
		return id, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal invoice payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/invoices", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("invoice transmission failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("invoicing provider error: status=%d body=%s", resp.StatusCode, respBody)
	}

	var parsed struct {
		TransmissionID string `json:"transmission_id"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if parsed.TransmissionID == "" {
		return "", fmt.Errorf("gateway response missing transmission_id")
	}
	return parsed.TransmissionID, nil
}
