// Package payment talks to the external payment processor: it creates
// payment intents and verifies webhook signatures. Provider objects are
// modeled as explicit value types, not opaque SDK handles.
package payment

// Intent metadata keys used to tie a processor intent back to our records
const (
	MetadataOrderID          = "order_id"
	MetadataReservationGroup = "reservation_group_id"
)

// EventPaymentSucceeded is the event type denoting a successful charge
const EventPaymentSucceeded = "payment_intent.succeeded"

// IntentRequest describes a payment intent to create
type IntentRequest struct {
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

// Intent is the processor's record of an in-progress charge attempt
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	AmountCents  int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata"`
}

// Event is a webhook notification from the processor
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData wraps the event's subject object
type EventData struct {
	Object Intent `json:"object"`
}
