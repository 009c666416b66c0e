package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentRefunded   PaymentStatus = "refunded"
)

// Final reports whether no gateway notification should move the payment anymore,
// apart from a refund of a completed payment.
func (s PaymentStatus) Final() bool {
	return s == PaymentFailed || s == PaymentCancelled || s == PaymentRefunded
}

type PaymentType string

const (
	PaymentCoursePurchase PaymentType = "course_purchase"
	PaymentSubscription   PaymentType = "subscription"
	PaymentCertificate    PaymentType = "certificate"
	PaymentDonation       PaymentType = "donation"
)

// Payment is a charge created through the payment gateway.
type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:p" json:"-"`

	ID               int64           `bun:"id,pk,autoincrement" json:"id"`
	OrderID          string          `bun:"order_id,notnull" json:"order_id"`
	UserID           int64           `bun:"user_id,notnull" json:"user_id"`
	Type             PaymentType     `bun:"type,notnull" json:"payment_type"`
	CourseID         *int64          `bun:"course_id" json:"course_id,omitempty"`
	Description      string          `bun:"description,notnull" json:"description"`
	Amount           decimal.Decimal `bun:"amount,type:numeric(12,2),notnull" json:"amount"`
	Tax              decimal.Decimal `bun:"tax,type:numeric(12,2),notnull" json:"tax_amount"`
	Total            decimal.Decimal `bun:"total,type:numeric(12,2),notnull" json:"total_amount"`
	Currency         string          `bun:"currency,notnull" json:"currency"`
	Status           PaymentStatus   `bun:"status,notnull" json:"status"`
	GatewayToken     string          `bun:"gateway_token,notnull" json:"gateway_token,omitempty"`
	RedirectURL      string          `bun:"redirect_url,notnull" json:"redirect_url,omitempty"`
	GatewayReference string          `bun:"gateway_reference,notnull" json:"gateway_reference,omitempty"`
	PaidAt           *time.Time      `bun:"paid_at" json:"paid_at,omitempty"`
	FailedAt         *time.Time      `bun:"failed_at" json:"failed_at,omitempty"`
	RefundedAt       *time.Time      `bun:"refunded_at" json:"refunded_at,omitempty"`
	CreatedAt        time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

// GatewayNotification is the asynchronous status callback sent by the gateway.
type GatewayNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
	PaymentType       string `json:"payment_type"`
}

// GatewayStatus is the gateway's view of a transaction.
type GatewayStatus struct {
	TransactionStatus string
	FraudStatus       string
	TransactionID     string
}

// Charge is what the gateway returns when a payment is created.
type Charge struct {
	Token       string
	RedirectURL string
}

// PaymentEvent is the raw log of a gateway notification.
type PaymentEvent struct {
	bun.BaseModel `bun:"table:payment_events,alias:pe"`

	ID                int64           `bun:"id,pk,autoincrement"`
	Provider          string          `bun:"provider,notnull"`
	OrderID           string          `bun:"order_id,notnull"`
	PaymentID         *int64          `bun:"payment_id"`
	TransactionStatus string          `bun:"transaction_status,notnull"`
	Signature         string          `bun:"signature,notnull"`
	Payload           json.RawMessage `bun:"payload,type:jsonb,notnull"`
	Status            string          `bun:"status,notnull"`
	Error             string          `bun:"error,notnull"`
	CreatedAt         time.Time       `bun:"created_at,notnull"`
}
