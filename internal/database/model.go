package database

// InvoiceStatus is the lifecycle state of a merchant invoice. It only ever
// advances in the order created -> pending -> {expired, paid}.
type InvoiceStatus int

const (
	InvoiceStatusCreated InvoiceStatus = iota
	InvoiceStatusPending
	InvoiceStatusExpired
	InvoiceStatusPaid
)

// String converts InvoiceStatus to its database/wire string value.
func (s InvoiceStatus) String() string {
	switch s {
	case InvoiceStatusCreated:
		return "created"
	case InvoiceStatusPending:
		return "pending"
	case InvoiceStatusExpired:
		return "expired"
	case InvoiceStatusPaid:
		return "paid"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status can never change again.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusExpired || s == InvoiceStatusPaid
}

// ParseInvoiceStatus converts a database string to an InvoiceStatus.
func ParseInvoiceStatus(s string) InvoiceStatus {
	switch s {
	case "created":
		return InvoiceStatusCreated
	case "pending":
		return InvoiceStatusPending
	case "expired":
		return InvoiceStatusExpired
	case "paid":
		return InvoiceStatusPaid
	default:
		return InvoiceStatusCreated
	}
}

// PayoutStatus tracks a merchant's USD payout request.
type PayoutStatus int

const (
	// PayoutStatusInitiated means the merchant requested to receive USD.
	PayoutStatusInitiated PayoutStatus = iota
	// PayoutStatusPending means the pay process started.
	PayoutStatusPending
	// PayoutStatusSent means the payment is considered on the way.
	PayoutStatusSent
	// PayoutStatusCompleted means no further action is needed.
	PayoutStatusCompleted
	PayoutStatusFailed
)

func (s PayoutStatus) String() string {
	switch s {
	case PayoutStatusInitiated:
		return "initiated"
	case PayoutStatusPending:
		return "pending"
	case PayoutStatusSent:
		return "sent"
	case PayoutStatusCompleted:
		return "completed"
	case PayoutStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func ParsePayoutStatus(s string) PayoutStatus {
	switch s {
	case "initiated":
		return PayoutStatusInitiated
	case "pending":
		return PayoutStatusPending
	case "sent":
		return PayoutStatusSent
	case "completed":
		return PayoutStatusCompleted
	case "failed":
		return PayoutStatusFailed
	default:
		return PayoutStatusInitiated
	}
}

// Account is a merchant identity record. Immutable after creation.
type Account struct {
	AccountID      int64  `json:"account_id" db:"account_id"`
	Username       string `json:"username" db:"username"`
	Password       string `json:"-" db:"password"` // base64(SHA-256(salt||password))
	Email          string `json:"email" db:"email"`
	MailingAddress string `json:"mailing_address" db:"mailing_address"`
}

// Invoice is one merchant payment request. The row is owned by the store;
// values passing through the pub/sub bus are transient snapshots.
type Invoice struct {
	InvoiceID       int64         `json:"invoice_id" db:"invoice_id"`
	Status          InvoiceStatus `json:"status" db:"status"`
	EncodedInvoice  string        `json:"encoded_invoice" db:"encoded_invoice"` // Bolt11, set on pending
	AccountID       int64         `json:"account_id" db:"account_id"`
	CreatedAt       int64         `json:"created_at" db:"created_at"`             // UNIX seconds
	AmountRequested int64         `json:"amount_requested" db:"amount_requested"` // USD cents
	ExchangeRate    int64         `json:"exchange_rate" db:"exchange_rate"`       // satoshis per USD
	ExpiredAt       int64         `json:"expired_at" db:"expired_at"`             // UNIX seconds, set on pending
}

// Payout is a merchant request to receive accumulated funds in USD.
type Payout struct {
	PayoutID  int64        `json:"payout_id" db:"payout_id"`
	AccountID int64        `json:"account_id" db:"account_id"`
	Status    PayoutStatus `json:"status" db:"status"`
	Method    string       `json:"method" db:"method"` // only "mail" is supported
	Amount    int64        `json:"amount" db:"amount"` // USD cents
}
