package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Decimal places used when rounding stored amounts.
const (
	FiatPlaces   int32 = 2
	CryptoPlaces int32 = 8
)

// AccountKind identifies one of a user's fiat accounts.
type AccountKind string

const (
	AccountChecking AccountKind = "checking"
	AccountSavings  AccountKind = "savings"
)

// AccountKinds lists every kind in lock order.
var AccountKinds = []AccountKind{AccountChecking, AccountSavings}

func (k AccountKind) Valid() bool {
	return k == AccountChecking || k == AccountSavings
}

// Account holds a fiat balance for one (user, kind) pair.
type Account struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	UserID           uuid.UUID       `json:"user_id" db:"user_id"`
	Kind             AccountKind     `json:"account_type" db:"account_type"`
	AccountNumber    string          `json:"account_number" db:"account_number"`
	Balance          decimal.Decimal `json:"balance" db:"balance"`
	LastCreditAmount decimal.Decimal `json:"last_credit_amount" db:"last_credit_amount"`
	LastDebitAmount  decimal.Decimal `json:"last_debit_amount" db:"last_debit_amount"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Terminal reports whether no further status change is allowed.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed || s == TransactionStatusCancelled
}

// Category is the causal event behind a ledger entry.
type Category string

const (
	CategoryInternalTransfer Category = "internal_transfer"
	CategoryWireTransfer     Category = "wire_transfer"
	CategoryWireRefund       Category = "wire_refund"
	CategoryCryptoBuy        Category = "crypto_buy"
	CategoryCryptoSell       Category = "crypto_sell"
	CategoryAdminAdjustment  Category = "admin_adjustment"
)

// Transaction is one immutable ledger entry against an account.
type Transaction struct {
	ID           uuid.UUID         `json:"id" db:"id"`
	UserID       uuid.UUID         `json:"user_id" db:"user_id"`
	Type         Direction         `json:"type" db:"type"`
	Amount       decimal.Decimal   `json:"amount" db:"amount"`
	Category     Category          `json:"category" db:"category"`
	Merchant     string            `json:"merchant" db:"merchant"`
	Description  string            `json:"description" db:"description"`
	Status       TransactionStatus `json:"status" db:"status"`
	AccountKind  AccountKind       `json:"account_type" db:"account_type"`
	TransferID   *string           `json:"transfer_id,omitempty" db:"transfer_id"`
	ParentID     *uuid.UUID        `json:"parent_id,omitempty" db:"parent_id"`
	BalanceAfter decimal.Decimal   `json:"balance_after" db:"balance_after"`
	ActorID      *uuid.UUID        `json:"actor_id,omitempty" db:"actor_id"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
}

// InternalTransfer links the two legs of a same-user transfer.
type InternalTransfer struct {
	ID                  string            `json:"id" db:"id"`
	UserID              uuid.UUID         `json:"user_id" db:"user_id"`
	FromKind            AccountKind       `json:"from_account" db:"from_account"`
	ToKind              AccountKind       `json:"to_account" db:"to_account"`
	Amount              decimal.Decimal   `json:"amount" db:"amount"`
	DebitTransactionID  uuid.UUID         `json:"debit_transaction_id" db:"debit_transaction_id"`
	CreditTransactionID uuid.UUID         `json:"credit_transaction_id" db:"credit_transaction_id"`
	Status              TransactionStatus `json:"status" db:"status"`
	CreatedAt           time.Time         `json:"created_at" db:"created_at"`
}

type WireStatus string

const (
	WireStatusPending    WireStatus = "pending"
	WireStatusProcessing WireStatus = "processing"
	WireStatusCompleted  WireStatus = "completed"
	WireStatusRejected   WireStatus = "rejected"
	WireStatusCancelled  WireStatus = "cancelled"
)

func (s WireStatus) Valid() bool {
	switch s {
	case WireStatusPending, WireStatusProcessing, WireStatusCompleted, WireStatusRejected, WireStatusCancelled:
		return true
	}
	return false
}

func (s WireStatus) Terminal() bool {
	return s == WireStatusCompleted || s == WireStatusRejected || s == WireStatusCancelled
}

// Recipient is the external beneficiary of a wire transfer.
type Recipient struct {
	Name          string  `json:"recipient_name" db:"recipient_name"`
	BankName      string  `json:"recipient_bank_name" db:"recipient_bank_name"`
	RoutingNumber string  `json:"recipient_routing_number" db:"recipient_routing_number"`
	AccountNumber string  `json:"recipient_account_number" db:"recipient_account_number"`
	BankAddress   string  `json:"recipient_bank_address" db:"recipient_bank_address"`
	SwiftCode     *string `json:"swift_code,omitempty" db:"swift_code"`
}

// WireTransfer is an external transfer moderated by an admin. DeductedAt and
// RefundedAt record the balance effects so each is applied at most once.
type WireTransfer struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	UserID        uuid.UUID       `json:"user_id" db:"user_id"`
	TransactionID uuid.UUID       `json:"transaction_id" db:"transaction_id"`
	FromAccount   AccountKind     `json:"from_account" db:"from_account"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Fee           decimal.Decimal `json:"fee" db:"fee"`
	TotalAmount   decimal.Decimal `json:"total_amount" db:"total_amount"`
	Recipient
	ConfirmationNumber  string     `json:"confirmation_number" db:"confirmation_number"`
	Status              WireStatus `json:"status" db:"status"`
	AuthorizedAt        *time.Time `json:"authorized_at,omitempty" db:"authorized_at"`
	DeductedAt          *time.Time `json:"deducted_at,omitempty" db:"deducted_at"`
	RefundedAt          *time.Time `json:"refunded_at,omitempty" db:"refunded_at"`
	RefundTransactionID *uuid.UUID `json:"refund_transaction_id,omitempty" db:"refund_transaction_id"`
	AdminNotes          string     `json:"admin_notes" db:"admin_notes"`
	ReviewedBy          *uuid.UUID `json:"reviewed_by,omitempty" db:"reviewed_by"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// Deducted reports whether total_amount has left the funding account and not
// been returned.
func (w *WireTransfer) Deducted() bool {
	return w.DeductedAt != nil && w.RefundedAt == nil
}

type AssetID string

const (
	AssetBTC AssetID = "btc"
	AssetETH AssetID = "eth"
	AssetADA AssetID = "ada"
)

var Assets = []AssetID{AssetBTC, AssetETH, AssetADA}

func (a AssetID) Valid() bool {
	return a == AssetBTC || a == AssetETH || a == AssetADA
}

// CryptoWallet holds one asset balance for a user. PriceUSD and AdminTotalUSD
// are only set by an admin valuation override.
type CryptoWallet struct {
	ID            uuid.UUID           `json:"id" db:"id"`
	UserID        uuid.UUID           `json:"user_id" db:"user_id"`
	AssetID       AssetID             `json:"asset_id" db:"asset_id"`
	Balance       decimal.Decimal     `json:"balance" db:"balance"`
	PriceUSD      decimal.NullDecimal `json:"price_usd" db:"price_usd"`
	AdminTotalUSD decimal.NullDecimal `json:"admin_total_usd" db:"admin_total_usd"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" db:"updated_at"`
}

type TradeType string

const (
	TradeBuy              TradeType = "buy"
	TradeSell             TradeType = "sell"
	TradeAdjustmentCredit TradeType = "adjustment_credit"
	TradeAdjustmentDebit  TradeType = "adjustment_debit"
)

// CryptoTransaction records a settled trade. PricePerUnit is the price read
// once at execution.
type CryptoTransaction struct {
	ID                uuid.UUID         `json:"id" db:"id"`
	UserID            uuid.UUID         `json:"user_id" db:"user_id"`
	AssetID           AssetID           `json:"asset_id" db:"asset_id"`
	Type              TradeType         `json:"transaction_type" db:"transaction_type"`
	Amount            decimal.Decimal   `json:"amount" db:"amount"`
	USDAmount         decimal.Decimal   `json:"usd_amount" db:"usd_amount"`
	PricePerUnit      decimal.Decimal   `json:"price_per_unit" db:"price_per_unit"`
	Fee               decimal.Decimal   `json:"fee" db:"fee"`
	FundingAccount    *AccountKind      `json:"funding_account,omitempty" db:"funding_account"`
	FiatTransactionID *uuid.UUID        `json:"fiat_transaction_id,omitempty" db:"fiat_transaction_id"`
	Status            TransactionStatus `json:"status" db:"status"`
	TransactionDate   time.Time         `json:"transaction_date" db:"transaction_date"`
}

// TradingControl gates new trades for a user. Absent rows mean enabled.
type TradingControl struct {
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	BuyEnabled  bool       `json:"buy_enabled" db:"buy_enabled"`
	SellEnabled bool       `json:"sell_enabled" db:"sell_enabled"`
	BlockReason string     `json:"block_reason" db:"block_reason"`
	UpdatedBy   *uuid.UUID `json:"updated_by,omitempty" db:"updated_by"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// WireControl gates wire transfer creation for a user. Absent rows mean enabled.
type WireControl struct {
	UserID              uuid.UUID  `json:"user_id" db:"user_id"`
	WireTransferEnabled bool       `json:"wire_transfer_enabled" db:"wire_transfer_enabled"`
	BlockReason         string     `json:"block_reason" db:"block_reason"`
	UpdatedBy           *uuid.UUID `json:"updated_by,omitempty" db:"updated_by"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// AdminAuditEntry attributes an override to the admin who made it.
type AdminAuditEntry struct {
	ID           uuid.UUID `json:"id" db:"id"`
	AdminID      uuid.UUID `json:"admin_id" db:"admin_id"`
	Action       string    `json:"action" db:"action"`
	TargetUserID uuid.UUID `json:"target_user_id" db:"target_user_id"`
	TargetID     string    `json:"target_id" db:"target_id"`
	Details      Metadata  `json:"details" db:"details"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Metadata is a JSON-compatible map
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, &m)
}
