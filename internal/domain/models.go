// Package domain re-exports core domain types so internal code can import
// `corebank/internal/domain` while using definitions from `corebank/pkg/domain`.
package domain

import pkg "corebank/pkg/domain"

type (
	Account           = pkg.Account
	AccountKind       = pkg.AccountKind
	Direction         = pkg.Direction
	Transaction       = pkg.Transaction
	TransactionStatus = pkg.TransactionStatus
	Category          = pkg.Category
	InternalTransfer  = pkg.InternalTransfer
	WireStatus        = pkg.WireStatus
	Recipient         = pkg.Recipient
	WireTransfer      = pkg.WireTransfer
	AssetID           = pkg.AssetID
	CryptoWallet      = pkg.CryptoWallet
	TradeType         = pkg.TradeType
	CryptoTransaction = pkg.CryptoTransaction
	TradingControl    = pkg.TradingControl
	WireControl       = pkg.WireControl
	AdminAuditEntry   = pkg.AdminAuditEntry
	Metadata          = pkg.Metadata
)

const (
	FiatPlaces   = pkg.FiatPlaces
	CryptoPlaces = pkg.CryptoPlaces
)

const (
	AccountChecking = pkg.AccountChecking
	AccountSavings  = pkg.AccountSavings
)

var (
	AccountKinds = pkg.AccountKinds
	Assets       = pkg.Assets
)

const (
	DirectionDebit  = pkg.DirectionDebit
	DirectionCredit = pkg.DirectionCredit
)

const (
	TransactionStatusPending   = pkg.TransactionStatusPending
	TransactionStatusCompleted = pkg.TransactionStatusCompleted
	TransactionStatusFailed    = pkg.TransactionStatusFailed
	TransactionStatusCancelled = pkg.TransactionStatusCancelled
)

const (
	CategoryInternalTransfer = pkg.CategoryInternalTransfer
	CategoryWireTransfer     = pkg.CategoryWireTransfer
	CategoryWireRefund       = pkg.CategoryWireRefund
	CategoryCryptoBuy        = pkg.CategoryCryptoBuy
	CategoryCryptoSell       = pkg.CategoryCryptoSell
	CategoryAdminAdjustment  = pkg.CategoryAdminAdjustment
)

const (
	WireStatusPending    = pkg.WireStatusPending
	WireStatusProcessing = pkg.WireStatusProcessing
	WireStatusCompleted  = pkg.WireStatusCompleted
	WireStatusRejected   = pkg.WireStatusRejected
	WireStatusCancelled  = pkg.WireStatusCancelled
)

const (
	AssetBTC = pkg.AssetBTC
	AssetETH = pkg.AssetETH
	AssetADA = pkg.AssetADA
)

const (
	TradeBuy              = pkg.TradeBuy
	TradeSell             = pkg.TradeSell
	TradeAdjustmentCredit = pkg.TradeAdjustmentCredit
	TradeAdjustmentDebit  = pkg.TradeAdjustmentDebit
)
