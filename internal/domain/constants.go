package domain

const (
	DirectionDebit  = "debit"
	DirectionCredit = "credit"

	// Transaction statuses. A row is never left pending after the operation
	// that created it returns, except when the process dies mid-transfer; the
	// recovery worker resolves those.
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"

	CategoryTransferOut    = "transfer_out"
	CategoryTransferIn     = "transfer_in"
	CategoryExternalOut    = "external_transfer"
	CategoryInboundCredit  = "inbound_credit"
	CategoryRefund         = "refund"
	CategoryOpeningBalance = "opening_balance"
	CategoryReconciliation = "reconciliation"

	ChannelTransfer    = "transfer"
	ChannelOnline      = "online"
	ChannelContactless = "contactless"

	MappingStatusActive  = "active"
	MappingStatusUsed    = "used"
	MappingStatusExpired = "expired"

	RoleUser  = "user"
	RoleAdmin = "admin"

	MinTier = 1
	MaxTier = 4

	CurrencyNGN = "NGN"
)

// TransferState is the orchestrator state a transfer reached.
type TransferState string

const (
	TransferValidating    TransferState = "validating"
	TransferReserved      TransferState = "reserved"
	TransferRailSubmitted TransferState = "rail_submitted"
	TransferCompleted     TransferState = "completed"
	TransferRefunding     TransferState = "refunding"
	TransferRefunded      TransferState = "refunded"
	TransferFailed        TransferState = "failed"
)

// IsValidChannel reports whether channel is a known payment channel.
func IsValidChannel(channel string) bool {
	switch channel {
	case ChannelTransfer, ChannelOnline, ChannelContactless:
		return true
	default:
		return false
	}
}
