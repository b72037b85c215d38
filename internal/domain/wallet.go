package domain

import "time"

// Wallet holds a seller's funds. Balance is withdrawable, EscrowBalance is
// held for orders that were paid but not yet delivered. Only the settlement
// service mutates these fields, always together with a Transaction row.
type Wallet struct {
	ID                  int64     `db:"id"`
	SellerID            int64     `db:"seller_id"`
	Balance             int64     `db:"balance"`
	EscrowBalance       int64     `db:"escrow_balance"`
	TotalEarnings       int64     `db:"total_earnings"`
	TotalCommissionPaid int64     `db:"total_commission_paid"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

type TransactionType string

const (
	TransactionCredit        TransactionType = "credit"
	TransactionDebit         TransactionType = "debit"
	TransactionEscrowRelease TransactionType = "escrow_release"
	TransactionCommission    TransactionType = "commission"
	TransactionWithdrawal    TransactionType = "withdrawal"
	TransactionRefund        TransactionType = "refund"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction is an append-only audit record. Amount is always positive,
// the sign is implied by Type. Amounts are never updated and rows are never
// deleted; only a pending withdrawal's status moves to completed or failed
// once the payout gateway answers.
type Transaction struct {
	ID          string            `db:"id"`
	WalletID    int64             `db:"wallet_id"`
	OrderID     *int64            `db:"order_id"`
	Type        TransactionType   `db:"type"`
	Amount      int64             `db:"amount"`
	Description string            `db:"description"`
	Status      TransactionStatus `db:"status"`
	GatewayRef  string            `db:"gateway_ref"`
	CreatedAt   time.Time         `db:"created_at"`
}
