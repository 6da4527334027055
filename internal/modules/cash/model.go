// README: Cash ledger entry definitions (driver float tracking).
package cash

import (
	"time"

	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

type Type string

const (
	// TypeCollection credits the driver's float: cash taken at a dropoff.
	// Rejected transfers are re-credited as collection entries referencing
	// the transfer, so the balance stays Σcollections − Σtransfers.
	TypeCollection Type = "collection"
	// TypeTransfer debits the full outstanding balance when the driver
	// reports handing the float over.
	TypeTransfer Type = "transfer"
	// TypeApproval is the back-office acknowledgement of a transfer. It
	// never moves the balance.
	TypeApproval Type = "approval"
)

// Transaction is one append-only ledger row. Rows are never updated or
// deleted; the balance is always derived by summation over the log.
type Transaction struct {
	ID            types.ID
	CompanyID     types.ID
	DriverID      types.ID
	Type          Type
	Amount        int64
	Currency      string
	TowID         *types.ID
	PointID       *types.ID
	RefTransferID *types.ID
	Notes         string
	CreatedAt     time.Time
}
