package purchaseorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
)

// ledgerHeader is the CSV column contract, in order.
var ledgerHeader = []string{"PONumber", "Subtotal", "Tax", "GrandTotal", "SupplierName", "BuyerDepartment", "Notes"}

// Ledger appends approved purchase orders to a CSV file. The file gets a
// header when created and rows are appended thereafter. Safe for
// concurrent use within one process.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// NewLedger points a ledger at path. The file is created lazily on the
// first append.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the ledger's file path.
func (l *Ledger) Path() string { return l.path }

// Append writes one order as a CSV row, creating the file with its header
// first if needed.
func (l *Ledger) Append(po *PurchaseOrder) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := os.Stat(l.path)
	needHeader := os.IsNotExist(err) || (err == nil && info.Size() == 0)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checking ledger %s: %w", l.path, err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening ledger %s: %w", l.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(ledgerHeader); err != nil {
			return fmt.Errorf("writing ledger header: %w", err)
		}
	}
	row := []string{
		po.PONumber,
		strconv.FormatFloat(po.SubTotal, 'f', 2, 64),
		strconv.FormatFloat(po.Tax, 'f', 2, 64),
		strconv.FormatFloat(po.GrandTotal, 'f', 2, 64),
		po.SupplierName,
		po.BuyerDepartment,
		po.Notes,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("writing ledger row: %w", err)
	}
	w.Flush()
	return w.Error()
}
