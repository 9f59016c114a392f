package purchaseorder

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxRateDecoding(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"bare fraction", `0.07`, 0.07},
		{"percentage string", `"7%"`, 0.07},
		{"percentage with space", `" 7.5 %"`, 0.075},
		{"quoted fraction", `"0.07"`, 0.07},
		{"zero", `0`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r TaxRate
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &r))
			assert.InDelta(t, tt.want, float64(r), 1e-9)
		})
	}
}

func TestTaxRateDecodingRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`"abc"`, `"x%"`, `true`} {
		var r TaxRate
		assert.Error(t, json.Unmarshal([]byte(raw), &r), raw)
	}
}

func TestTaxRateMarshalsAsFraction(t *testing.T) {
	raw, err := json.Marshal(TaxRate(0.07))
	require.NoError(t, err)
	assert.Equal(t, "0.07", string(raw))
}

func TestDecodeAcceptsBothItemSpellings(t *testing.T) {
	items := `[{"itemCode":"A1","quantity":2,"unitPrice":5}]`

	po, err := Decode([]byte(`{"poNumber":"PO-1","supplierName":"Acme","items":` + items + `}`))
	require.NoError(t, err)
	require.Len(t, po.Items, 1)

	po, err = Decode([]byte(`{"poNumber":"PO-1","supplierName":"Acme","lineItems":` + items + `}`))
	require.NoError(t, err)
	require.Len(t, po.Items, 1)
	assert.Equal(t, "A1", po.Items[0].ItemCode)
}

func TestNormalizeFinancials(t *testing.T) {
	po := &PurchaseOrder{
		PONumber:     "PO-2024-001",
		SupplierName: "Acme",
		TaxRate:      0.07,
		Items: []LineItem{
			{ItemCode: "W-100", Quantity: 3, UnitPrice: 29.99},
		},
	}
	po.Normalize()

	assert.Equal(t, 89.97, po.Items[0].LineTotal)
	assert.Equal(t, 89.97, po.SubTotal)
	assert.Equal(t, 6.30, po.Tax)
	assert.Equal(t, 96.27, po.GrandTotal)
}

func TestNormalizeMultipleItems(t *testing.T) {
	po := &PurchaseOrder{
		TaxRate: 0.0825,
		Items: []LineItem{
			{Quantity: 2, UnitPrice: 10.105},
			{Quantity: 1, UnitPrice: 0.99},
		},
	}
	po.Normalize()

	assert.Equal(t, 20.21, po.Items[0].LineTotal)
	assert.Equal(t, 0.99, po.Items[1].LineTotal)
	assert.Equal(t, 21.20, po.SubTotal)
	assert.Equal(t, 1.75, po.Tax)
	assert.Equal(t, 22.95, po.GrandTotal)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		po         PurchaseOrder
		wantErrors int
		wantWarns  int
	}{
		{
			name: "sound order",
			po: PurchaseOrder{
				PONumber: "PO-1", SupplierName: "Acme", BuyerDepartment: "IT",
				CreatedBy: "amy", Notes: "rush", TaxRate: 0.07,
				SubTotal: 10, Tax: 0.70, GrandTotal: 10.70,
				Items: []LineItem{{ItemCode: "A1", Description: "widget", Quantity: 1, UnitPrice: 10, LineTotal: 10}},
			},
		},
		{
			name:       "missing everything",
			po:         PurchaseOrder{},
			wantErrors: 3,
			wantWarns:  3,
		},
		{
			name: "bad quantity and price",
			po: PurchaseOrder{
				PONumber: "PO-1", SupplierName: "Acme", BuyerDepartment: "IT",
				CreatedBy: "amy", Notes: "x",
				Items: []LineItem{{ItemCode: "A1", Description: "widget", Quantity: 0, UnitPrice: -1}},
			},
			wantErrors: 2,
		},
		{
			name: "line total mismatch",
			po: PurchaseOrder{
				PONumber: "PO-1", SupplierName: "Acme", BuyerDepartment: "IT",
				CreatedBy: "amy", Notes: "x",
				SubTotal: 25, GrandTotal: 25,
				Items: []LineItem{{ItemCode: "A1", Description: "widget", Quantity: 2, UnitPrice: 10, LineTotal: 25}},
			},
			wantErrors: 1,
		},
		{
			name: "missing item code and description",
			po: PurchaseOrder{
				PONumber: "PO-1", SupplierName: "Acme", BuyerDepartment: "IT",
				CreatedBy: "amy", Notes: "x",
				SubTotal: 10, GrandTotal: 10,
				Items: []LineItem{{Quantity: 1, UnitPrice: 10, LineTotal: 10}},
			},
			wantErrors: 2,
		},
		{
			name: "tax rate out of range",
			po: PurchaseOrder{
				PONumber: "PO-1", SupplierName: "Acme", BuyerDepartment: "IT",
				CreatedBy: "amy", Notes: "x", TaxRate: 1.5,
				Items: []LineItem{{ItemCode: "A1", Description: "widget", Quantity: 1, UnitPrice: 10}},
			},
			wantErrors: 1,
		},
		{
			name: "totals disagree with the line items",
			po: PurchaseOrder{
				PONumber: "PO-1", SupplierName: "Acme", BuyerDepartment: "IT",
				CreatedBy: "amy", Notes: "x", TaxRate: 0.07,
				SubTotal: 9999, GrandTotal: 5,
				Items: []LineItem{{ItemCode: "A1", Description: "widget", Quantity: 2, UnitPrice: 10, LineTotal: 20}},
			},
			wantErrors: 3,
		},
		{
			name: "high value order warns",
			po: PurchaseOrder{
				PONumber: "PO-1", SupplierName: "Acme", BuyerDepartment: "IT",
				CreatedBy: "amy", Notes: "x", TaxRate: 0.07,
				SubTotal: 20000, Tax: 1400, GrandTotal: 21400,
				Items: []LineItem{{ItemCode: "SRV-9", Description: "rack server", Quantity: 20, UnitPrice: 1000, LineTotal: 20000}},
			},
			wantWarns: 1,
		},
		{
			name: "unusual tax rate warns",
			po: PurchaseOrder{
				PONumber: "PO-1", SupplierName: "Acme", BuyerDepartment: "IT",
				CreatedBy: "amy", Notes: "x", TaxRate: 0.5,
				SubTotal: 10, Tax: 5, GrandTotal: 15,
				Items: []LineItem{{ItemCode: "A1", Description: "widget", Quantity: 1, UnitPrice: 10, LineTotal: 10}},
			},
			wantWarns: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.po.Validate()
			assert.Len(t, res.Errors, tt.wantErrors, "errors: %v", res.Errors)
			assert.Len(t, res.Warnings, tt.wantWarns, "warnings: %v", res.Warnings)
			assert.Equal(t, tt.wantErrors == 0, res.OK())
		})
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name         string
		po           PurchaseOrder
		wantApprove  bool
		wantInReason string
	}{
		{
			name: "approved under limit",
			po: PurchaseOrder{
				PONumber: "PO-2024-0042", SupplierName: "Marketing Masters Supplies",
				BuyerDepartment: "Marketing", GrandTotal: 208.59,
			},
			wantApprove:  true,
			wantInReason: "under the $1000.00 limit",
		},
		{
			name: "rejected at limit",
			po: PurchaseOrder{
				PONumber: "PO-1", SupplierName: "Acme",
				BuyerDepartment: "IT", GrandTotal: 1000.00,
			},
			wantInReason: "$1000.00 meets or exceeds",
		},
		{
			name: "rejected over limit cites total",
			po: PurchaseOrder{
				PONumber: "PO-1", SupplierName: "Acme",
				BuyerDepartment: "IT", GrandTotal: 1500.00,
			},
			wantInReason: "$1500.00",
		},
		{
			name: "rejected missing supplier",
			po: PurchaseOrder{
				PONumber: "PO-1", SupplierName: "  ",
				BuyerDepartment: "HR", GrandTotal: 10,
			},
			wantInReason: "supplier name is missing",
		},
		{
			name: "rejected unknown department",
			po: PurchaseOrder{
				PONumber: "PO-1", SupplierName: "Acme",
				BuyerDepartment: "Engineering", GrandTotal: 10,
			},
			wantInReason: `"Engineering" is not an approved purchasing department`,
		},
		{
			name: "department match is case-insensitive",
			po: PurchaseOrder{
				PONumber: "PO-1", SupplierName: "Acme",
				BuyerDepartment: "marketing", GrandTotal: 10,
			},
			wantApprove:  true,
			wantInReason: "Approved",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Evaluate(&tt.po)
			assert.Equal(t, tt.wantApprove, tt.po.IsApproved)
			assert.Contains(t, tt.po.ApprovalReason, tt.wantInReason)
			if tt.wantApprove {
				assert.Contains(t, tt.po.ApprovalReason, "Approved:")
			} else {
				assert.Contains(t, tt.po.ApprovalReason, "Rejected:")
			}
		})
	}
}

func TestLedgerAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.csv")
	ledger := NewLedger(path)

	first := &PurchaseOrder{
		PONumber: "PO-1", SubTotal: 89.97, Tax: 6.30, GrandTotal: 96.27,
		SupplierName: "Acme", BuyerDepartment: "IT", Notes: "rush order",
	}
	second := &PurchaseOrder{
		PONumber: "PO-2", SubTotal: 100, Tax: 7, GrandTotal: 107,
		SupplierName: "Globex", BuyerDepartment: "HR", Notes: `said "asap"`,
	}
	require.NoError(t, ledger.Append(first))
	require.NoError(t, ledger.Append(second))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "one header plus two rows")

	assert.Equal(t, []string{"PONumber", "Subtotal", "Tax", "GrandTotal", "SupplierName", "BuyerDepartment", "Notes"}, rows[0])
	assert.Equal(t, []string{"PO-1", "89.97", "6.30", "96.27", "Acme", "IT", "rush order"}, rows[1])
	assert.Equal(t, []string{"PO-2", "100.00", "7.00", "107.00", "Globex", "HR", `said "asap"`}, rows[2])
}

func TestLedgerHeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.csv")

	po := &PurchaseOrder{PONumber: "PO-1", SupplierName: "Acme", BuyerDepartment: "IT"}
	require.NoError(t, NewLedger(path).Append(po))
	// A fresh ledger over the same file must not repeat the header.
	require.NoError(t, NewLedger(path).Append(po))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "PONumber", rows[0][0])
	assert.Equal(t, "PO-1", rows[1][0])
	assert.Equal(t, "PO-1", rows[2][0])
}
