// Package purchaseorder holds the purchase order domain: the wire
// payload, normalization of its financial fields, validation, the
// approval policy, and the CSV ledger approved orders are appended to.
package purchaseorder

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TaxRate is a decimal fraction that decodes from two wire shapes: a bare
// number (0.07) or a percentage string ("7%"). Both forms normalize to
// the fraction before any computation.
type TaxRate float64

func (r *TaxRate) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))

	if strings.HasPrefix(s, `"`) {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if strings.HasSuffix(raw, "%") {
			pct, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(raw, "%")), 64)
			if err != nil {
				return fmt.Errorf("invalid tax rate %q: %w", raw, err)
			}
			*r = TaxRate(pct / 100)
			return nil
		}
		frac, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid tax rate %q: %w", raw, err)
		}
		*r = TaxRate(frac)
		return nil
	}

	var frac float64
	if err := json.Unmarshal(data, &frac); err != nil {
		return fmt.Errorf("invalid tax rate %s: %w", s, err)
	}
	*r = TaxRate(frac)
	return nil
}

// MarshalJSON always emits the decimal fraction.
func (r TaxRate) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(r))
}

// LineItem is one ordered line of a purchase order.
type LineItem struct {
	ItemCode    string  `json:"itemCode"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	LineTotal   float64 `json:"lineTotal"`
}

// PurchaseOrder is the domain payload that flows through the pipeline.
// Field names are the wire contract.
type PurchaseOrder struct {
	SupplierName         string `json:"supplierName"`
	SupplierAddressLine1 string `json:"supplierAddressLine1,omitempty"`
	SupplierAddressLine2 string `json:"supplierAddressLine2,omitempty"`
	SupplierCity         string `json:"supplierCity,omitempty"`
	SupplierState        string `json:"supplierState,omitempty"`
	SupplierPostalCode   string `json:"supplierPostalCode,omitempty"`
	SupplierCountry      string `json:"supplierCountry,omitempty"`

	Items []LineItem `json:"items"`

	PONumber        string  `json:"poNumber"`
	CreatedBy       string  `json:"createdBy,omitempty"`
	BuyerDepartment string  `json:"buyerDepartment"`
	Notes           string  `json:"notes,omitempty"`
	TaxRate         TaxRate `json:"taxRate"`

	SubTotal   float64 `json:"subTotal"`
	Tax        float64 `json:"tax"`
	GrandTotal float64 `json:"grandTotal"`

	IsApproved     bool   `json:"isApproved"`
	ApprovalReason string `json:"approvalReason,omitempty"`
}

// poWire accepts both item field spellings seen on the wire: "items" and
// "lineItems".
type poWire struct {
	PurchaseOrder
	LineItems []LineItem `json:"lineItems"`
}

// Decode parses a purchase order from JSON, honoring both item-list
// spellings and both tax-rate shapes.
func Decode(data []byte) (*PurchaseOrder, error) {
	var w poWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding purchase order: %w", err)
	}
	po := w.PurchaseOrder
	if len(po.Items) == 0 && len(w.LineItems) > 0 {
		po.Items = w.LineItems
	}
	return &po, nil
}

// round2 rounds to cents, half away from zero.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Normalize recomputes the derived financial fields from the line items:
// each lineTotal from quantity and unitPrice, subTotal as their sum, then
// tax and grandTotal from the tax rate. All money values round to cents.
func (po *PurchaseOrder) Normalize() {
	var subTotal float64
	for i := range po.Items {
		po.Items[i].LineTotal = round2(po.Items[i].Quantity * po.Items[i].UnitPrice)
		subTotal += po.Items[i].LineTotal
	}
	po.SubTotal = round2(subTotal)
	po.Tax = round2(po.SubTotal * float64(po.TaxRate))
	po.GrandTotal = round2(po.SubTotal + po.Tax)
}

// ValidationResult separates hard errors from advisory warnings.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// OK reports whether the order has no hard errors.
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// Warning thresholds.
const (
	highValueThreshold  = 10000.0
	unusualTaxRateAbove = 0.2
)

// Validate checks structural soundness. Financial mismatches between the
// claimed totals and the values recomputed from the line items are hard
// errors; orders that merely look unusual get a warning.
func (po *PurchaseOrder) Validate() ValidationResult {
	var res ValidationResult

	if strings.TrimSpace(po.PONumber) == "" {
		res.Errors = append(res.Errors, "poNumber is required")
	}
	if strings.TrimSpace(po.SupplierName) == "" {
		res.Errors = append(res.Errors, "supplierName is required")
	}
	if len(po.Items) == 0 {
		res.Errors = append(res.Errors, "at least one line item is required")
	}
	for i, item := range po.Items {
		if strings.TrimSpace(item.ItemCode) == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("item %d: itemCode is required", i))
		}
		if strings.TrimSpace(item.Description) == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("item %d: description is required", i))
		}
		if item.Quantity <= 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("item %d: quantity must be positive", i))
		}
		if item.UnitPrice < 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("item %d: unitPrice must not be negative", i))
		}
		if want := round2(item.Quantity * item.UnitPrice); item.LineTotal != 0 && math.Abs(item.LineTotal-want) > 0.01 {
			res.Errors = append(res.Errors, fmt.Sprintf("item %d: lineTotal %.2f does not match quantity*unitPrice %.2f", i, item.LineTotal, want))
		}
	}
	if po.TaxRate < 0 || po.TaxRate > 1 {
		res.Errors = append(res.Errors, fmt.Sprintf("taxRate %.4f is outside [0, 1]", float64(po.TaxRate)))
	}

	// The claimed totals must agree with each other within a cent.
	if len(po.Items) > 0 {
		var sum float64
		for _, item := range po.Items {
			sum += item.LineTotal
		}
		if sum = round2(sum); math.Abs(po.SubTotal-sum) > 0.01 {
			res.Errors = append(res.Errors, fmt.Sprintf("subTotal %.2f does not match the item total %.2f", po.SubTotal, sum))
		}
	}
	if want := round2(po.SubTotal * float64(po.TaxRate)); math.Abs(po.Tax-want) > 0.01 {
		res.Errors = append(res.Errors, fmt.Sprintf("tax %.2f does not match subTotal*taxRate %.2f", po.Tax, want))
	}
	if want := round2(po.SubTotal + po.Tax); math.Abs(po.GrandTotal-want) > 0.01 {
		res.Errors = append(res.Errors, fmt.Sprintf("grandTotal %.2f does not match subTotal+tax %.2f", po.GrandTotal, want))
	}

	if po.GrandTotal > highValueThreshold {
		res.Warnings = append(res.Warnings, "high value order, may require additional approval")
	}
	if po.TaxRate > unusualTaxRateAbove && po.TaxRate <= 1 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("unusual tax rate %.4f", float64(po.TaxRate)))
	}
	if po.BuyerDepartment == "" {
		res.Warnings = append(res.Warnings, "buyerDepartment is empty")
	}
	if po.CreatedBy == "" {
		res.Warnings = append(res.Warnings, "createdBy is empty")
	}
	if po.Notes == "" {
		res.Warnings = append(res.Warnings, "notes is empty")
	}
	return res
}
