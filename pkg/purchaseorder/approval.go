package purchaseorder

import (
	"fmt"
	"strings"
)

// ApprovalLimit is the exclusive grand-total ceiling for automatic
// approval.
const ApprovalLimit = 1000.00

// ApprovedDepartments are the buyer departments allowed to purchase.
var ApprovedDepartments = []string{"Travel", "Marketing", "IT", "HR"}

func departmentApproved(dept string) bool {
	for _, d := range ApprovedDepartments {
		if strings.EqualFold(d, dept) {
			return true
		}
	}
	return false
}

// Evaluate applies the approval policy and sets IsApproved and
// ApprovalReason on the order. An order is approved when its grand total
// is under the limit, the supplier is named, and the buyer department is
// on the allow-list. The reason always states the outcome.
func Evaluate(po *PurchaseOrder) {
	var reasons []string

	if po.GrandTotal >= ApprovalLimit {
		reasons = append(reasons, fmt.Sprintf("grand total $%.2f meets or exceeds the $%.2f limit", po.GrandTotal, ApprovalLimit))
	}
	if strings.TrimSpace(po.SupplierName) == "" {
		reasons = append(reasons, "supplier name is missing")
	}
	if !departmentApproved(po.BuyerDepartment) {
		reasons = append(reasons, fmt.Sprintf("department %q is not an approved purchasing department", po.BuyerDepartment))
	}

	if len(reasons) > 0 {
		po.IsApproved = false
		po.ApprovalReason = "Rejected: " + strings.Join(reasons, "; ")
		return
	}
	po.IsApproved = true
	po.ApprovalReason = fmt.Sprintf("Approved: total $%.2f is under the $%.2f limit for department %s",
		po.GrandTotal, ApprovalLimit, po.BuyerDepartment)
}
