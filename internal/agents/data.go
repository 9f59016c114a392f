package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ordermesh/ordermesh/pkg/a2a"
	"github.com/ordermesh/ordermesh/pkg/purchaseorder"
	"github.com/ordermesh/ordermesh/pkg/telemetry"
)

// DataCard describes the data agent at the given URL.
func DataCard(url string) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:               "po-data",
		Description:        "Validates processed purchase orders and persists approved ones",
		URL:                url,
		Version:            "1.0.0",
		Authentication:     a2a.Authentication{Schemes: []string{"none"}},
		DefaultInputModes:  []string{"application/json", "text/plain"},
		DefaultOutputModes: []string{"text/csv", "application/json"},
		Skills: []a2a.AgentSkill{{
			ID:          "persist_purchase_order",
			Name:        "Persist purchase order",
			Description: "Runs final validation, records approved orders in the ledger, and reports a summary",
			Tags:        []string{"purchase-order", "persistence"},
			OutputModes: []string{"text/csv"},
		}},
	}
}

// Status values of a processing result.
const (
	StatusApproved         = "APPROVED"
	StatusPendingApproval  = "PENDING_APPROVAL"
	StatusValidationFailed = "VALIDATION_FAILED"
)

// Summary condenses a processed order.
type Summary struct {
	TotalItems    int     `json:"totalItems"`
	TotalQuantity float64 `json:"totalQuantity"`
	SubTotal      float64 `json:"subTotal"`
	Tax           float64 `json:"tax"`
	GrandTotal    float64 `json:"grandTotal"`
	Supplier      string  `json:"supplier"`
	Department    string  `json:"department"`
	IsApproved    bool    `json:"isApproved"`
}

// ProcessingResult is the data agent's full report for one order.
type ProcessingResult struct {
	Status           string    `json:"status"`
	PONumber         string    `json:"poNumber"`
	ValidationErrors []string  `json:"validationErrors"`
	Warnings         []string  `json:"warnings"`
	Summary          Summary   `json:"summary"`
	ProcessedAt      time.Time `json:"processedAt"`
}

// Data is the persistence agent. It has no model: validation and the
// ledger write are deterministic.
type Data struct {
	card   *a2a.AgentCard
	ledger *purchaseorder.Ledger
}

// NewData builds the data agent writing to the given ledger.
func NewData(card *a2a.AgentCard, ledger *purchaseorder.Ledger) *Data {
	return &Data{card: card, ledger: ledger}
}

func (d *Data) Card() *a2a.AgentCard { return d.card }

// Execute validates the processed order, appends approved orders to the
// CSV ledger, and replies with a CSV summary line plus the full result.
func (d *Data) Execute(ctx context.Context, _ *a2a.Task, msg a2a.Message) (a2a.Message, error) {
	po, err := orderFromMessage(msg)
	if err != nil {
		return a2a.Message{}, err
	}

	validation := po.Validate()

	result := ProcessingResult{
		PONumber:         po.PONumber,
		ValidationErrors: validation.Errors,
		Warnings:         validation.Warnings,
		ProcessedAt:      time.Now().UTC(),
		Summary: Summary{
			TotalItems: len(po.Items),
			SubTotal:   po.SubTotal,
			Tax:        po.Tax,
			GrandTotal: po.GrandTotal,
			Supplier:   po.SupplierName,
			Department: po.BuyerDepartment,
			IsApproved: po.IsApproved,
		},
	}
	for _, item := range po.Items {
		result.Summary.TotalQuantity += item.Quantity
	}

	switch {
	case !validation.OK():
		result.Status = StatusValidationFailed
	case po.IsApproved:
		result.Status = StatusApproved
	default:
		result.Status = StatusPendingApproval
	}
	telemetry.Metrics.OrdersTotal.WithLabelValues(result.Status).Inc()

	if result.Status == StatusApproved {
		if err := d.ledger.Append(po); err != nil {
			return a2a.Message{}, a2a.WrapError(a2a.CodeRuntime, err, "data: ledger write failed")
		}
	}

	dataPart, err := a2a.JSONPart(result)
	if err != nil {
		return a2a.Message{}, a2a.WrapError(a2a.CodeRuntime, err, "data: encoding result")
	}

	out := a2a.NewAgentMessage(a2a.TextPart(csvLine(po)), dataPart)
	out.ContextID = msg.ContextID
	return out, nil
}

// csvLine renders the order in the ledger's column order, with notes
// quoted.
func csvLine(po *purchaseorder.PurchaseOrder) string {
	notes := `"` + strings.ReplaceAll(po.Notes, `"`, `""`) + `"`
	return fmt.Sprintf("%s,%.2f,%.2f,%.2f,%s,%s,%s",
		po.PONumber, po.SubTotal, po.Tax, po.GrandTotal,
		po.SupplierName, po.BuyerDepartment, notes)
}
