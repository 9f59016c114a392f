// Package agents holds the three purchase-order pipeline agents: intake
// (extraction), processing (approval), and data (persistence).
package agents

import (
	"context"
	"fmt"

	"github.com/ordermesh/ordermesh/pkg/a2a"
	"github.com/ordermesh/ordermesh/pkg/agent"
	"github.com/ordermesh/ordermesh/pkg/model"
	"github.com/ordermesh/ordermesh/pkg/purchaseorder"
)

const intakeInstructions = `You are a purchase order intake agent. Extract a complete
purchase order from the user's request: supplier identity and address, line items with
item code, description, quantity and unit price, the PO number, who created it, the
buyer department, any notes, and the tax rate. Emit exactly the JSON object described
by the response schema, with no surrounding prose. Leave fields you cannot determine
empty; compute nothing - totals are derived downstream.`

// IntakeCard describes the intake agent at the given URL.
func IntakeCard(url string) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:        "po-intake",
		Description: "Extracts structured purchase orders from free-text requests",
		URL:         url,
		Version:     "1.0.0",
		Capabilities: a2a.AgentCapabilities{
			StateTransitionHistory: true,
		},
		Authentication:     a2a.Authentication{Schemes: []string{"none"}},
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"application/json", "text/plain"},
		Skills: []a2a.AgentSkill{{
			ID:          "extract_purchase_order",
			Name:        "Extract purchase order",
			Description: "Turns a free-text purchasing request into a structured purchase order",
			Tags:        []string{"purchase-order", "extraction"},
			Examples:    []string{"Order 3 boxes of copier paper from Marketing Masters Supplies, PO MMS-80085, Marketing department"},
			OutputModes: []string{"application/json"},
		}},
	}
}

// Intake extracts a structured purchase order from a free-text request
// using a structured-output model call, then normalizes the financials.
type Intake struct {
	rt *agent.Runtime
}

// NewIntake builds the intake agent against the given model.
func NewIntake(card *a2a.AgentCard, llm model.LLM) (*Intake, error) {
	schema, err := model.SchemaFor[purchaseorder.PurchaseOrder]()
	if err != nil {
		return nil, fmt.Errorf("intake: building response schema: %w", err)
	}

	rt, err := agent.NewRuntime(agent.RuntimeConfig{
		Card:        card,
		Instruction: intakeInstructions,
		Generate: &model.GenerateConfig{
			ResponseSchema:     schema,
			ResponseSchemaName: "purchase_order",
		},
	}, llm, nil)
	if err != nil {
		return nil, err
	}
	return &Intake{rt: rt}, nil
}

func (i *Intake) Card() *a2a.AgentCard { return i.rt.Card() }

// Execute runs one extraction turn and replies with the normalized order
// as a JSON data part plus a short text summary.
func (i *Intake) Execute(ctx context.Context, t *a2a.Task, msg a2a.Message) (a2a.Message, error) {
	return i.ExecuteObserved(ctx, t, msg, nil)
}

// ExecuteObserved is Execute with progress callbacks.
func (i *Intake) ExecuteObserved(ctx context.Context, t *a2a.Task, msg a2a.Message, obs agent.TurnObserver) (a2a.Message, error) {
	reply, err := i.rt.ExecuteObserved(ctx, t, msg, obs)
	if err != nil {
		return a2a.Message{}, err
	}

	po, err := purchaseorder.Decode([]byte(a2a.ExtractAllText(reply)))
	if err != nil {
		return a2a.Message{}, a2a.WrapError(a2a.CodeDecode, err, "intake: model output is not a purchase order")
	}
	po.Normalize()

	dataPart, err := a2a.JSONPart(po)
	if err != nil {
		return a2a.Message{}, a2a.WrapError(a2a.CodeRuntime, err, "intake: encoding purchase order")
	}
	summary := fmt.Sprintf("Extracted purchase order %s from %s: %d items, grand total $%.2f",
		po.PONumber, po.SupplierName, len(po.Items), po.GrandTotal)

	out := a2a.NewAgentMessage(a2a.TextPart(summary), dataPart)
	out.ContextID = msg.ContextID
	return out, nil
}
