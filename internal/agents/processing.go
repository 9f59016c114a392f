package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ordermesh/ordermesh/pkg/a2a"
	"github.com/ordermesh/ordermesh/pkg/agent"
	"github.com/ordermesh/ordermesh/pkg/logger"
	"github.com/ordermesh/ordermesh/pkg/model"
	"github.com/ordermesh/ordermesh/pkg/purchaseorder"
	"github.com/ordermesh/ordermesh/pkg/tool"
)

const processingInstructions = `You are a specialized document processor that evaluates
purchase orders for approval.

Analyze the purchase order data and check these business rules:
1. The Grand Total must be less than $1000
2. The Supplier Name must not be empty
3. The Buyer Department must be one of: "Travel", "Marketing", "IT", "HR"

Call the evaluate_purchase_order tool to get the deterministic policy verdict
before deciding.

Respond with JSON matching the response schema: the PO number, whether the order is
approved, and a reason explaining the decision.`

// approvalDecision is the model's structured verdict.
type approvalDecision struct {
	PONumber       string `json:"poNumber" jsonschema:"required,description=Purchase order number"`
	IsApproved     bool   `json:"isApproved" jsonschema:"required,description=Whether the order is approved"`
	ApprovalReason string `json:"approvalReason" jsonschema:"required,description=Explanation of the decision"`
}

// ProcessingCard describes the processing agent at the given URL.
func ProcessingCard(url string) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:        "po-processing",
		Description: "Evaluates purchase orders against the approval policy",
		URL:         url,
		Version:     "1.0.0",
		Capabilities: a2a.AgentCapabilities{
			StateTransitionHistory: true,
		},
		Authentication:     a2a.Authentication{Schemes: []string{"none"}},
		DefaultInputModes:  []string{"application/json", "text/plain"},
		DefaultOutputModes: []string{"application/json", "text/plain"},
		Skills: []a2a.AgentSkill{{
			ID:          "evaluate_purchase_order",
			Name:        "Evaluate purchase order",
			Description: "Applies the approval rules and records the decision on the order",
			Tags:        []string{"purchase-order", "approval"},
			OutputModes: []string{"application/json"},
		}},
	}
}

// Processing normalizes an order's financials and decides approval. The
// decision comes from a structured-output model call checked against the
// deterministic policy; when the model is unavailable or disagrees with
// the policy, the policy wins.
type Processing struct {
	card *a2a.AgentCard
	llm  model.LLM
}

// NewProcessing builds the processing agent. A nil model skips the model
// call and applies the policy directly.
func NewProcessing(card *a2a.AgentCard, llm model.LLM) *Processing {
	return &Processing{card: card, llm: llm}
}

func (p *Processing) Card() *a2a.AgentCard { return p.card }

// Execute decodes the order, recomputes its financials, applies the
// approval decision, and replies with the updated order.
func (p *Processing) Execute(ctx context.Context, t *a2a.Task, msg a2a.Message) (a2a.Message, error) {
	return p.ExecuteObserved(ctx, t, msg, nil)
}

// ExecuteObserved is Execute with progress callbacks.
func (p *Processing) ExecuteObserved(ctx context.Context, _ *a2a.Task, msg a2a.Message, obs agent.TurnObserver) (a2a.Message, error) {
	po, err := orderFromMessage(msg)
	if err != nil {
		return a2a.Message{}, err
	}

	po.Normalize()
	if res := po.Validate(); !res.OK() {
		return a2a.Message{}, a2a.NewError(a2a.CodeValidation,
			"purchase order %s failed validation: %v", po.PONumber, res.Errors)
	}

	p.decide(ctx, po)

	dataPart, err := a2a.JSONPart(po)
	if err != nil {
		return a2a.Message{}, a2a.WrapError(a2a.CodeRuntime, err, "processing: encoding purchase order")
	}
	text := fmt.Sprintf("Purchase order %s: %s", po.PONumber, po.ApprovalReason)
	if obs != nil {
		obs.OnText(text)
	}

	out := a2a.NewAgentMessage(a2a.TextPart(text), dataPart)
	out.ContextID = msg.ContextID
	return out, nil
}

// decide sets IsApproved and ApprovalReason. The model's verdict is used
// for its reason text, but the approval bit itself always follows the
// deterministic policy so a hallucinated verdict cannot approve an
// over-limit order.
func (p *Processing) decide(ctx context.Context, po *purchaseorder.PurchaseOrder) {
	purchaseorder.Evaluate(po)

	if p.llm == nil {
		return
	}

	decision, err := p.modelDecision(ctx, po)
	if err != nil {
		logger.GetLogger().Warn("processing: model decision failed, using policy verdict",
			"po", po.PONumber, "error", err)
		return
	}
	if decision.IsApproved == po.IsApproved && decision.ApprovalReason != "" {
		po.ApprovalReason = decision.ApprovalReason
	}
}

// evaluateArgs is the evaluate_purchase_order tool schema. The tool always
// evaluates the order under review; the PO number is advisory.
type evaluateArgs struct {
	PONumber string `json:"poNumber,omitempty" jsonschema:"description=Purchase order number to evaluate"`
}

// modelDecision runs the verdict as an agent turn: the model may call the
// evaluate_purchase_order tool to inspect the deterministic policy verdict
// before answering with the structured decision.
func (p *Processing) modelDecision(ctx context.Context, po *purchaseorder.PurchaseOrder) (*approvalDecision, error) {
	schema, err := model.SchemaFor[approvalDecision]()
	if err != nil {
		return nil, err
	}

	evaluate, err := tool.New(
		tool.Config{
			Name:        "evaluate_purchase_order",
			Description: "Applies the deterministic approval policy to the purchase order under review and returns the verdict",
		},
		func(ctx context.Context, _ evaluateArgs) (map[string]any, error) {
			scratch := *po
			purchaseorder.Evaluate(&scratch)
			return map[string]any{
				"poNumber":       scratch.PONumber,
				"isApproved":     scratch.IsApproved,
				"approvalReason": scratch.ApprovalReason,
			}, nil
		},
	)
	if err != nil {
		return nil, err
	}

	runtime, err := agent.NewRuntime(agent.RuntimeConfig{
		Card:        p.card,
		Instruction: processingInstructions,
		Generate: &model.GenerateConfig{
			ResponseSchema:     schema,
			ResponseSchemaName: "approval_decision",
		},
	}, p.llm, tool.NewRegistry(evaluate))
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(po)
	if err != nil {
		return nil, err
	}

	turn := &a2a.Task{ID: uuid.NewString(), ContextID: uuid.NewString()}
	reply, err := runtime.Execute(ctx, turn, a2a.NewUserMessage(string(payload)))
	if err != nil {
		return nil, err
	}

	var decision approvalDecision
	if err := json.Unmarshal([]byte(a2a.ExtractText(reply)), &decision); err != nil {
		return nil, a2a.WrapError(a2a.CodeDecode, err, "approval decision did not match schema")
	}
	return &decision, nil
}

// orderFromMessage pulls a purchase order out of a message: the JSON data
// part when present, otherwise JSON in the text.
func orderFromMessage(msg a2a.Message) (*purchaseorder.PurchaseOrder, error) {
	if raw := a2a.ExtractData(msg, "application/json"); raw != nil {
		return decodeOrder(raw)
	}
	if text := a2a.ExtractAllText(msg); text != "" {
		return decodeOrder([]byte(text))
	}
	return nil, a2a.NewError(a2a.CodeValidation, "message carries no purchase order")
}

// decodeOrder accepts both a bare order and the {"purchaseOrder": ...}
// wrapper seen on the wire.
func decodeOrder(raw []byte) (*purchaseorder.PurchaseOrder, error) {
	var wrapper struct {
		PurchaseOrder json.RawMessage `json:"purchaseOrder"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.PurchaseOrder) > 0 {
		raw = wrapper.PurchaseOrder
	}
	po, err := purchaseorder.Decode(raw)
	if err != nil {
		return nil, a2a.WrapError(a2a.CodeDecode, err, "payload is not a purchase order")
	}
	return po, nil
}
