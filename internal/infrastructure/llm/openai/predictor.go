package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openaigo "github.com/openai/openai-go"

	"github.com/nestorlabs/policybot/internal/core/domain"
)

// Document taxonomy of the organization collections. "others" in both
// fields means the question is not about internal documents at all.
var documentCategories = []string{
	"governance_leadership",
	"risk_management_quality_improvement",
	"human_resources_workforce_management",
	"competency_training",
	"clinical_care_support_services",
	"care_planning_agreements",
	"work_health_safety_whs",
	"incident_management_reporting",
	"infection_prevention_control",
	"medication_management",
	"behavior_support_restrictive_practices",
	"emergency_disaster_management",
	"financial_management_procurement",
	"privacy_confidentiality_information_governance",
	"resident_participant_rights_safeguarding",
	"feedback_complaints_management",
	"diversity_inclusion_cultural_safety",
	"safeguarding_children_vulnerable_persons",
	"continuous_improvement_audit_evidence",
	"operational_registers_logs",
	"others",
}

var documentTypes = []string{"policy", "procedure", "guideline", "standard"}

const fallbackCategory = "others"

// Predictor maps a staff question to the most likely document category
// and type with one low-temperature classification call.
type Predictor struct {
	client *Client
}

func NewPredictor(client *Client) *Predictor {
	return &Predictor{client: client}
}

func (p *Predictor) PredictFilter(ctx context.Context, question string) (domain.RetrievalFilter, error) {
	resp, err := p.client.complete(ctx, openaigo.ChatCompletionNewParams{
		Model: openaigo.ChatModel(p.client.cfg.ChatModel),
		Messages: []openaigo.ChatCompletionMessageParamUnion{
			openaigo.SystemMessage("You map staff questions to aged-care document categories and types."),
			openaigo.UserMessage(buildFilterPrompt(question)),
		},
		Temperature: openaigo.Float(0),
		MaxTokens:   openaigo.Int(100),
	})
	if err != nil {
		return domain.RetrievalFilter{}, wrapAPIError("predict filter", err)
	}
	if len(resp.Choices) == 0 {
		return domain.RetrievalFilter{}, domain.WrapError(domain.ErrUpstreamUnavailable, "predict filter: no choices returned", nil)
	}

	var result struct {
		Category     string `json:"category"`
		DocumentType string `json:"document_type"`
	}
	raw := extractJSONObject(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return domain.RetrievalFilter{}, fmt.Errorf("parse filter prediction: %w", err)
	}
	if result.Category == "" {
		result.Category = fallbackCategory
	}
	if result.DocumentType == "" {
		result.DocumentType = fallbackCategory
	}

	filter := domain.RetrievalFilter{
		Category:        result.Category,
		DocumentType:    result.DocumentType,
		DocumentRelated: result.Category != fallbackCategory || result.DocumentType != fallbackCategory,
		UsedTokens:      int(resp.Usage.TotalTokens),
	}
	if filter.Category == fallbackCategory {
		filter.Category = ""
	}
	if filter.DocumentType == fallbackCategory {
		filter.DocumentType = ""
	}
	return filter, nil
}

func buildFilterPrompt(question string) string {
	var b strings.Builder
	b.WriteString("A staff member asked:\n")
	fmt.Fprintf(&b, "%q\n\n", question)
	fmt.Fprintf(&b, "1. Pick the most relevant category from: %s\n", strings.Join(documentCategories, ", "))
	fmt.Fprintf(&b, "2. Pick the most likely document_type from: %s\n\n", strings.Join(documentTypes, ", "))
	b.WriteString("Output strictly as JSON:\n")
	b.WriteString(`{"category": "value_from_list", "document_type": "value_from_list"}`)
	b.WriteString("\n\nIf unsure, use \"others\" for either field.")
	return b.String()
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
