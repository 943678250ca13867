package usecase

import (
	"fmt"
	"strings"

	"github.com/nestorlabs/policybot/internal/core/domain"
)

const basePrompt = `You are Nestor AI, a friendly and knowledgeable assistant specializing in aged care and Australian regulatory law.

RESPONSE STRUCTURE:
1. Warm acknowledgment
2. Clear, organized information with short paragraphs and bullet points
3. Encouraging closing

CITATIONS:
- Quote up to 25 words from the source
- Format: (Document Title, Section X; Year)
- If unavailable: "Exact clause not available"

MULTILINGUAL: respond in the same language as the question.

OUTPUT FORMAT (STRICT JSON, nothing before or after it):
{
  "answer": "natural conversational response",
  "used_document": true_or_false,
  "sources": [
    {"title": "Document Title", "section": "Section X", "quote": "short quote if used", "meta": "year/metadata"}
  ]
}

FORBIDDEN:
- No markdown code fences or triple backticks
- No nested JSON inside the answer field
- No "As an AI assistant" disclaimers`

// buildSystemPrompt appends the authority instructions for the given
// question type to the shared persona and format rules.
func buildSystemPrompt(questionType domain.QuestionType) string {
	switch questionType {
	case domain.QuestionLaw:
		return basePrompt + `

FOR THIS LAW QUESTION:
- Use ONLY the regulatory law context
- IGNORE the organization context
- Set used_document=false
- Cite specific acts and sections`
	case domain.QuestionPolicy:
		return basePrompt + `

FOR THIS POLICY QUESTION:
- Use the organization context primarily
- Set used_document=true when organization documents are referenced
- If no organization documents are available, say so politely and give general guidance`
	case domain.QuestionMixed:
		return basePrompt + `

FOR THIS GENERAL QUESTION:
- Cover BOTH the legal requirements AND the organization's approach
- Set used_document=true ONLY if organization documents are actually referenced
- Always provide useful information even when context is missing; never refuse because no policy was uploaded`
	default:
		return basePrompt
	}
}

// formatContextBlocks labels each retrieved bundle by origin so the
// model knows which block is authoritative. Empty blocks are announced
// explicitly; the model is told to fall back to general knowledge
// rather than invent organization policy.
func formatContextBlocks(questionType domain.QuestionType, candidates []domain.RetrievalCandidate) string {
	var org, law []domain.RetrievalCandidate
	for _, c := range candidates {
		switch c.Origin {
		case domain.OriginOrganization:
			org = append(org, c)
		case domain.OriginRegulatory:
			law = append(law, c)
		}
	}

	var b strings.Builder
	writeOrg := questionType != domain.QuestionLaw
	writeLaw := questionType != domain.QuestionPolicy

	if writeOrg {
		if len(org) > 0 {
			b.WriteString("=== ORGANIZATION CONTEXT ===\n")
			writeCandidates(&b, "Org", org)
		} else {
			b.WriteString("=== NO ORGANIZATION CONTEXT ===\n")
			b.WriteString("NOTE: No organizational documents matched this question. Provide general guidance with a disclaimer.\n\n")
		}
	}
	if writeLaw {
		if len(law) > 0 {
			b.WriteString("=== REGULATORY LAW CONTEXT ===\n")
			writeCandidates(&b, "Law", law)
		} else {
			b.WriteString("=== NO LAW CONTEXT ===\n")
			b.WriteString("NOTE: No specific legal documents were found. Use general legal knowledge.\n\n")
		}
	}
	return b.String()
}

func writeCandidates(b *strings.Builder, label string, candidates []domain.RetrievalCandidate) {
	for i, c := range candidates {
		doc := c.Document
		fmt.Fprintf(b, "[%s-%d] %s (version %s, document_id %s)\n%s\n\n",
			label, i+1, doc.Title, doc.Version, doc.DocumentID, doc.Text)
	}
}

// buildMessages assembles the ordered role-tagged message list: system
// prompt, the bounded history window in chronological order, then the
// context and question as the final user message.
func buildMessages(systemPrompt string, history []domain.ConversationTurn, contextBlock, question string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, 2*len(history)+2)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: systemPrompt})
	for _, turn := range history {
		messages = append(messages,
			domain.ChatMessage{Role: domain.RoleUser, Content: turn.Prompt},
			domain.ChatMessage{Role: domain.RoleAssistant, Content: turn.Response},
		)
	}

	var user strings.Builder
	if contextBlock != "" {
		user.WriteString("Context:\n")
		user.WriteString(contextBlock)
		user.WriteString("\n")
	}
	user.WriteString("Question: ")
	user.WriteString(question)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: user.String()})
	return messages
}
