package retrieval

import (
	"fmt"
	"strings"
)

// DefaultNoAnswer is returned verbatim when retrieval finds nothing above the
// similarity threshold. The model is never called in that case.
const DefaultNoAnswer = "I don't have enough information to answer this question based on the available documents."

// SystemPrompt constrains the model to the retrieved context.
const SystemPrompt = `You are a helpful AI assistant specialized in answering questions based on provided context.

IMPORTANT RULES:
1. Answer ONLY based on the provided context
2. If the answer is not in the context, say "I don't have enough information to answer this question"
3. Be concise but comprehensive
4. Cite sources when possible by mentioning the document name
5. If the context contains conflicting information, mention both perspectives
6. Do not make up information or hallucinate facts

Always maintain a professional and helpful tone.`

const promptTemplate = `Based on the following context, please answer the user's question.

CONTEXT:
%s

USER QUESTION: %s

Please provide a helpful and accurate answer based only on the context above. If the context doesn't contain enough information to answer the question, say so clearly.`

// approxTokens estimates token count at four characters per token, which is
// close enough for budgeting English prose.
func approxTokens(s string) int {
	return len([]rune(s)) / 4
}

// BuildContext assembles retrieved chunks into the prompt context: one
// labelled block per chunk, separated by rules. Chunks are dropped whole from
// the tail once the token budget is exceeded; the top-ranked chunk is always
// kept even when it alone blows the budget. A budget of zero disables the cap.
// The second return is the number of chunks kept, so callers can limit
// citations to what the model actually saw.
func BuildContext(results []RetrievedResult, tokenBudget int) (string, int) {
	blocks := make([]string, 0, len(results))
	used := 0
	for i, r := range results {
		block := fmt.Sprintf("[Source: %s]\n%s", r.Source, r.Text)
		cost := approxTokens(block)
		if tokenBudget > 0 && i > 0 && used+cost > tokenBudget {
			break
		}
		blocks = append(blocks, block)
		used += cost
	}
	return strings.Join(blocks, "\n\n---\n\n"), len(blocks)
}

// BuildPrompt renders the user-turn prompt from the assembled context and the
// raw query.
func BuildPrompt(query, context string) string {
	return fmt.Sprintf(promptTemplate, context, query)
}

// snippet shortens citation text to keep responses light; full chunk text
// stays in the vector store payload.
func snippet(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
