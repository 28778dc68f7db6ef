package orchestrator

import (
	"fmt"
	"strings"

	"paperrag/internal/domain"
)

// NoRelevantAnswer is returned instead of calling the model when retrieval
// is too weak to ground an answer.
const NoRelevantAnswer = "I couldn't find relevant information in the paper to answer this question."

const answerSystemPrompt = `You are an expert research paper assistant.
You answer questions about research papers clearly and accurately.

Rules:
- Use only the provided context to answer
- If the context does not contain the answer, say so honestly
- Explain complex concepts in simple language
- Be concise but complete
- Always cite the context section your answer comes from`

const simplifySystemPrompt = `You explain complex research concepts in simple, everyday language.

Rules:
- Explain as if talking to a smart 16 year old
- Replace jargon with simple words
- Use analogies where helpful
- Keep it concise`

func answerUserPrompt(context, question string) string {
	return fmt.Sprintf(`Here is the relevant context from the research paper:

%s

Based on the context above, please answer this question:
%s`, context, question)
}

func translateSystemPrompt(language string) string {
	return fmt.Sprintf(`You are an expert scientific translator specializing in translating research papers into %[1]s.

Rules:
- Translate accurately and naturally into %[1]s
- Preserve all technical terms correctly
- Keep the academic tone of the original
- Do not add explanations, only translate
- If a technical term has no translation, keep it in English`, language)
}

// translateUserPrompt omits the reference section entirely when there are
// no reference chunks.
func translateUserPrompt(text, language string, refs []domain.ScoredChunk) string {
	if len(refs) == 0 {
		return fmt.Sprintf(`Translate the following research paper text into %s:

%s

Provide ONLY the translation, nothing else.`, language, text)
	}
	parts := make([]string, len(refs))
	for i, c := range refs {
		parts[i] = fmt.Sprintf("[Reference %d]: %s", i+1, c.Text)
	}
	return fmt.Sprintf(`Use this reference context for correct technical terminology:

%s

Now translate the following text into %s:

%s

Provide ONLY the translation, nothing else.`, strings.Join(parts, "\n\n"), language, text)
}

func simplifyUserPrompt(text string) string {
	return "Simplify this research paper text into plain English:\n\n" + text
}
