// Package llm holds the generation port used by the orchestrator.
package llm

import "paperrag/internal/domain"

// Generator completes a chat transcript with a single assistant reply.
type Generator = domain.Generator

// Messages builds the usual system + user transcript.
func Messages(system, user string) []domain.Message {
	return []domain.Message{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: user},
	}
}
