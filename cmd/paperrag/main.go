// paperrag answers questions about research papers from their own text.
//
// Usage:
//
//	paperrag index paper.txt notes.md      # Chunk, embed and store documents
//	paperrag ask "What is the main result?" # Grounded answer with sources
//	paperrag translate --lang Hindi "..."   # Translate using paper terminology
//	paperrag chat                           # Interactive session
//	paperrag discover recommend -f paper.txt
//
// Configuration is read from ./config.yaml or ~/.config/paperrag/config.yaml.
package main

import (
	"os"

	"paperrag/cmd/paperrag/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
