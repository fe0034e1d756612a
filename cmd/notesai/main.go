// Command notesai answers questions from OneNote notebooks. It ingests pages
// into a vector index and answers with a generative model grounded in the
// retrieved passages, from the CLI (via Cobra) or over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/notesai-go/cmd/notesai/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
