// Command docchat is the entry point for the document chat assistant.
// It provides a CLI (via Cobra) for asking questions grounded in uploaded
// file attachments, managing those attachments, and running the background
// ingestion worker.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docchat-go/cmd/docchat/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
