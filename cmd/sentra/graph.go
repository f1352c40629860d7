package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sentraops/sentra/internal/diagram"
	"github.com/sentraops/sentra/pkg/schema"
)

// runGraph reads a playbook definition file and prints it as a Mermaid
// flowchart on stdout.
func runGraph(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read playbook: %w", err)
	}

	var def schema.PlaybookDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return fmt.Errorf("parse playbook: %w", err)
	}

	fmt.Print(diagram.RenderMermaid(&def))
	return nil
}
