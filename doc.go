// Package stageflow provides a declarative multi-stage LLM scenario
// orchestrator.
//
// Stageflow loads versioned scenario definitions from YAML or JSON files,
// builds them into ordered stages of prompt turns, and executes them against
// a chat-completions provider. A per-session context store accumulates stage
// inputs, outputs, tool-call audits, and metadata, and makes earlier stages'
// outputs available to later stages through template placeholders.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/stageflow-ai/stageflow/cmd/stageflow@latest
//
// Create a scenario definition:
//
//	name: summarize
//	validModels: [gpt-4o]
//	stages:
//	  - id: 1
//	    name: extract
//	    userPrompts:
//	      - template: "List the key claims in: {{document}}"
//	  - id: 2
//	    name: summarize
//	    userPrompts:
//	      - template: "Summarize these claims: {{1-1:output}}"
//
// Point a configuration file at the scenario directory and run:
//
//	stageflow run summarize
//
// # Using as a Go Library
//
// Import the packages you need:
//
//	import (
//	    "github.com/stageflow-ai/stageflow/pkg/orchestrator"
//	    "github.com/stageflow-ai/stageflow/pkg/scenario"
//	    "github.com/stageflow-ai/stageflow/pkg/contextstore"
//	)
//
// The orchestrator composes the execution pipeline (placeholder population,
// validation, provider invocation, persistence) over any scenario registry,
// completer, and context store.
package stageflow
