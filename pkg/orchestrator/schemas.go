package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
)

// Argument schemas, one per operation. Validation is fail-closed: a step
// whose arguments do not validate performs no side effect.
var argSchemas = map[contracts.StepOp]string{
	contracts.OpLookupOrder: `{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"order_number": {"type": "string", "minLength": 1},
			"email": {"type": "string", "minLength": 3, "pattern": "^[^@]+@[^@]+$"}
		},
		"anyOf": [
			{"required": ["order_number"]},
			{"required": ["email"]}
		]
	}`,
	contracts.OpCheckEligibility: `{
		"type": "object",
		"additionalProperties": false,
		"required": ["order_number", "item_ids", "return_reason"],
		"properties": {
			"order_number": {"type": "string", "minLength": 1},
			"item_ids": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
			"return_reason": {"type": "string"}
		}
	}`,
	contracts.OpCreateRMA: `{
		"type": "object",
		"additionalProperties": false,
		"required": ["order_number", "item_ids", "return_reason", "verdict_code"],
		"properties": {
			"order_number": {"type": "string", "minLength": 1},
			"item_ids": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
			"return_reason": {"type": "string"},
			"verdict_code": {"type": "string", "minLength": 1}
		}
	}`,
	contracts.OpIssueLabel: `{
		"type": "object",
		"additionalProperties": false,
		"required": ["rma_number"],
		"properties": {
			"rma_number": {"type": "string", "minLength": 1}
		}
	}`,
	contracts.OpNotifyCustomer: `{
		"type": "object",
		"additionalProperties": false,
		"required": ["recipient", "scenario"],
		"properties": {
			"recipient": {"type": "string", "minLength": 3},
			"scenario": {"type": "string", "minLength": 1},
			"context": {"type": "object"}
		}
	}`,
	contracts.OpEscalate: `{
		"type": "object",
		"additionalProperties": false,
		"required": ["reason"],
		"properties": {
			"reason": {"type": "string", "minLength": 1},
			"priority": {"enum": ["LOW", "MEDIUM", "HIGH", "URGENT"]}
		}
	}`,
}

// compileSchemas compiles every argument schema once at construction.
func compileSchemas() (map[contracts.StepOp]*jsonschema.Schema, error) {
	out := make(map[contracts.StepOp]*jsonschema.Schema, len(argSchemas))
	for op, raw := range argSchemas {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://returns.schemas.local/steps/%s.schema.json", op)
		if err := c.AddResource(url, strings.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("load schema for %s: %w", op, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", op, err)
		}
		out[op] = compiled
	}
	return out, nil
}

// validateArgs checks raw step arguments against the op's schema.
func (o *Orchestrator) validateArgs(op contracts.StepOp, raw json.RawMessage) *contracts.Failure {
	schema, ok := o.schemas[op]
	if !ok {
		return contracts.NewFailure(contracts.FailureData, contracts.CodeInvalidArgs,
			"unknown operation %q", op)
	}
	if len(raw) == 0 {
		return contracts.NewFailure(contracts.FailureData, contracts.CodeInvalidArgs,
			"missing arguments for %s", op)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return contracts.NewFailure(contracts.FailureData, contracts.CodeInvalidArgs,
			"arguments for %s are not valid JSON", op)
	}
	if err := schema.Validate(v); err != nil {
		return contracts.NewFailure(contracts.FailureData, contracts.CodeInvalidArgs,
			"arguments for %s failed validation", op)
	}
	return nil
}
