package bus

import (
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"

	"rustok/internal/event"
)

// Filter is a compiled CEL predicate over an envelope. Expressions see
// three variables: event_type, tenant_id and the decoded payload map,
// e.g. `event_type == "node.created" && payload.kind == "article"`.
type Filter struct {
	expression string
	program    cel.Program
}

func CompileFilter(expression string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("event_type", cel.StringType),
		cel.Variable("tenant_id", cel.StringType),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build filter environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid filter expression %q: %w", expression, issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter expression %q must evaluate to bool, got %s", expression, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter expression %q: %w", expression, err)
	}

	return &Filter{expression: expression, program: program}, nil
}

func (f *Filter) Match(env event.Envelope) (bool, error) {
	var payload map[string]interface{}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return false, fmt.Errorf("failed to decode payload for filter: %w", err)
		}
	}

	out, _, err := f.program.Eval(map[string]interface{}{
		"event_type": env.EventType,
		"tenant_id":  env.TenantID.String(),
		"payload":    payload,
	})
	if err != nil {
		return false, fmt.Errorf("filter %q evaluation failed: %w", f.expression, err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned non-boolean result", f.expression)
	}

	return matched, nil
}
