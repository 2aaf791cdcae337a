package verification

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// DefaultFraudExpression is used when no expression is configured. Elevated
// risk and issuer declines are the two signals the processor exposes.
const DefaultFraudExpression = `risk_level == "elevated" || outcome_type == "issuer_declined"`

// CELFraudChecker evaluates a compiled CEL expression against the charge.
// The expression sees amount, currency, status, risk_level and outcome_type.
type CELFraudChecker struct {
	program cel.Program
}

func NewCELFraudChecker(expression string) (*CELFraudChecker, error) {
	if expression == "" {
		expression = DefaultFraudExpression
	}

	env, err := cel.NewEnv(
		cel.Variable("amount", cel.IntType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("outcome_type", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile fraud expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("fraud expression must return bool, got %v", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &CELFraudChecker{program: program}, nil
}

func (c *CELFraudChecker) IsSuspicious(ctx context.Context, charge Charge) (bool, error) {
	vars := map[string]interface{}{
		"amount":       charge.Amount,
		"currency":     charge.Currency,
		"status":       charge.Status,
		"risk_level":   charge.RiskLevel,
		"outcome_type": charge.OutcomeType,
	}

	result, _, err := c.program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate fraud expression: %w", err)
	}

	suspicious, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("fraud expression did not return bool, got %T", result.Value())
	}
	return suspicious, nil
}
