package errormapping

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/c360/flowtrace/errors"
	"github.com/c360/flowtrace/errortype"
)

// Variables visible to mapping expressions
const (
	VarNamespace  = "namespace"
	VarIdentifier = "identifier"
	VarErrorType  = "error_type"
	VarAncestors  = "ancestors"
)

var expressionEnv = mustExpressionEnv()

func mustExpressionEnv() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable(VarNamespace, cel.StringType),
		cel.Variable(VarIdentifier, cel.StringType),
		cel.Variable(VarErrorType, cel.StringType),
		cel.Variable(VarAncestors, cel.ListType(cel.StringType)),
	)
	if err != nil {
		panic(fmt.Sprintf("errormapping: create cel env: %v", err))
	}
	return env
}

type expressionMatcher struct {
	source  string
	program cel.Program
}

// Expression compiles a CEL predicate over an error type, for example
//
//	namespace == "HTTP" && identifier.startsWith("TIME")
//	"CORE:CONNECTIVITY" in ancestors
//
// The expression must evaluate to a bool. Evaluation errors count as no match.
func Expression(source string) (Matcher, error) {
	ast, iss := expressionEnv.Compile(source)
	if iss != nil && iss.Err() != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidExpression, iss.Err()),
			"errormapping", "Expression", "compile")
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q yields %s, want bool", errors.ErrInvalidExpression, source, ast.OutputType()),
			"errormapping", "Expression", "type check")
	}
	program, err := expressionEnv.Program(ast)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidExpression, err),
			"errormapping", "Expression", "program")
	}
	return &expressionMatcher{source: source, program: program}, nil
}

func (m *expressionMatcher) Match(t errortype.ErrorType) bool {
	ancestors := t.Ancestors()
	names := make([]string, len(ancestors))
	for i, a := range ancestors {
		names[i] = a.String()
	}

	out, _, err := m.program.Eval(map[string]any{
		VarNamespace:  t.Namespace(),
		VarIdentifier: t.Identifier(),
		VarErrorType:  t.String(),
		VarAncestors:  names,
	})
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

func (m *expressionMatcher) String() string { return "expr(" + m.source + ")" }
