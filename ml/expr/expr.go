// Package expr builds computation graphs from arithmetic expressions written in Go syntax, so they
// can be evaluated and differentiated.
//
// A source is a sequence of statements separated by newlines or ";": assignments (`=`, `:=`, `+=`,
// `-=`, `*=`, `/=`) to new names, and expressions. The result is the value of the last statement.
// Expressions support `+ - * /`, unary `-`, parentheses, numeric literals, variables and the
// functions `relu`, `exp`, `log`, `tanh` and `pow(x, p)`, where the exponent p must be a constant.
//
// Example:
//
//	value, grads, err := expr.Gradients("z := 2*x + 2 + x; relu(z) + z*x", map[string]any{"x": -4})
package expr

import (
	"go/ast"
	"go/parser"
	"go/token"
	"maps"
	"strconv"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nanograd/graph"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// UnaryFunctions maps the single argument functions accepted in expressions to the graph operations.
var UnaryFunctions = map[string]func(x *graph.Node) *graph.Node{
	"relu": graph.Relu,
	"exp":  graph.Exp,
	"log":  graph.Log,
	"tanh": graph.Tanh,
}

// Evaluate builds the graph of the expression in src, and returns its root (the value of the last statement)
// and the nodes bound to every name: the given vars and the assigned names.
//
// Values in vars can be *Node, used as is, or any Go number, converted to a Parameter leaf with the
// variable name. Other values fail with a graph.UnsupportedOperandError.
//
// The graph is not differentiated, see Gradients.
func Evaluate(src string, vars map[string]any) (root *graph.Node, named map[string]*graph.Node, err error) {
	err = exceptions.TryCatch[error](func() {
		root, named = evaluate(src, vars)
	})
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "expr.Evaluate(%q)", src)
	}
	return
}

// Gradients evaluates src (see Evaluate) and backpropagates from its result.
// It returns the result value and the gradient of the result with respect to each named node.
//
// Gradients of *Node values given in vars are accumulated on top of their current gradients.
func Gradients(src string, vars map[string]any) (value float64, gradients map[string]float64, err error) {
	root, named, err := Evaluate(src, vars)
	if err != nil {
		return 0, nil, err
	}
	err = exceptions.TryCatch[error](func() { graph.Backpropagate(root) })
	if err != nil {
		return 0, nil, errors.WithMessagef(err, "expr.Gradients(%q)", src)
	}
	gradients = make(map[string]float64, len(named))
	for name, node := range named {
		gradients[name] = node.Gradient()
	}
	return root.Value(), gradients, nil
}

// sourcePrefix wraps the source as a function body, so it can be parsed as a list of statements.
const sourcePrefix = "package expr\nfunc _() {\n"

// sourceFirstLine is the line of the wrapped file where the source starts.
const sourceFirstLine = 3

type evaluator struct {
	fileSet *token.FileSet
	named   map[string]*graph.Node
}

func evaluate(src string, vars map[string]any) (*graph.Node, map[string]*graph.Node) {
	e := &evaluator{
		fileSet: token.NewFileSet(),
		named:   make(map[string]*graph.Node, len(vars)),
	}
	for name, value := range vars {
		if !token.IsIdentifier(name) {
			exceptions.Panicf("invalid variable name %q", name)
		}
		if node, isNode := value.(*graph.Node); isNode {
			e.named[name] = graph.Operand(node)
		} else {
			e.named[name] = graph.Parameter(name, graph.Operand(value).Value())
		}
	}

	file, err := parser.ParseFile(e.fileSet, "expr", sourcePrefix+src+"\n}\n", 0)
	if err != nil {
		panic(errors.Wrap(err, "failed to parse"))
	}
	// The source must stay within the wrapping function body.
	body := file.Decls[0].(*ast.FuncDecl).Body
	if len(file.Decls) != 1 || e.fileSet.Position(body.Rbrace).Offset != len(sourcePrefix)+len(src)+1 {
		exceptions.Panicf("unbalanced braces: only statements are accepted")
	}
	if len(body.List) == 0 {
		exceptions.Panicf("empty expression")
	}
	var root *graph.Node
	for _, stmt := range body.List {
		root = e.statement(stmt)
	}
	if klog.V(2).Enabled() {
		klog.Infof("expr %q: %d statements, %d nodes", src, len(body.List), len(graph.TopologicalOrder(root)))
	}
	return root, maps.Clone(e.named)
}

// position returns the position of node in the source, as "line:column".
func (e *evaluator) position(node ast.Node) string {
	pos := e.fileSet.Position(node.Pos())
	return strconv.Itoa(pos.Line-sourceFirstLine+1) + ":" + strconv.Itoa(pos.Column)
}

var assignOps = map[token.Token]func(a, b *graph.Node) *graph.Node{
	token.ADD_ASSIGN: graph.Add,
	token.SUB_ASSIGN: graph.Sub,
	token.MUL_ASSIGN: graph.Mul,
	token.QUO_ASSIGN: graph.Div,
}

func (e *evaluator) statement(stmt ast.Stmt) *graph.Node {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		return e.build(s.X)
	case *ast.AssignStmt:
		if len(s.Lhs) != 1 || len(s.Rhs) != 1 {
			exceptions.Panicf("%s: only single assignments are supported", e.position(s))
		}
		ident, ok := s.Lhs[0].(*ast.Ident)
		if !ok {
			exceptions.Panicf("%s: can only assign to a name", e.position(s))
		}
		value := e.build(s.Rhs[0])
		switch s.Tok {
		case token.ASSIGN, token.DEFINE:
		default:
			op, found := assignOps[s.Tok]
			if !found {
				exceptions.Panicf("%s: unsupported assignment %q", e.position(s), s.Tok)
			}
			value = op(e.lookup(ident), value)
		}
		e.named[ident.Name] = value
		return value
	default:
		exceptions.Panicf("%s: unsupported statement of type %T", e.position(stmt), stmt)
	}
	return nil
}

func (e *evaluator) lookup(ident *ast.Ident) *graph.Node {
	node, found := e.named[ident.Name]
	if !found {
		exceptions.Panicf("%s: unknown variable %q", e.position(ident), ident.Name)
	}
	return node
}

// build the graph for expression x.
func (e *evaluator) build(x ast.Expr) *graph.Node {
	switch x := x.(type) {
	case *ast.BasicLit:
		return graph.Const(e.literal(x))
	case *ast.Ident:
		return e.lookup(x)
	case *ast.ParenExpr:
		return e.build(x.X)
	case *ast.UnaryExpr:
		switch x.Op {
		case token.SUB:
			return graph.Neg(e.build(x.X))
		case token.ADD:
			return e.build(x.X)
		}
		exceptions.Panicf("%s: unsupported unary operator %q", e.position(x), x.Op)
	case *ast.BinaryExpr:
		a, b := e.build(x.X), e.build(x.Y)
		switch x.Op {
		case token.ADD:
			return graph.Add(a, b)
		case token.SUB:
			return graph.Sub(a, b)
		case token.MUL:
			return graph.Mul(a, b)
		case token.QUO:
			return graph.Div(a, b)
		}
		exceptions.Panicf("%s: unsupported binary operator %q", e.position(x), x.Op)
	case *ast.CallExpr:
		return e.call(x)
	}
	exceptions.Panicf("%s: unsupported expression of type %T", e.position(x), x)
	return nil
}

func (e *evaluator) call(x *ast.CallExpr) *graph.Node {
	ident, ok := x.Fun.(*ast.Ident)
	if !ok {
		exceptions.Panicf("%s: only calls to named functions are supported", e.position(x))
	}
	if ident.Name == "pow" {
		if len(x.Args) != 2 {
			exceptions.Panicf("%s: pow takes 2 arguments, got %d", e.position(x), len(x.Args))
		}
		base := e.build(x.Args[0])
		if exponent, isConst := e.constant(x.Args[1]); isConst {
			return graph.PowAny(base, exponent)
		}
		// Fails with UnsupportedOperandError: exponents must be numbers.
		return graph.PowAny(base, e.build(x.Args[1]))
	}
	fn, found := UnaryFunctions[ident.Name]
	if !found {
		exceptions.Panicf("%s: unknown function %q", e.position(x), ident.Name)
	}
	if len(x.Args) != 1 {
		exceptions.Panicf("%s: %s takes 1 argument, got %d", e.position(x), ident.Name, len(x.Args))
	}
	return fn(e.build(x.Args[0]))
}

// literal returns the value of a numeric literal.
func (e *evaluator) literal(lit *ast.BasicLit) float64 {
	switch lit.Kind {
	case token.INT:
		v, err := strconv.ParseInt(lit.Value, 0, 64)
		if err != nil {
			panic(errors.Wrapf(err, "%s: invalid integer %q", e.position(lit), lit.Value))
		}
		return float64(v)
	case token.FLOAT:
		v, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			panic(errors.Wrapf(err, "%s: invalid number %q", e.position(lit), lit.Value))
		}
		return v
	}
	exceptions.Panicf("%s: unsupported literal %s", e.position(lit), lit.Value)
	return 0
}

// constant returns the value of x if it only involves numeric literals.
func (e *evaluator) constant(x ast.Expr) (float64, bool) {
	switch x := x.(type) {
	case *ast.BasicLit:
		return e.literal(x), true
	case *ast.ParenExpr:
		return e.constant(x.X)
	case *ast.UnaryExpr:
		v, ok := e.constant(x.X)
		switch {
		case !ok:
			return 0, false
		case x.Op == token.SUB:
			return -v, true
		case x.Op == token.ADD:
			return v, true
		}
	case *ast.BinaryExpr:
		a, okA := e.constant(x.X)
		b, okB := e.constant(x.Y)
		if !okA || !okB {
			return 0, false
		}
		switch x.Op {
		case token.ADD:
			return a + b, true
		case token.SUB:
			return a - b, true
		case token.MUL:
			return a * b, true
		case token.QUO:
			return a / b, true
		}
	}
	return 0, false
}
