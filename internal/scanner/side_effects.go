package scanner

import (
	"github.com/hoistjs/hoist/internal/config"
	"github.com/tdewolff/parse/v2/js"
)

// Statements without side effects can be dropped when nothing references the
// symbols they declare. Anything that isn't recognized here is assumed to
// have side effects.
func (s *scanner) stmtHasSideEffects(stmt js.IStmt) bool {
	switch stmt := stmt.(type) {
	case *js.EmptyStmt, *js.DirectivePrologueStmt, *js.Comment, *js.ImportStmt, *js.FuncDecl:
		return false

	case *js.ClassDecl:
		return s.classHasSideEffects(stmt)

	case *js.VarDecl:
		for _, item := range stmt.List {
			if _, ok := item.Binding.(*js.Var); !ok {
				// Destructuring may call getters or iterators
				return true
			}
			if item.Default != nil && !s.exprIsPure(item.Default) {
				return true
			}
		}
		return false

	case *js.ExportStmt:
		switch decl := stmt.Decl.(type) {
		case nil:
			return false
		case *js.VarDecl:
			return s.stmtHasSideEffects(decl)
		case *js.FuncDecl:
			return false
		case *js.ClassDecl:
			return s.classHasSideEffects(decl)
		default:
			return !s.exprIsPure(decl)
		}

	case *js.ExprStmt:
		return !s.exprIsPure(stmt.Value)
	}
	return true
}

func (s *scanner) classHasSideEffects(class *js.ClassDecl) bool {
	if class.Extends != nil && !s.exprIsPure(class.Extends) {
		return true
	}
	for _, item := range class.List {
		if item.StaticBlock != nil {
			return true
		}
		if item.Method != nil {
			if item.Method.Name.IsComputed() && !s.exprIsPure(item.Method.Name.Computed) {
				return true
			}
			continue
		}
		if item.Field.Name.IsComputed() && !s.exprIsPure(item.Field.Name.Computed) {
			return true
		}
		if item.Field.Static && item.Field.Init != nil && !s.exprIsPure(item.Field.Init) {
			return true
		}
	}
	return false
}

func (s *scanner) exprIsPure(expr js.IExpr) bool {
	switch e := expr.(type) {
	case nil:
		return true

	case *js.LiteralExpr:
		return true

	case *js.Var:
		// Reading an undeclared global throws a ReferenceError unless it is
		// known to exist
		if s.isUnbound(e) {
			return config.ProcessedKnownGlobals().HasIdentifier(string(e.Name()))
		}
		return true

	case *js.FuncDecl, *js.ArrowFunc, *js.MethodDecl:
		return true

	case *js.ClassDecl:
		return !s.classHasSideEffects(e)

	case *js.GroupExpr:
		return s.exprIsPure(e.X)

	case *js.ArrayExpr:
		for _, item := range e.List {
			if item.Spread || !s.exprIsPure(item.Value) {
				return false
			}
		}
		return true

	case *js.ObjectExpr:
		for _, property := range e.List {
			if property.Spread {
				return false
			}
			if property.Name != nil && property.Name.IsComputed() && !s.exprIsPure(property.Name.Computed) {
				return false
			}
			if !s.exprIsPure(property.Value) || !s.exprIsPure(property.Init) {
				return false
			}
		}
		return true

	case *js.TemplateExpr:
		// Substitutions may call "toString()"
		return e.Tag == nil && len(e.List) == 0

	case *js.UnaryExpr:
		switch e.Op {
		case js.TypeofToken:
			// "typeof x" never throws, even for an undeclared "x"
			if _, ok := e.X.(*js.Var); ok {
				return true
			}
			return s.exprIsPure(e.X)
		case js.NotToken, js.VoidToken:
			return s.exprIsPure(e.X)
		case js.NegToken, js.PosToken, js.BitNotToken:
			_, ok := e.X.(*js.LiteralExpr)
			return ok
		}
		return false

	case *js.BinaryExpr:
		switch e.Op {
		case js.AndToken, js.OrToken, js.NullishToken, js.EqEqEqToken, js.NotEqEqToken, js.CommaToken:
			return s.exprIsPure(e.X) && s.exprIsPure(e.Y)
		}
		if isAssignOp(e.Op) {
			return false
		}

		// Other operators may call "valueOf()" on objects
		_, leftOK := e.X.(*js.LiteralExpr)
		_, rightOK := e.Y.(*js.LiteralExpr)
		return leftOK && rightOK

	case *js.CondExpr:
		return s.exprIsPure(e.Cond) && s.exprIsPure(e.X) && s.exprIsPure(e.Y)

	case *js.CommaExpr:
		for _, item := range e.List {
			if !s.exprIsPure(item) {
				return false
			}
		}
		return true

	case *js.DotExpr:
		if parts, ok := s.dotChain(e); ok {
			return config.ProcessedKnownGlobals().HasDotChain(parts)
		}
		return false
	}

	// Calls, "new", property access on unknown objects, and so on
	return false
}

// Returns the names of a chain like "Object.assign" when its root is an
// unbound identifier
func (s *scanner) dotChain(expr js.IExpr) ([]string, bool) {
	switch e := expr.(type) {
	case *js.Var:
		if s.isUnbound(e) {
			return []string{string(e.Name())}, true
		}
	case *js.DotExpr:
		if e.Optional {
			return nil, false
		}
		name := propertyName(e)
		if name == "" {
			return nil, false
		}
		if parts, ok := s.dotChain(e.X); ok {
			return append(parts, name), true
		}
	}
	return nil, false
}

func isAssignOp(op js.TokenType) bool {
	switch op {
	case js.EqToken, js.AddEqToken, js.SubEqToken, js.MulEqToken, js.DivEqToken, js.ModEqToken,
		js.ExpEqToken, js.LtLtEqToken, js.GtGtEqToken, js.GtGtGtEqToken, js.BitAndEqToken,
		js.BitOrEqToken, js.BitXorEqToken, js.AndEqToken, js.OrEqToken, js.NullishEqToken:
		return true
	}
	return false
}
