package scanner

import (
	"github.com/hoistjs/hoist/internal/graph"
	"github.com/tdewolff/parse/v2/js"
)

// CommonJS modules produced by transpilers mark themselves as converted ES
// modules with one of these forms:
//
//   module.exports.__esModule = true;
//   exports.__esModule = true;
//   Object.defineProperty(module.exports, "__esModule", { value: true });
//   Object.defineProperty(exports, "__esModule", { value: true });
//
// The checks below look at the nodes enclosing a reference to "module" or
// "exports". Every lookup is bounds-checked and a shape that doesn't match
// simply produces no answer.

type esModuleFlagCheck uint8

const (
	checkModuleExports esModuleFlagCheck = iota
	checkExports
)

// The result of one check. "ambiguous" is set when the marker is recognized
// but its value isn't a boolean literal. The flag is then treated as false.
type esModuleFlagResult struct {
	flag      graph.ESModuleFlag
	ambiguous bool
}

var noESModuleFlag = esModuleFlagResult{}

// Must be called while the visitor is positioned on the "module" or
// "exports" identifier, which is at the top of the path.
func (v *referenceVisitor) checkESModuleFlag(check esModuleFlagCheck) esModuleFlagResult {
	id := v.ancestor(0)
	if id == nil {
		return noESModuleFlag
	}

	switch check {
	case checkModuleExports:
		dot, ok := v.ancestor(1).(*js.DotExpr)
		if !ok || dot.X != id || propertyName(dot) != "exports" {
			return noESModuleFlag
		}
		switch parent := v.ancestor(2).(type) {
		case *js.DotExpr:
			if parent.X != dot || propertyName(parent) != "__esModule" {
				return noESModuleFlag
			}
			return v.assignedFlag(3, parent)

		case *js.Arg:
			if parent.Value != dot {
				return noESModuleFlag
			}
			return v.definedFlag(3, parent)
		}

	case checkExports:
		switch parent := v.ancestor(1).(type) {
		case *js.DotExpr:
			if parent.X != id || propertyName(parent) != "__esModule" {
				return noESModuleFlag
			}
			return v.assignedFlag(2, parent)

		case *js.Arg:
			if parent.Value != id {
				return noESModuleFlag
			}
			return v.definedFlag(2, parent)
		}
	}

	return noESModuleFlag
}

// Matches "<target> = true" where the assignment is the ancestor at "depth"
func (v *referenceVisitor) assignedFlag(depth int, target *js.DotExpr) esModuleFlagResult {
	assign, ok := v.ancestor(depth).(*js.BinaryExpr)
	if !ok || assign.Op != js.EqToken || assign.X != target {
		return noESModuleFlag
	}
	if value, ok := booleanLiteral(assign.Y); ok {
		return flagFromBool(value)
	}
	return esModuleFlagResult{flag: graph.ESModuleFlagFalse, ambiguous: true}
}

// Matches 'Object.defineProperty(<arg>, "__esModule", { value: true })'
// where "arg" is the ancestor just below "depth"
func (v *referenceVisitor) definedFlag(depth int, arg *js.Arg) esModuleFlagResult {
	args, ok := v.ancestor(depth).(*js.Args)
	if !ok {
		return noESModuleFlag
	}
	call, ok := v.ancestor(depth + 1).(*js.CallExpr)
	if !ok || &call.Args != args || !v.isObjectDefineProperty(call.X) {
		return noESModuleFlag
	}

	// The identifier must be the object argument, not the descriptor
	list := call.Args.List
	if len(list) < 2 || arg != &list[0] {
		return noESModuleFlag
	}
	if name, ok := stringLiteral(list[1].Value); !ok || name != "__esModule" {
		return noESModuleFlag
	}

	ambiguous := esModuleFlagResult{flag: graph.ESModuleFlagFalse, ambiguous: true}
	if len(list) < 3 {
		return ambiguous
	}
	object, ok := list[2].Value.(*js.ObjectExpr)
	if !ok || len(object.List) != 1 {
		return ambiguous
	}
	property := object.List[0]
	if property.Spread || property.Name == nil || property.Name.IsComputed() ||
		string(property.Name.Literal.Data) != "value" {
		return ambiguous
	}
	if value, ok := booleanLiteral(property.Value); ok {
		return flagFromBool(value)
	}
	return ambiguous
}

func (v *referenceVisitor) isObjectDefineProperty(callee js.IExpr) bool {
	dot, ok := callee.(*js.DotExpr)
	if !ok || propertyName(dot) != "defineProperty" {
		return false
	}
	object, ok := dot.X.(*js.Var)
	return ok && string(object.Name()) == "Object" && v.s.isUnbound(object)
}

func flagFromBool(value bool) esModuleFlagResult {
	if value {
		return esModuleFlagResult{flag: graph.ESModuleFlagTrue}
	}
	return esModuleFlagResult{flag: graph.ESModuleFlagFalse}
}

func propertyName(dot *js.DotExpr) string {
	switch y := dot.Y.(type) {
	case js.LiteralExpr:
		return string(y.Data)
	case *js.LiteralExpr:
		return string(y.Data)
	}
	return ""
}

func booleanLiteral(expr js.IExpr) (value bool, ok bool) {
	if literal, ok := expr.(*js.LiteralExpr); ok {
		switch literal.TokenType {
		case js.TrueToken:
			return true, true
		case js.FalseToken:
			return false, true
		}
	}
	return false, false
}

func stringLiteral(expr js.IExpr) (string, bool) {
	if literal, ok := expr.(*js.LiteralExpr); ok && literal.TokenType == js.StringToken {
		return unquote(literal.Data), true
	}
	return "", false
}
