package finalizer

// The finalizer is the last step before printing. It rewrites the tree of
// each included module in place so that the tree can be printed as is. There
// are two variants:
//
//   - Flattening puts every module of a chunk into one shared top-level scope.
//     References print as the canonical names assigned by the renamer, import
//     and export statements disappear, and CommonJS interop turns into calls
//     to the runtime helpers.
//
//   - Isolating keeps every module in its own closure that is registered with
//     the app runtime under the module's stable id. References to imports
//     print as property accesses on the "require" result of their module.
//
// Modules are independent once linking is done, so each module is rewritten
// on its own goroutine. A module's rewrite only writes to its own tree and
// only reads the symbol table.

import (
	"context"
	"fmt"

	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/graph"
	"github.com/hoistjs/hoist/internal/helpers"
	"github.com/tdewolff/parse/v2/js"
	"golang.org/x/sync/errgroup"
)

type Args struct {
	Options *config.Options
	Table   *graph.ModuleTable
	Symbols *ast.SymbolMap
	Timer   *helpers.Timer
}

type finalizerContext struct {
	options *config.Options
	table   *graph.ModuleTable
	symbols *ast.SymbolMap
}

func newContext(args *Args) *finalizerContext {
	return &finalizerContext{
		options: args.Options,
		table:   args.Table,
		symbols: args.Symbols,
	}
}

// Runs "fn" for every module on its own goroutine and returns the first
// error. A panic in one module is turned into an error for that module.
func (c *finalizerContext) forEachModule(ctx context.Context, modules []uint32, fn func(sourceIndex uint32) error) error {
	group, ctx := errgroup.WithContext(ctx)
	for _, sourceIndex := range modules {
		sourceIndex := sourceIndex
		group.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("finalizing %q panicked: %v\n%s",
						c.table.Modules[sourceIndex].Source.PrettyPath, r, helpers.PrettyPrintedStack())
				}
			}()
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(sourceIndex)
		})
	}
	return group.Wait()
}

// The name that generated code uses for a runtime helper
func (c *finalizerContext) helperName(name string) string {
	if repr, ok := c.table.Normal(graph.RuntimeSourceIndex); ok {
		if export, ok := repr.NamedExports[name]; ok {
			return c.symbols.NameForSymbol(export.Ref)
		}
	}
	return name
}

// Returns how a reference to "ref" is printed in flattened output
func (c *finalizerContext) exprForRef(ref ast.Ref) string {
	root := c.symbols.Follow(ref)
	symbol := c.symbols.Get(root)
	if symbol.ImportIsMissing {
		return "void 0"
	}
	if alias := symbol.NamespaceAlias; alias != nil {
		return c.symbols.NameForSymbol(alias.NamespaceRef) + helpers.PropertyAccess(alias.Alias)
	}
	return c.symbols.NameForSymbol(root)
}

func (c *finalizerContext) isPropertyAccess(ref ast.Ref) bool {
	symbol := c.symbols.Get(c.symbols.Follow(ref))
	return symbol.NamespaceAlias != nil || symbol.ImportIsMissing
}

// A statement that prints "text" followed by a semicolon. The printer
// indents every line of it like any other statement.
func rawStmt(text string) js.IStmt {
	return &js.ExprStmt{Value: rawExpr(text)}
}

// An expression that prints "text" as is
func rawExpr(text string) *js.Var {
	return &js.Var{Data: []byte(text)}
}

func varDecl(name string, value js.IExpr) *js.VarDecl {
	return &js.VarDecl{
		TokenType: js.VarToken,
		List:      []js.BindingElement{{Binding: &js.Var{Data: []byte(name)}, Default: value}},
	}
}

func callExpr(callee string, args ...js.IExpr) *js.CallExpr {
	call := &js.CallExpr{X: rawExpr(callee)}
	for _, arg := range args {
		call.Args.List = append(call.Args.List, js.Arg{Value: arg})
	}
	return call
}

func rootVar(v *js.Var) *js.Var {
	for v.Link != nil {
		v = v.Link
	}
	return v
}

// Renaming a root variable renames every use of it, but some nodes print the
// name a use had in the source. A shorthand property "{ x }" must become
// "{ x: y }" when "x" was renamed to "y", and a call of a function that is
// now read off a namespace must not pass the namespace as "this".
type referenceFixer struct {
	// Root variables that now print as a property access
	propertyAccesses map[*js.Var]bool
}

func (f *referenceFixer) Enter(n js.INode) js.IVisitor {
	switch n := n.(type) {
	case *js.Property:
		if v, ok := n.Value.(*js.Var); ok && n.Name != nil && n.Name.IsIdent(v.Data) && n.Init == nil {
			if name := v.Name(); string(name) != string(v.Data) {
				n.Value = &js.Var{Data: name}
			}
		}

	case *js.CallExpr:
		if v, ok := n.X.(*js.Var); ok && f.propertyAccesses[rootVar(v)] {
			n.X = rawExpr("(0, " + string(v.Name()) + ")")
		}
	}
	return f
}

func (f *referenceFixer) Exit(js.INode) {}

func (f *referenceFixer) fix(stmts []js.IStmt) {
	for _, stmt := range stmts {
		js.Walk(f, stmt)
	}
}

// Function and class declarations need a name once "export default" is gone
func nameAnonymousDecl(decl js.IExpr, name string) js.IStmt {
	switch d := decl.(type) {
	case *js.FuncDecl:
		if d.Name == nil {
			d.Name = &js.Var{Data: []byte(name)}
		}
		return d
	case *js.ClassDecl:
		if d.Name == nil {
			d.Name = &js.Var{Data: []byte(name)}
		}
		return d
	}
	return nil
}

// "export default <expression>" declares a variable for the value
func exportDefaultStmt(decl js.IExpr, name string) js.IStmt {
	if stmt := nameAnonymousDecl(decl, name); stmt != nil {
		return stmt
	}
	return varDecl(name, decl)
}

func isHashbang(stmt js.IStmt) bool {
	comment, ok := stmt.(*js.Comment)
	return ok && len(comment.Value) >= 2 && comment.Value[0] == '#' && comment.Value[1] == '!'
}
