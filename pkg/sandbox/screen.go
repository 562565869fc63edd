package sandbox

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
)

// screen inspects the parsed program for require calls and returns a
// rejection message for the first one that names a module outside the
// allow-list, takes a computed argument, or has the wrong arity. Nothing
// has executed at this point; rejected code never reaches the VM. The
// require registry enforces the same rule again at runtime, so anything
// that slips past static inspection still cannot load a module.
func (in *Interpreter) screen(prog *ast.Program) string {
	var msg string
	walkNodes(reflect.ValueOf(prog), func(call *ast.CallExpression) bool {
		if m := in.checkRequire(call); m != "" {
			msg = m
			return false
		}
		return true
	})
	return msg
}

func (in *Interpreter) checkRequire(call *ast.CallExpression) string {
	callee, ok := call.Callee.(*ast.Identifier)
	if !ok || callee.Name != "require" {
		return ""
	}
	if len(call.ArgumentList) != 1 {
		return "Security Error: require takes exactly one module name"
	}
	lit, ok := call.ArgumentList[0].(*ast.StringLiteral)
	if !ok {
		return "Security Error: require argument must be a string literal"
	}
	name := lit.Value.String()
	if !in.allowed[name] {
		return fmt.Sprintf("Security Error: Module '%s' not allowed. Permitted modules: %s",
			name, strings.Join(sortedNames(in.allowed), ", "))
	}
	return ""
}

var sourceFileType = reflect.TypeOf((*file.File)(nil))

// walkNodes traverses every value reachable from the program and hands
// each call expression to visit. The traversal is reflective rather than
// a typed switch so that every expression form the parser produces is
// covered. visit returning false stops the walk.
func walkNodes(v reflect.Value, visit func(*ast.CallExpression) bool) bool {
	if !v.IsValid() {
		return true
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return true
		}
		return walkNodes(v.Elem(), visit)

	case reflect.Ptr:
		if v.IsNil() {
			return true
		}
		if v.Type() == sourceFileType {
			return true
		}
		if v.CanInterface() {
			if call, ok := v.Interface().(*ast.CallExpression); ok {
				if !visit(call) {
					return false
				}
			}
		}
		return walkNodes(v.Elem(), visit)

	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if !walkNodes(v.Field(i), visit) {
				return false
			}
		}
		return true

	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if !walkNodes(v.Index(i), visit) {
				return false
			}
		}
		return true

	default:
		return true
	}
}
