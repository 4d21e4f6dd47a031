// Package filter defines the replication Filter predicate and the errors
// raised when a named filter cannot be resolved.
package filter

import (
	"errors"

	"github.com/couchbase-lite-go/pushrepl/pkg/revision"
)

// ErrFilterNotFound is returned by a Compiler when the requested filter name
// is unknown. Per spec.md §3/§4.2 this is fatal before any inbox batch is
// produced.
var ErrFilterNotFound = errors.New("filter: not found")

// Params is the user-supplied parameter map passed alongside each filter
// invocation.
type Params map[string]interface{}

// Func is a user-supplied predicate over (Revision, params).
type Func func(rev revision.Revision, params Params) bool

// Compiler resolves a filter name against the local store. It is consumed
// from pkg/store.ChangeSource's CompileFilterNamed.
type Compiler interface {
	CompileFilterNamed(name string) (Func, error)
}

// CompilerFunc adapts a plain function to the Compiler interface.
type CompilerFunc func(name string) (Func, error)

// CompileFilterNamed implements Compiler.
func (f CompilerFunc) CompileFilterNamed(name string) (Func, error) { return f(name) }
