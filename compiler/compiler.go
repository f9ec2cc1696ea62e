// Package compiler compiles bundled contract sources into artifacts.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethtx/ethtx/bundle"
)

// Compiler compiles a single source blob. Compilation failures are reported
// as a *CompileError carrying the compiler messages.
type Compiler interface {
	Compile(ctx context.Context, source string) (Artifacts, error)
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(ctx context.Context, source string) (Artifacts, error)

func (f CompilerFunc) Compile(ctx context.Context, source string) (Artifacts, error) {
	return f(ctx, source)
}

// CompileError lists the messages of a failed compilation.
type CompileError struct {
	Errors []string
}

func (e *CompileError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "compilation failed"
	case 1:
		return "compilation failed: " + e.Errors[0]
	default:
		return fmt.Sprintf("compilation failed with %d errors:\n%s", len(e.Errors), strings.Join(e.Errors, "\n"))
	}
}

// CompileBundled compiles the bundle and maps the positions of compiler errors
// back to the bundled files.
func CompileBundled(ctx context.Context, c Compiler, b *bundle.Bundle) (Artifacts, error) {
	src := b.String()
	as, err := c.Compile(ctx, src)
	var cerr *CompileError
	if errors.As(err, &cerr) {
		return nil, &CompileError{Errors: bundle.Remap(src, cerr.Errors)}
	}
	if err != nil {
		return nil, err
	}
	return as, nil
}
