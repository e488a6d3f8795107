// Package policy decides whether an audit passes.
//
// A policy is a CUE file:
//
//	policy: {
//		max_memory:  1Mi // peak budget in bytes
//		allow_leaks: false
//		ignore: ["non_zeroed_alloc"]
//	}
//
// Every field is optional. A file with no policy block, and the zero
// Policy, are strict: any violation or leak fails the audit.
package policy

import (
	"fmt"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/allocaudit/internal/ledger"
)

// schema closes the policy struct so misspelled fields are reported.
const schema = `
#Policy: {
	max_memory?: int & >=0
	allow_leaks: bool | *false
	ignore:      [...string] | *[]
}
policy: #Policy
`

// Policy is a compiled audit policy.
type Policy struct {
	// MaxMemory is the peak budget in bytes; nil means unlimited.
	MaxMemory  *uint64       `json:"max_memory,omitempty"`
	AllowLeaks bool          `json:"allow_leaks"`
	Ignore     []ledger.Kind `json:"ignore,omitempty"`
}

// Default returns the strict policy.
func Default() Policy {
	return Policy{}
}

// PolicyError reports an invalid policy file.
type PolicyError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *PolicyError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads and compiles a policy file.
func Load(path string) (Policy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	return Parse(path, src)
}

// Parse compiles policy source. filename is used in error positions.
func Parse(filename string, src []byte) (Policy, error) {
	ctx := cuecontext.New()

	base := ctx.CompileString(schema, cue.Filename("policy-schema.cue"))
	if err := base.Err(); err != nil {
		return Policy{}, fmt.Errorf("compile policy schema: %w", err)
	}

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return Policy{}, formatCUEError(err)
	}

	v := base.Unify(user)
	if err := v.Validate(); err != nil {
		return Policy{}, formatCUEError(err)
	}

	return compile(v.LookupPath(cue.ParsePath("policy")))
}

func compile(v cue.Value) (Policy, error) {
	var p Policy

	// An unset optional field still carries its constraint, which is not concrete.
	if mm := v.LookupPath(cue.ParsePath("max_memory")); mm.Exists() && mm.IsConcrete() {
		n, err := mm.Uint64()
		if err != nil {
			return Policy{}, fieldError("max_memory", mm, err)
		}
		p.MaxMemory = &n
	}

	leaks, _ := v.LookupPath(cue.ParsePath("allow_leaks")).Default()
	allow, err := leaks.Bool()
	if err != nil {
		return Policy{}, fieldError("allow_leaks", leaks, err)
	}
	p.AllowLeaks = allow

	ignore, _ := v.LookupPath(cue.ParsePath("ignore")).Default()
	iter, err := ignore.List()
	if err != nil {
		return Policy{}, fieldError("ignore", ignore, err)
	}
	for iter.Next() {
		elem := iter.Value()
		s, err := elem.String()
		if err != nil {
			return Policy{}, fieldError("ignore", elem, err)
		}
		kind, err := ledger.ParseKind(s)
		if err != nil {
			return Policy{}, &PolicyError{Field: "ignore", Message: err.Error(), Pos: elem.Pos()}
		}
		if !slices.Contains(p.Ignore, kind) {
			p.Ignore = append(p.Ignore, kind)
		}
	}

	return p, nil
}

func fieldError(field string, v cue.Value, err error) error {
	return &PolicyError{Field: field, Message: err.Error(), Pos: v.Pos()}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &PolicyError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}

// Ignores reports whether violations of kind k are dropped.
func (p Policy) Ignores(k ledger.Kind) bool {
	if k == ledger.KindLeaked && p.AllowLeaks {
		return true
	}
	return slices.Contains(p.Ignore, k)
}
