package core

// These errors are user errors, not internal errors.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Comcast/voodoo/loop"

	"github.com/dop251/goja"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned by Invoke if the synchronous part of
	// the execution is interrupted because its context is done.
	Interrupted = errors.New(InterruptedMessage)

	// NoLibraryProvider occurs when a source requires libraries
	// but the Compiler doesn't have a way to get them.
	NoLibraryProvider = errors.New("no library provider")
)

// CompileError occurs when a source can't be turned into a Binding.
type CompileError struct {
	Source string
	Err    error
}

func (e *CompileError) Error() string {
	return "compile error: " + e.Err.Error()
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// UnresolvedIdentifier occurs when a fragment references an
// identifier that is neither a field of the record nor anything in
// the static environment.
type UnresolvedIdentifier struct {
	Name string

	// Err is the underlying script exception.
	Err error
}

func (e *UnresolvedIdentifier) Error() string {
	return `unresolved identifier "` + e.Name + `"`
}

func (e *UnresolvedIdentifier) Unwrap() error {
	return e.Err
}

// MutationRejected occurs when a field's attributes don't allow the
// requested mutation.  Op is "set" or "delete".
type MutationRejected struct {
	Field string
	Op    string
}

func (e *MutationRejected) Error() string {
	return `cannot ` + e.Op + ` field "` + e.Field + `"`
}

// ScriptError is an exception thrown by a deferred continuation.
// Its message is captured on the Engine's goroutine, so it's safe to
// use anywhere.
type ScriptError struct {
	Message string

	// Err is the underlying script exception.
	Err error
}

func (e *ScriptError) Error() string {
	return e.Message
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// unresolvedSuffix is how Goja phrases a failed identifier lookup.
const unresolvedSuffix = " is not defined"

// classify turns some script errors into more specific errors.
//
// Must be called on the loop's goroutine since it inspects the
// exception's value.
func classify(err error) error {
	switch vv := err.(type) {
	case nil:
		return nil
	case *goja.InterruptedError:
		return Interrupted
	case *goja.Exception:
		if u := unresolved(vv.Value(), err); u != nil {
			return u
		}
	}
	return err
}

// classifyContinuation is classify for errors from deferred
// continuations, which the caller sees long after they happened.
// Script exceptions that aren't otherwise classified become
// ScriptErrors.
func classifyContinuation(err error) error {
	switch vv := err.(type) {
	case *loop.Rejection:
		if u := unresolved(vv.Value, err); u != nil {
			return u
		}
		return err
	case *goja.Exception:
		if u := unresolved(vv.Value(), err); u != nil {
			return u
		}
		return &ScriptError{
			Message: message(vv),
			Err:     err,
		}
	}
	return classify(err)
}

// message renders the exception, whose value might not cooperate.
func message(e *goja.Exception) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("exception: %v", r)
		}
	}()
	return e.Error()
}

// unresolved returns an UnresolvedIdentifier if the thrown value is
// a ReferenceError for an undefined identifier.
func unresolved(v goja.Value, err error) *UnresolvedIdentifier {
	obj, is := v.(*goja.Object)
	if !is {
		return nil
	}
	name := obj.Get("name")
	if name == nil || name.String() != "ReferenceError" {
		return nil
	}
	msg := obj.Get("message")
	if msg == nil {
		return nil
	}
	s := msg.String()
	if !strings.HasSuffix(s, unresolvedSuffix) {
		return nil
	}
	return &UnresolvedIdentifier{
		Name: strings.TrimSuffix(s, unresolvedSuffix),
		Err:  err,
	}
}
