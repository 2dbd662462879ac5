// Package valid implements an accumulating-error applicative used throughout
// Blueprint compilation. Unlike a plain Go error return, a Validation collects
// every Cause encountered across independent sub-validations instead of
// failing on the first one, so an operator editing a Config sees every
// mistake in one pass instead of an edit-and-retry loop.
package valid

import "fmt"

// Cause is a single validation failure with an optional human description and
// a trace of the declaration path that led to it, e.g.
// []string{"schema", "@server", "responseHeaders", "0"}.
type Cause struct {
	Message     string
	Description string
	Trace       []string
}

func (c Cause) withPrefix(segment string) Cause {
	trace := make([]string, 0, len(c.Trace)+1)
	trace = append(trace, segment)
	trace = append(trace, c.Trace...)
	c.Trace = trace
	return c
}

// Validation[T] is either a success carrying a T or a failure carrying one or
// more Causes, in source-declaration order.
type Validation[T any] struct {
	value  T
	causes []Cause
}

// Succeed lifts a plain value into a successful Validation.
func Succeed[T any](a T) Validation[T] {
	return Validation[T]{value: a}
}

// Fail produces a failed Validation with a single Cause.
func Fail[T any](message string) Validation[T] {
	return Validation[T]{causes: []Cause{{Message: message}}}
}

// FailWith produces a failed Validation from an already-built Cause.
func FailWith[T any](cause Cause) Validation[T] {
	return Validation[T]{causes: []Cause{cause}}
}

// FromOption succeeds with the option's value if present, otherwise fails
// with message.
func FromOption[T any](opt *T, message string) Validation[T] {
	if opt == nil {
		return Fail[T](message)
	}
	return Succeed(*opt)
}

// IsSucceed reports whether v carries no causes.
func (v Validation[T]) IsSucceed() bool { return len(v.causes) == 0 }

// Causes returns the accumulated causes, if any.
func (v Validation[T]) Causes() []Cause { return v.causes }

// Value returns the success value. Only meaningful when IsSucceed is true;
// callers that need to zip/combine use Zip instead of reading Value directly
// on a failed Validation.
func (v Validation[T]) Value() T { return v.value }

// Map transforms the success value, passing failures through unchanged.
func Map[T, U any](v Validation[T], f func(T) U) Validation[U] {
	if !v.IsSucceed() {
		return Validation[U]{causes: v.causes}
	}
	return Succeed(f(v.value))
}

// AndThen chains a dependent validation. If v failed, its causes are
// returned immediately without calling f — use Zip/Fuse instead when the two
// validations are independent and both should be allowed to accumulate
// errors.
func AndThen[T, U any](v Validation[T], f func(T) Validation[U]) Validation[U] {
	if !v.IsSucceed() {
		return Validation[U]{causes: v.causes}
	}
	return f(v.value)
}

// Zip combines two independent validations. When both succeed, the result
// succeeds with a pair. When either or both fail, causes are concatenated in
// declaration order (v's causes first, then other's).
func Zip[A, B any](v Validation[A], other Validation[B]) Validation[Pair[A, B]] {
	switch {
	case v.IsSucceed() && other.IsSucceed():
		return Succeed(Pair[A, B]{First: v.value, Second: other.value})
	case !v.IsSucceed() && !other.IsSucceed():
		causes := make([]Cause, 0, len(v.causes)+len(other.causes))
		causes = append(causes, v.causes...)
		causes = append(causes, other.causes...)
		return Validation[Pair[A, B]]{causes: causes}
	case !v.IsSucceed():
		return Validation[Pair[A, B]]{causes: v.causes}
	default:
		return Validation[Pair[A, B]]{causes: other.causes}
	}
}

// Fuse is an alias of Zip, named for call sites that combine independent
// sub-validations (e.g. compiler stages) rather than literal pairs.
func Fuse[A, B any](v Validation[A], other Validation[B]) Validation[Pair[A, B]] {
	return Zip(v, other)
}

// Pair is the product type produced by Zip/Fuse.
type Pair[A, B any] struct {
	First  A
	Second B
}

// FromIter runs f over every item, collecting every failure produced rather
// than stopping at the first one. On success, returns the mapped slice.
func FromIter[T, U any](items []T, f func(T) Validation[U]) Validation[[]U] {
	out := make([]U, 0, len(items))
	var causes []Cause
	for _, item := range items {
		r := f(item)
		if r.IsSucceed() {
			if len(causes) == 0 {
				out = append(out, r.value)
			}
			continue
		}
		causes = append(causes, r.causes...)
	}
	if len(causes) > 0 {
		return Validation[[]U]{causes: causes}
	}
	return Succeed(out)
}

// Trace prepends segment to the trace of every cause carried by v. Intended
// to be threaded through compiler stages so a deeply nested failure reports
// a path like "schema.Query.user.@http.path" instead of a bare message.
func Trace[T any](v Validation[T], segment string) Validation[T] {
	if v.IsSucceed() {
		return v
	}
	causes := make([]Cause, len(v.causes))
	for i, c := range v.causes {
		causes[i] = c.withPrefix(segment)
	}
	return Validation[T]{causes: causes}
}

// ToResult converts the Validation into a (value, error) pair. The error, if
// any, is an Error wrapping every accumulated Cause.
func (v Validation[T]) ToResult() (T, error) {
	if v.IsSucceed() {
		return v.value, nil
	}
	return v.value, Error(v.causes)
}

// Error is the compile-time error type: a non-empty, ordered set of Causes.
type Error []Cause

func (e Error) Error() string {
	msg := fmt.Sprintf("%d validation error(s):\n", len(e))
	for _, c := range e {
		msg += "- " + c.traceString() + c.Message
		if c.Description != "" {
			msg += " (" + c.Description + ")"
		}
		msg += "\n"
	}
	return msg
}

func (c Cause) traceString() string {
	if len(c.Trace) == 0 {
		return ""
	}
	s := ""
	for i, seg := range c.Trace {
		if i > 0 {
			s += "."
		}
		s += seg
	}
	return s + ": "
}
