/*
Package errors implements the error model used across clearpay.

The idea is to reuse as many errors from this package as possible and define
custom package errors only when absolutely necessary. Root errors are
registered once with a unique code using Register. Runtime errors are created
by wrapping one of the roots, for example

	errors.Wrapf(errors.ErrNotFound, "transaction %q", id)

and tested with the Is method of the root

	if errors.ErrNotFound.Is(err) { ... }

There is also support for stacktraces. Please ensure you create the custom
error using ErrXyz.New("...") or errors.Wrap(err, "...") at the point of
creation to ensure we attach a stacktrace. If you wrap multiple times, we only
record the first wrap with the stacktrace.

	%s is just the error message
	%+v is the full stack trace
*/
package errors
