package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Field returns an error instance that wraps the original error with
// additional information. It returns `nil` if provided error is `nil`.
// Use this function to create an error instance describing a field/attribute
// error.
//
// Use Go naming for the field name. For example, SenderAddress or Amount.
// When the error is for a nested field, use dot notation to construct the
// path, for example Ledger.Remote or Vendors.2.Name.
func Field(fieldName string, err error, description string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	if stackTrace(err) == nil {
		err = errors.WithStack(err)
	}

	if len(args) > 0 {
		description = fmt.Sprintf(description, args...)
	}

	return &fieldError{
		parent: err,
		field:  fieldName,
		desc:   description,
	}
}

type fieldError struct {
	parent error
	field  string
	desc   string
}

func (err *fieldError) Error() string {
	if err.desc == "" {
		return fmt.Sprintf("field %q: %s", err.field, err.parent)
	}
	return fmt.Sprintf("field %q: %s: %s", err.field, err.desc, err.parent)
}

// Cause implements the causer interface.
func (err *fieldError) Cause() error {
	return err.parent
}

// Field implements fielder interface.
func (err *fieldError) Field() string {
	return err.field
}

type fielder interface {
	// Field returns the field name that this error is created for.
	Field() string
}

// Append clubs together all provided errors. Nil values are ignored.
//
// If no error is provided, nil is returned. If only one non nil error is
// provided, it is returned unchanged.
func Append(errs ...error) error {
	var res multiErr
	for _, e := range errs {
		if e == nil {
			continue
		}
		if m, ok := e.(multiErr); ok {
			res = append(res, m...)
		} else {
			res = append(res, e)
		}
	}
	switch len(res) {
	case 0:
		return nil
	case 1:
		return res[0]
	default:
		return res
	}
}

// AppendField is a shortcut function to club together error(s) with a given
// field error.
func AppendField(errorsOrNil error, fieldName string, fieldErrOrNil error) error {
	return Append(errorsOrNil, Field(fieldName, fieldErrOrNil, ""))
}

type multiErr []error

func (m multiErr) Error() string {
	msgs := make([]string, len(m))
	for i, e := range m {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(m), strings.Join(msgs, "; "))
}

// Unpack returns all errors clubbed together.
func (m multiErr) Unpack() []error {
	return m
}

// Cause returns the first error, so that the most important failure defines
// the kind of the whole set.
func (m multiErr) Cause() error {
	return m[0]
}

type unpacker interface {
	Unpack() []error
}

// FieldErrors returns the list of all errors that are created for the given
// field name.
func FieldErrors(err error, fieldName string) []error {
	var res []error
	for err != nil {
		if f, ok := err.(fielder); ok && f.Field() == fieldName {
			return append(res, err)
		}

		if u, ok := err.(unpacker); ok {
			for _, e := range u.Unpack() {
				res = append(res, FieldErrors(e, fieldName)...)
			}
			return res
		}

		c, ok := err.(causer)
		if !ok {
			return res
		}
		err = c.Cause()
	}
	return res
}
