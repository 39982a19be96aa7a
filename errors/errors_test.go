package errors

import (
	stdlib "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/pkg/errors"
)

func TestCause(t *testing.T) {
	std := stdlib.New("this is a stdlib error")

	cases := map[string]struct {
		err  error
		root error
	}{
		"Errors are self-causing": {
			err:  ErrNotFound,
			root: ErrNotFound,
		},
		"Wrap reveals root cause": {
			err:  Wrap(ErrNotFound, "foo"),
			root: ErrNotFound,
		},
		"Cause works for stderr as root": {
			err:  Wrap(std, "Some helpful text"),
			root: std,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			if got := errors.Cause(tc.err); got != tc.root {
				t.Fatal("unexpected result")
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	cases := map[string]struct {
		a      *Error
		b      error
		wantIs bool
	}{
		"instance of the same error": {
			a:      ErrNotFound,
			b:      ErrNotFound,
			wantIs: true,
		},
		"two different coded errors": {
			a:      ErrNotFound,
			b:      ErrState,
			wantIs: false,
		},
		"successful comparison to a wrapped error": {
			a:      ErrNotFound,
			b:      Wrap(ErrNotFound, "gone"),
			wantIs: true,
		},
		"successful comparison to a double wrapped error": {
			a:      ErrNetwork,
			b:      Wrap(Wrapf(ErrNetwork, "dial %s", "tcp://x"), "reconnect"),
			wantIs: true,
		},
		"unsuccessful comparison to a wrapped error": {
			a:      ErrNotFound,
			b:      errors.Wrap(ErrTimeout, "too slow"),
			wantIs: false,
		},
		"not equal to stdlib error": {
			a:      ErrNotFound,
			b:      fmt.Errorf("stdlib error"),
			wantIs: false,
		},
		"field error keeps the root": {
			a:      ErrInput,
			b:      Field("Amount", ErrInput, "must be positive"),
			wantIs: true,
		},
		"nil is nil": {
			a:      nil,
			b:      nil,
			wantIs: true,
		},
		"nil is any error nil": {
			a:      nil,
			b:      (*customError)(nil),
			wantIs: true,
		},
		"nil is not not-nil": {
			a:      nil,
			b:      ErrNotFound,
			wantIs: false,
		},
		"not-nil is not nil": {
			a:      ErrNotFound,
			b:      nil,
			wantIs: false,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			if got := tc.a.Is(tc.b); got != tc.wantIs {
				t.Fatalf("unexpected result - got:%v want: %v", got, tc.wantIs)
			}
		})
	}
}

type customError struct {
}

func (customError) Error() string {
	return "custom error"
}

func TestWrapEmpty(t *testing.T) {
	if err := Wrap(nil, "wrapping <nil>"); err != nil {
		t.Fatal(err)
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("panic expected")
		}
	}()
	Register(ErrNotFound.Code(), "again")
}

func TestRecover(t *testing.T) {
	run := func() (err error) {
		defer Recover(&err)
		panic("boom")
	}
	if err := run(); !ErrPanic.Is(err) {
		t.Fatalf("want panic error, got %v", err)
	}
}

func TestFieldErrors(t *testing.T) {
	err := Append(
		Field("Sender", ErrEmpty, "required"),
		nil,
		Field("Amount", ErrAmount, "must be positive"),
	)

	if errs := FieldErrors(err, "Amount"); len(errs) != 1 || !ErrAmount.Is(errs[0]) {
		t.Fatalf("unexpected Amount errors: %v", errs)
	}
	if errs := FieldErrors(err, "Sender"); len(errs) != 1 || !ErrEmpty.Is(errs[0]) {
		t.Fatalf("unexpected Sender errors: %v", errs)
	}
	if errs := FieldErrors(err, "Recipient"); len(errs) != 0 {
		t.Fatalf("unexpected Recipient errors: %v", errs)
	}
	if Append(nil, nil) != nil {
		t.Fatal("append of nils must be nil")
	}
}

func TestHTTPInfo(t *testing.T) {
	cases := map[string]struct {
		err      error
		debug    bool
		wantCode int
		wantMsg  string
	}{
		"nil error": {
			err:      nil,
			wantCode: http.StatusOK,
			wantMsg:  "",
		},
		"not found": {
			err:      Wrap(ErrNotFound, "transaction"),
			wantCode: http.StatusNotFound,
			wantMsg:  "transaction: not found",
		},
		"state conflict": {
			err:      Wrap(ErrState, "no escrow"),
			wantCode: http.StatusConflict,
			wantMsg:  "no escrow: invalid state",
		},
		"internal errors are redacted": {
			err:      fmt.Errorf("secret database password"),
			wantCode: http.StatusInternalServerError,
			wantMsg:  "internal error",
		},
		"panics are redacted": {
			err:      Wrap(ErrPanic, "sensitive"),
			wantCode: http.StatusInternalServerError,
			wantMsg:  "internal error",
		},
		"timeouts": {
			err:      Wrap(ErrTimeout, "signing"),
			wantCode: http.StatusGatewayTimeout,
			wantMsg:  "signing: timeout",
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			code, msg := HTTPInfo(tc.err, tc.debug)
			if code != tc.wantCode {
				t.Errorf("want %d code, got %d", tc.wantCode, code)
			}
			if msg != tc.wantMsg {
				t.Errorf("want %q message, got %q", tc.wantMsg, msg)
			}
		})
	}
}
