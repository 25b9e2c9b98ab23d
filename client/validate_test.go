package client

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidate(t *testing.T) {
	testCases := map[string]struct {
		req       Request
		expFields []string
	}{
		"valid": {
			req: Request{Method: "GET", Host: "www.example.com", Path: "/"},
		},
		"ip host": {
			req: Request{Method: "GET", Host: "127.0.0.1", Port: 8080, Path: "/healthz"},
		},
		"missing everything": {
			req:       Request{},
			expFields: []string{"Method", "Host", "Path"},
		},
		"bad host": {
			req:       Request{Method: "GET", Host: "bad host!", Path: "/"},
			expFields: []string{"Host"},
		},
		"relative path": {
			req:       Request{Method: "GET", Host: "example.com", Path: "index.html"},
			expFields: []string{"Path"},
		},
		"empty header line": {
			req:       Request{Method: "GET", Host: "example.com", Path: "/", Headers: []string{"Accept: */*", ""}},
			expFields: []string{"Headers[1]"},
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			err := Validate(tc.req)
			if len(tc.expFields) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var fe FieldErrors
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldErrors, got %T: %v", err, err)
			}

			var fields []string
			for _, f := range fe {
				fields = append(fields, f.Field)
			}
			if diff := cmp.Diff(tc.expFields, fields); diff != "" {
				t.Errorf("invalid fields mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidate_Messages(t *testing.T) {
	err := Validate(Request{Host: "bad host!", Path: "/"})

	var fe FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("expected FieldErrors, got %T", err)
	}

	exp := FieldErrors{
		{Field: "Method", Err: "This field is required"},
		{Field: "Host", Err: "Must be a hostname or IP address"},
	}
	if diff := cmp.Diff(exp, fe); diff != "" {
		t.Errorf("field errors mismatch (-want +got):\n%s", diff)
	}

	const msg = `[{"field":"Method","error":"This field is required"},{"field":"Host","error":"Must be a hostname or IP address"}]`
	if err.Error() != msg {
		t.Errorf("expected %s, got %s", msg, err.Error())
	}
}
