package forms

import (
	"errors"
	"testing"
)

type loginForm struct {
	Email    string `json:"email" jsonschema:"format=email"`
	Password string `json:"password" jsonschema:"minLength=8"`
	Note     string `json:"note,omitempty"`
}

type statusForm struct {
	Status string `json:"status" jsonschema:"enum=pending,enum=shipped,enum=delivered"`
}

type priceForm struct {
	Title string  `json:"title" jsonschema:"maxLength=10"`
	Price float64 `json:"price" jsonschema:"minimum=0"`
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	out := make(map[string]string, len(verr.Fields))
	for _, f := range verr.Fields {
		out[f.Field] = f.Reason
	}
	return out
}

func TestValidateOK(t *testing.T) {
	err := Validate(loginForm{Email: "ops@example.com", Password: "correcthorse"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRequired(t *testing.T) {
	err := Validate(loginForm{})
	if err == nil {
		t.Fatal("Validate accepted an empty form")
	}

	fields := fieldErrors(t, err)
	if _, ok := fields["email"]; !ok {
		t.Errorf("missing email error, got %v", fields)
	}
	if _, ok := fields["password"]; !ok {
		t.Errorf("missing password error, got %v", fields)
	}
	// Optional field (omitempty) must not be demanded.
	if _, ok := fields["note"]; ok {
		t.Errorf("optional field reported: %v", fields)
	}
}

func TestValidateEmailFormat(t *testing.T) {
	err := Validate(loginForm{Email: "not-an-address", Password: "correcthorse"})
	fields := fieldErrors(t, err)
	if len(fields) != 1 || fields["email"] == "" {
		t.Fatalf("fields = %v, want only an email error", fields)
	}
}

func TestValidateMinLength(t *testing.T) {
	err := Validate(loginForm{Email: "ops@example.com", Password: "short"})
	fields := fieldErrors(t, err)
	if fields["password"] == "" {
		t.Fatalf("fields = %v, want a password length error", fields)
	}
}

func TestValidateEnum(t *testing.T) {
	if err := Validate(statusForm{Status: "shipped"}); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	err := Validate(statusForm{Status: "teleported"})
	fields := fieldErrors(t, err)
	if fields["status"] == "" {
		t.Fatalf("fields = %v, want a status enum error", fields)
	}
}

func TestValidateBounds(t *testing.T) {
	if err := Validate(priceForm{Title: "Mug", Price: 12.5}); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	err := Validate(priceForm{Title: "An overly long title", Price: -1})
	fields := fieldErrors(t, err)
	if fields["title"] == "" {
		t.Errorf("fields = %v, want a title length error", fields)
	}
	if fields["price"] == "" {
		t.Errorf("fields = %v, want a price minimum error", fields)
	}
}

func TestValidatePointerPayload(t *testing.T) {
	if err := Validate(&loginForm{Email: "ops@example.com", Password: "correcthorse"}); err != nil {
		t.Fatalf("Validate on pointer: %v", err)
	}
}
