package gateway

import (
	"testing"

	"societypay/errors"
)

func TestValidateKey(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid test key", "rzp_test_4kF92bQ7ml3", false},
		{"valid live key", "rzp_live_8aHq21xTz", false},
		{"empty", "", true},
		{"wrong prefix", "pk_test_abc123", true},
		{"placeholder", "rzp_test_xxxxxxxxxxxx", true},
		{"template key", "rzp_test_YOUR_KEY_HERE", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateKey(tc.key)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ValidateKey(%q) = nil, want error", tc.key)
				}
				if errors.KindOf(err) != errors.Configuration {
					t.Errorf("kind = %v, want Configuration", errors.KindOf(err))
				}
			} else if err != nil {
				t.Errorf("ValidateKey(%q) = %v, want nil", tc.key, err)
			}
		})
	}
}

func TestIsAuthFailure(t *testing.T) {
	cases := []struct {
		name string
		code string
		desc string
		want bool
	}{
		{"auth code", "AUTHENTICATION_ERROR", "", true},
		{"auth description", "BAD_REQUEST_ERROR", "Authentication failed due to invalid credentials", true},
		{"key_id mention", "BAD_REQUEST_ERROR", "key_id is not valid", true},
		{"card declined", "BAD_REQUEST_ERROR", "Payment declined by issuing bank", false},
		{"empty", "", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsAuthFailure(tc.code, tc.desc); got != tc.want {
				t.Errorf("IsAuthFailure(%q, %q) = %v, want %v", tc.code, tc.desc, got, tc.want)
			}
		})
	}
}

func TestPayerInfoValidate(t *testing.T) {
	valid := PayerInfo{Name: "Asha Verma", Email: "asha@example.com", Contact: "+919876543210"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid payer rejected: %v", err)
	}

	cases := []struct {
		name  string
		payer PayerInfo
	}{
		{"missing name", PayerInfo{Email: "a@b.com", Contact: "+919876543210"}},
		{"bad email", PayerInfo{Name: "A", Email: "not-an-email", Contact: "+919876543210"}},
		{"bad contact", PayerInfo{Name: "A", Email: "a@b.com", Contact: "98765"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payer.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if errors.KindOf(err) != errors.Invalid {
				t.Errorf("kind = %v, want Invalid", errors.KindOf(err))
			}
		})
	}
}
