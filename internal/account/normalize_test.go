package account

import (
	"errors"
	"testing"

	"github.com/ojeomneo/identitycore/internal/model"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "a@x.com", want: "a@x.com"},
		{in: "  Alice@Example.COM ", want: "Alice@example.com"},
		{in: "user@BÜCHER.de", want: "user@bücher.de"},
		{in: "weird@local@X.com", want: "weird@local@x.com"},
		{in: "", wantErr: true},
		{in: "no-at-sign", wantErr: true},
		{in: "@x.com", wantErr: true},
		{in: "a@", wantErr: true},
		{in: "a@bad_domain!.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeEmail(tt.in)
			if tt.wantErr {
				if !errors.Is(err, model.ErrValidation) {
					t.Errorf("error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeEmail returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
