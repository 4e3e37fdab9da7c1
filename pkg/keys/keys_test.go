package keys

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	valid := strings.Repeat("A", 43) + "="
	tests := []struct {
		name   string
		key    string
		wantOK bool
	}{
		{name: "valid", key: valid, wantOK: true},
		{name: "empty", key: ""},
		{name: "too short", key: strings.Repeat("A", 43)},
		{name: "too long", key: valid + "="},
		{name: "bad alphabet", key: strings.Repeat("*", 43) + "="},
		{name: "missing padding", key: strings.Repeat("A", 44)},
		{name: "padding in the middle", key: "=" + strings.Repeat("A", 42) + "="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.key)
			if tt.wantOK && err != nil {
				t.Errorf("Validate(%q) = %v, want nil", tt.key, err)
			}
			if !tt.wantOK && err == nil {
				t.Errorf("Validate(%q) = nil, want error", tt.key)
			}
		})
	}
}

func TestGenerateKeypair(t *testing.T) {
	priv, pub, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	if priv == pub {
		t.Error("private and public key are identical")
	}
	if err := Validate(priv); err != nil {
		t.Errorf("private key invalid: %v", err)
	}
	if err := Validate(pub); err != nil {
		t.Errorf("public key invalid: %v", err)
	}

	derived, err := DerivePublicKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	if derived != pub {
		t.Errorf("derived key %s does not match generated public key %s", derived, pub)
	}
}

func TestDerivePublicKeyDeterministic(t *testing.T) {
	priv := strings.Repeat("A", 43) + "="
	first, err := DerivePublicKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	second, err := DerivePublicKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("derivation is not deterministic: %s vs %s", first, second)
	}
	if _, err := DerivePublicKey("bogus"); err == nil {
		t.Error("malformed private key should be rejected")
	}
}
