package keys

import (
	"fmt"
	"regexp"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// EncodedLength is the fixed length of a base64-encoded Curve25519 key,
// trailing '=' padding included.
const EncodedLength = 44

var encodedKeyRe = regexp.MustCompile(`^[A-Za-z0-9+/]{43}=$`)

// Validate checks that s is a well-formed encoded key: exact length, base64
// alphabet, and decodable to 32 bytes. Keys coming back from the keypair
// utility are validated too before anything stores them.
func Validate(s string) error {
	if len(s) != EncodedLength {
		return fmt.Errorf("key must be %d characters, got %d", EncodedLength, len(s))
	}
	if !encodedKeyRe.MatchString(s) {
		return fmt.Errorf("key is not valid base64")
	}
	if _, err := wgtypes.ParseKey(s); err != nil {
		return fmt.Errorf("key does not decode: %w", err)
	}
	return nil
}

// GenerateKeypair returns a fresh (privateKey, publicKey) pair.
func GenerateKeypair() (string, string, error) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return "", "", fmt.Errorf("generate private key: %w", err)
	}
	pub := priv.PublicKey()
	if err := Validate(priv.String()); err != nil {
		return "", "", fmt.Errorf("generated private key invalid: %w", err)
	}
	if err := Validate(pub.String()); err != nil {
		return "", "", fmt.Errorf("derived public key invalid: %w", err)
	}
	return priv.String(), pub.String(), nil
}

// DerivePublicKey derives the public key for an encoded private key.
func DerivePublicKey(privateKey string) (string, error) {
	if err := Validate(privateKey); err != nil {
		return "", err
	}
	priv, err := wgtypes.ParseKey(privateKey)
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}
	pub := priv.PublicKey().String()
	if err := Validate(pub); err != nil {
		return "", fmt.Errorf("derived public key invalid: %w", err)
	}
	return pub, nil
}
