package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// keyset holds the keys of a Manager, parsed once at construction.
type keyset struct {
	method jwt.SigningMethod
	sign   any
	verify any
	kid    string
	byKID  map[string]any
}

func newKeyset(cfg Config) (*keyset, error) {
	ks := &keyset{kid: strings.TrimSpace(cfg.KeyID)}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Secret) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
		ks.method = jwt.SigningMethodHS256
		ks.sign, ks.verify = cfg.Secret, cfg.Secret
		if len(cfg.VerifyKeys) > 0 {
			ks.byKID = make(map[string]any, len(cfg.VerifyKeys))
			for kid, key := range cfg.VerifyKeys {
				ks.byKID[kid] = key
			}
		}

	case MethodEd25519:
		ks.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			ks.sign = priv
			ks.verify = priv.Public()
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			ks.verify = pub
		}
		if len(cfg.VerifyKeys) > 0 {
			ks.byKID = make(map[string]any, len(cfg.VerifyKeys))
			for kid, key := range cfg.VerifyKeys {
				pub, err := parseEdPublicKey(key)
				if err != nil {
					return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
				}
				ks.byKID[kid] = pub
			}
		}
		if ks.verify == nil && ks.byKID == nil {
			return nil, errors.New("ed25519 requires a public, private or verify key")
		}

	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	for kid := range ks.byKID {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
	}
	if ks.kid != "" && ks.byKID != nil {
		if _, ok := ks.byKID[ks.kid]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}
	return ks, nil
}

// lookup is the jwt.Keyfunc. With a verify key map the token must name one
// of its kids. Otherwise a configured KeyID must match the header.
func (ks *keyset) lookup(t *jwt.Token) (any, error) {
	if t.Method.Alg() != ks.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	kid, _ := t.Header["kid"].(string)

	if ks.byKID != nil {
		key, ok := ks.byKID[kid]
		if !ok {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return key, nil
	}
	if ks.kid != "" && kid != ks.kid {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return ks.verify, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return priv, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return pub, nil
}
