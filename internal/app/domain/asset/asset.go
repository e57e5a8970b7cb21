// Package asset identifies the currency a project escrows: the chain's
// native currency or a NEP-17 token contract.
package asset

import (
	"fmt"
	"strings"
)

// Type discriminates the two currency families.
type Type string

const (
	// Native is the chain's native currency.
	Native Type = "native"
	// Token is a NEP-17 token identified by contract hash.
	Token Type = "token"
)

// Kind is a tagged asset identifier. Hash is set only for Token kinds.
type Kind struct {
	Type Type   `json:"type"`
	Hash string `json:"hash,omitempty"`
}

// NativeKind returns the native-currency kind.
func NativeKind() Kind {
	return Kind{Type: Native}
}

// TokenKind returns the kind for the token at the given contract hash.
func TokenKind(hash string) Kind {
	return Kind{Type: Token, Hash: hash}
}

// IsNative reports whether the kind is the native currency.
func (k Kind) IsNative() bool {
	return k.Type == Native
}

// Validate checks structural consistency: tokens carry a hash, native
// kinds do not.
func (k Kind) Validate() error {
	switch k.Type {
	case Native:
		if k.Hash != "" {
			return fmt.Errorf("native asset must not carry a contract hash")
		}
		return nil
	case Token:
		if strings.TrimSpace(k.Hash) == "" {
			return fmt.Errorf("token asset requires a contract hash")
		}
		return nil
	default:
		return fmt.Errorf("unknown asset type %q", k.Type)
	}
}

// String renders the kind as a stable key: "native" or "token:<hash>".
func (k Kind) String() string {
	if k.Type == Token {
		return "token:" + k.Hash
	}
	return string(Native)
}

// ParseKind is the inverse of String. An empty input parses as native.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == string(Native):
		return NativeKind(), nil
	case strings.HasPrefix(s, "token:"):
		kind := TokenKind(strings.TrimPrefix(s, "token:"))
		if err := kind.Validate(); err != nil {
			return Kind{}, err
		}
		return kind, nil
	default:
		return Kind{}, fmt.Errorf("unknown asset %q", s)
	}
}
