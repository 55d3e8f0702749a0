package domain

import (
	"fmt"
	"strings"
)

// URI kinds: what on-chain entity the URI points at.
const (
	URIKindAddress = "address"
	URIKindTx      = "tx"
)

// URI is the canonical join key between the transaction domain and the
// annotation domain: "namespace:chainID:kind:value", always lower-cased.
type URI struct {
	Namespace Namespace
	ChainID   string
	Kind      string
	Value     string
}

// String renders the canonical lower-cased form.
func (u URI) String() string {
	return strings.ToLower(fmt.Sprintf("%s:%s:%s:%s", u.Namespace, u.ChainID, u.Kind, u.Value))
}

// AddressURI builds an address URI for a chain entity.
func AddressURI(ns Namespace, chainID, address string) URI {
	return URI{Namespace: ns, ChainID: chainID, Kind: URIKindAddress, Value: strings.ToLower(address)}
}

// TxURI builds a transaction URI for a chain entity.
func TxURI(ns Namespace, chainID, txHash string) URI {
	return URI{Namespace: ns, ChainID: chainID, Kind: URIKindTx, Value: strings.ToLower(txHash)}
}

// ParseURI is the inverse of String. Parsing an unknown namespace or kind
// fails with a descriptive error; hex values compare case-insensitively
// because both sides are lower-cased.
func ParseURI(s string) (URI, error) {
	parts := strings.SplitN(strings.ToLower(s), ":", 4)
	if len(parts) != 4 {
		return URI{}, fmt.Errorf("malformed uri %q: want namespace:chainID:kind:value", s)
	}
	ns, err := ParseNamespace(parts[0])
	if err != nil {
		return URI{}, fmt.Errorf("parse uri %q: %w", s, err)
	}
	if parts[1] == "" {
		return URI{}, fmt.Errorf("parse uri %q: empty chain id", s)
	}
	switch parts[2] {
	case URIKindAddress, URIKindTx:
	default:
		return URI{}, fmt.Errorf("parse uri %q: unrecognized kind %q", s, parts[2])
	}
	if parts[3] == "" {
		return URI{}, fmt.Errorf("parse uri %q: empty value", s)
	}
	return URI{Namespace: ns, ChainID: parts[1], Kind: parts[2], Value: parts[3]}, nil
}
