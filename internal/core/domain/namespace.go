package domain

import "fmt"

// Namespace identifies a chain family. The set is closed: providers are
// selected once by namespace at construction, never by runtime shape-sniffing.
type Namespace string

const (
	// NamespaceEIP155 covers account-based EVM chains (logs via JSON-RPC).
	NamespaceEIP155 Namespace = "eip155"
	// NamespaceStacks covers contract-principal chains served by a REST
	// transaction-events API.
	NamespaceStacks Namespace = "stacks"
	// NamespaceBIP122 is reserved for UTXO chains. No provider variant
	// exists for it yet; the factory rejects it explicitly.
	NamespaceBIP122 Namespace = "bip122"
)

// ParseNamespace validates a namespace string.
func ParseNamespace(s string) (Namespace, error) {
	switch Namespace(s) {
	case NamespaceEIP155, NamespaceStacks, NamespaceBIP122:
		return Namespace(s), nil
	}
	return "", fmt.Errorf("unrecognized namespace %q (supported: eip155, stacks, bip122)", s)
}
