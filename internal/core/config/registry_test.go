package config

import (
	"errors"
	"testing"

	"github.com/notescan/notescan/internal/core/domain"
)

func testChains() []ChainConfig {
	return []ChainConfig{
		{
			Slug:        "ethereum",
			ID:          "1",
			Namespace:   "eip155",
			RPC:         []string{"https://rpc-a.example", "https://rpc-b.example"},
			WS:          []string{"wss://ws-a.example"},
			ExplorerAPI: "https://api.etherscan.io/v2/api",
		},
		{
			Slug:      "stacks",
			ID:        "stacks-mainnet",
			Namespace: "stacks",
			RPC:       []string{"https://api.hiro.example"},
		},
	}
}

func TestRegistryLookup(t *testing.T) {
	r, err := NewRegistry(testChains())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	c, err := r.Chain("ethereum")
	if err != nil {
		t.Fatalf("Chain(ethereum) failed: %v", err)
	}
	if c.ID != "1" {
		t.Errorf("wrong chain id: %q", c.ID)
	}

	byID, err := r.ChainByID("1")
	if err != nil {
		t.Fatalf("ChainByID(1) failed: %v", err)
	}
	if byID.Slug != "ethereum" {
		t.Errorf("wrong slug: %q", byID.Slug)
	}

	ns, err := r.Namespace("stacks")
	if err != nil {
		t.Fatalf("Namespace(stacks) failed: %v", err)
	}
	if ns != domain.NamespaceStacks {
		t.Errorf("wrong namespace: %q", ns)
	}
}

func TestRegistryUnknownChain(t *testing.T) {
	r, err := NewRegistry(testChains())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	_, err = r.Chain("dogecoin")
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("want ErrConfiguration, got %v", err)
	}
}

func TestRegistryRejectsBadNamespace(t *testing.T) {
	chains := testChains()
	chains[0].Namespace = "cosmos"
	if _, err := NewRegistry(chains); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("want ErrConfiguration for bad namespace, got %v", err)
	}
}

func TestRegistryRejectsDuplicateSlug(t *testing.T) {
	chains := append(testChains(), testChains()[0])
	if _, err := NewRegistry(chains); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("want ErrConfiguration for duplicate slug, got %v", err)
	}
}
