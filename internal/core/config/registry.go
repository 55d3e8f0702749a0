package config

import (
	"fmt"

	"github.com/notescan/notescan/internal/core/domain"
)

// Registry is the static chain endpoint lookup: slug or numeric id to
// endpoints, explorer base URL, and namespace. Pure data, built once from
// config; no behavior beyond lookup.
type Registry struct {
	bySlug map[string]ChainConfig
	byID   map[string]ChainConfig
}

// NewRegistry indexes the configured chains. Duplicate slugs or invalid
// namespaces are configuration errors.
func NewRegistry(chains []ChainConfig) (*Registry, error) {
	r := &Registry{
		bySlug: make(map[string]ChainConfig, len(chains)),
		byID:   make(map[string]ChainConfig, len(chains)),
	}
	for _, c := range chains {
		if c.Slug == "" || c.ID == "" {
			return nil, fmt.Errorf("%w: chain entry missing slug or id", domain.ErrConfiguration)
		}
		if _, err := domain.ParseNamespace(c.Namespace); err != nil {
			return nil, fmt.Errorf("%w: chain %s: %v", domain.ErrConfiguration, c.Slug, err)
		}
		if _, dup := r.bySlug[c.Slug]; dup {
			return nil, fmt.Errorf("%w: duplicate chain slug %q", domain.ErrConfiguration, c.Slug)
		}
		r.bySlug[c.Slug] = c
		r.byID[c.ID] = c
	}
	return r, nil
}

// Chain looks a chain up by slug.
func (r *Registry) Chain(slug string) (ChainConfig, error) {
	c, ok := r.bySlug[slug]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: unknown chain %q", domain.ErrConfiguration, slug)
	}
	return c, nil
}

// ChainByID looks a chain up by its numeric chain id.
func (r *Registry) ChainByID(id string) (ChainConfig, error) {
	c, ok := r.byID[id]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: unknown chain id %q", domain.ErrConfiguration, id)
	}
	return c, nil
}

// Namespace returns the parsed namespace for a slug.
func (r *Registry) Namespace(slug string) (domain.Namespace, error) {
	c, err := r.Chain(slug)
	if err != nil {
		return "", err
	}
	return domain.ParseNamespace(c.Namespace)
}

// Slugs lists the configured chain slugs.
func (r *Registry) Slugs() []string {
	slugs := make([]string, 0, len(r.bySlug))
	for s := range r.bySlug {
		slugs = append(slugs, s)
	}
	return slugs
}
