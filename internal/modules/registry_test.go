package modules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	t.Run("orders modules after their dependencies", func(t *testing.T) {
		r, err := NewRegistry(
			Descriptor{Slug: "gallery", Kind: KindOptional, Dependencies: []string{"forum", "content"}},
			Descriptor{Slug: "forum", Kind: KindOptional, Dependencies: []string{"content"}},
			Descriptor{Slug: "content", Kind: KindCore},
			Descriptor{Slug: "commerce", Kind: KindOptional},
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"commerce", "content", "forum", "gallery"}, r.Order())
		assert.Equal(t, []string{"forum", "gallery"}, r.Dependents("content"))
		assert.Equal(t, 4, r.Len())
		assert.True(t, r.Has("forum"))
		assert.False(t, r.Has("blog"))
	})

	tests := []struct {
		name    string
		descs   []Descriptor
		wantErr string
	}{
		{
			name:    "empty slug",
			descs:   []Descriptor{{Kind: KindCore}},
			wantErr: "slug is required",
		},
		{
			name:    "invalid kind",
			descs:   []Descriptor{{Slug: "content", Kind: "plugin"}},
			wantErr: "invalid kind",
		},
		{
			name:    "malformed slug",
			descs:   []Descriptor{{Slug: "Content", Kind: KindCore}},
			wantErr: "slug",
		},
		{
			name: "duplicate slug",
			descs: []Descriptor{
				{Slug: "content", Kind: KindCore},
				{Slug: "content", Kind: KindOptional},
			},
			wantErr: "registered twice",
		},
		{
			name:    "self dependency",
			descs:   []Descriptor{{Slug: "forum", Kind: KindOptional, Dependencies: []string{"forum"}}},
			wantErr: "depends on itself",
		},
		{
			name:    "unknown dependency",
			descs:   []Descriptor{{Slug: "forum", Kind: KindOptional, Dependencies: []string{"content"}}},
			wantErr: `unknown module "content"`,
		},
		{
			name: "core depends on optional",
			descs: []Descriptor{
				{Slug: "content", Kind: KindCore, Dependencies: []string{"media"}},
				{Slug: "media", Kind: KindOptional},
			},
			wantErr: "cannot depend on optional",
		},
		{
			name: "default enabled depends on default disabled",
			descs: []Descriptor{
				{Slug: "content", Kind: KindCore},
				{Slug: "forum", Kind: KindOptional, Dependencies: []string{"content"}},
				{Slug: "gallery", Kind: KindOptional, Dependencies: []string{"forum"}, DefaultEnabled: true},
			},
			wantErr: `module "gallery" is enabled by default but its dependency "forum" is not`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRegistry(tc.descs...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	t.Run("default enabled chain is accepted", func(t *testing.T) {
		_, err := NewRegistry(
			Descriptor{Slug: "content", Kind: KindCore},
			Descriptor{Slug: "forum", Kind: KindOptional, Dependencies: []string{"content"}, DefaultEnabled: true},
			Descriptor{Slug: "gallery", Kind: KindOptional, Dependencies: []string{"forum"}, DefaultEnabled: true},
		)
		require.NoError(t, err)
	})

	t.Run("cycle lists its members", func(t *testing.T) {
		_, err := NewRegistry(
			Descriptor{Slug: "content", Kind: KindCore},
			Descriptor{Slug: "a", Kind: KindOptional, Dependencies: []string{"b"}},
			Descriptor{Slug: "b", Kind: KindOptional, Dependencies: []string{"c"}},
			Descriptor{Slug: "c", Kind: KindOptional, Dependencies: []string{"a", "content"}},
			Descriptor{Slug: "d", Kind: KindOptional, Dependencies: []string{"a"}},
		)
		var cycle *CycleError
		require.ErrorAs(t, err, &cycle)
		// d is blocked by the cycle without being part of it, so it is listed
		// among the modules that could not be ordered.
		assert.Equal(t, []string{"a", "b", "c", "d"}, cycle.Members)
		assert.True(t, strings.HasPrefix(err.Error(), "module dependency cycle"))
	})

	t.Run("builtin set is valid", func(t *testing.T) {
		r, err := NewRegistry(Builtin()...)
		require.NoError(t, err)
		assert.Equal(t, "content", r.Order()[1])
	})
}

func TestDescriptorsAreCopied(t *testing.T) {
	deps := []string{"content"}
	r, err := NewRegistry(
		Descriptor{Slug: "content", Kind: KindCore},
		Descriptor{Slug: "forum", Kind: KindOptional, Dependencies: deps},
	)
	require.NoError(t, err)
	deps[0] = "mutated"

	d, ok := r.Get("forum")
	require.True(t, ok)
	assert.Equal(t, []string{"content"}, d.Dependencies)
}
