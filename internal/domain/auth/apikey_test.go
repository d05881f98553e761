package auth

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/apperr"
)

type mockKeys struct {
	byHash map[string]*APIKeyInfo
}

func (m *mockKeys) FindByHash(_ context.Context, hash string) (*APIKeyInfo, error) {
	info, ok := m.byHash[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return info, nil
}

func TestAuthenticator(t *testing.T) {
	pepper := []byte("pepper")
	keys := &mockKeys{byHash: map[string]*APIKeyInfo{}}
	for _, k := range []struct {
		raw    string
		scopes []string
	}{
		{raw: "admin-key", scopes: []string{ScopeAdmin}},
		{raw: "reader-key", scopes: []string{"read"}},
	} {
		h := HashKey(pepper, k.raw)
		keys.byHash[h] = &APIKeyInfo{ID: k.raw, KeyHash: h, Scopes: k.scopes}
	}
	a := NewAuthenticator(keys, pepper)
	ctx := context.Background()

	info, err := a.Authenticate(ctx, "admin-key", ScopeAdmin)
	require.NoError(t, err)
	assert.Equal(t, "admin-key", info.ID)

	_, err = a.Authenticate(ctx, "reader-key", ScopeAdmin)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = a.Authenticate(ctx, "unknown", ScopeAdmin)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = a.Authenticate(ctx, "", "")
	require.ErrorIs(t, err, ErrUnauthorized)

	// Same key under another pepper hashes differently.
	_, err = NewAuthenticator(keys, []byte("other")).Authenticate(ctx, "admin-key", ScopeAdmin)
	require.ErrorIs(t, err, ErrUnauthorized)
}
