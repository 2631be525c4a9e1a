package salesforce

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAccountByWebsite(t *testing.T) {
	var gotSOQL string
	mc := &mockClient{
		queryFn: func(_ context.Context, soql string, out any) error {
			gotSOQL = soql
			*(out.(*[]Account)) = []Account{{ID: "001A", Name: "Acme", Website: "https://acme.com"}}
			return nil
		},
	}

	acct, err := FindAccountByWebsite(context.Background(), mc, "acme.com")
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, "001A", acct.ID)
	assert.Contains(t, gotSOQL, "Website LIKE '%acme.com%'")
}

func TestFindAccountByWebsite_None(t *testing.T) {
	acct, err := FindAccountByWebsite(context.Background(), &mockClient{}, "nobody.io")
	require.NoError(t, err)
	assert.Nil(t, acct)
}

func TestFindAccountByWebsite_Error(t *testing.T) {
	mc := &mockClient{
		queryFn: func(context.Context, string, any) error { return assert.AnError },
	}
	_, err := FindAccountByWebsite(context.Background(), mc, "acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: find account by website acme.com")
}

func TestUpsertAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("existing", func(t *testing.T) {
		mc := &mockClient{
			queryFn: func(_ context.Context, _ string, out any) error {
				*(out.(*[]Account)) = []Account{{ID: "001A"}}
				return nil
			},
			insertOneFn: func(context.Context, string, map[string]any) (string, error) {
				t.Fatal("insert must not be called")
				return "", nil
			},
		}
		id, created, err := UpsertAccount(ctx, mc, "Acme", "acme.com")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "001A", id)
	})

	t.Run("new", func(t *testing.T) {
		var got map[string]any
		mc := &mockClient{
			insertOneFn: func(_ context.Context, obj string, rec map[string]any) (string, error) {
				assert.Equal(t, "Account", obj)
				got = rec
				return "001NEW", nil
			},
		}
		id, created, err := UpsertAccount(ctx, mc, "Acme", "acme.com")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "001NEW", id)
		assert.Equal(t, map[string]any{"Name": "Acme", "Website": "acme.com"}, got)
	})

	t.Run("name required", func(t *testing.T) {
		_, _, err := UpsertAccount(ctx, &mockClient{}, " ", "acme.com")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Name is required")
	})

	t.Run("insert error", func(t *testing.T) {
		mc := &mockClient{
			insertOneFn: func(context.Context, string, map[string]any) (string, error) { return "", assert.AnError },
		}
		_, _, err := UpsertAccount(ctx, mc, "Acme", "acme.com")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sf: create account")
	})
}

func TestUpsertContact(t *testing.T) {
	ctx := context.Background()

	t.Run("new", func(t *testing.T) {
		var gotSOQL string
		var got map[string]any
		mc := &mockClient{
			queryFn: func(_ context.Context, soql string, _ any) error {
				gotSOQL = soql
				return nil
			},
			insertOneFn: func(_ context.Context, obj string, rec map[string]any) (string, error) {
				assert.Equal(t, "Contact", obj)
				got = rec
				return "003NEW", nil
			},
		}
		fields := map[string]any{"Title": "CTO"}
		id, created, err := UpsertContact(ctx, mc, "001A", "Mary Ann O'Neil", fields)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "003NEW", id)
		assert.Contains(t, gotSOQL, `LastName = 'O\'Neil'`)
		assert.Equal(t, map[string]any{
			"Title":     "CTO",
			"AccountId": "001A",
			"FirstName": "Mary Ann",
			"LastName":  "O'Neil",
		}, got)
		assert.Equal(t, map[string]any{"Title": "CTO"}, fields)
	})

	t.Run("existing", func(t *testing.T) {
		var updatedID string
		mc := &mockClient{
			queryFn: func(_ context.Context, _ string, out any) error {
				*(out.(*[]Contact)) = []Contact{{ID: "003A"}}
				return nil
			},
			updateOneFn: func(_ context.Context, obj, id string, fields map[string]any) error {
				assert.Equal(t, "Contact", obj)
				updatedID = id
				return nil
			},
		}
		id, created, err := UpsertContact(ctx, mc, "001A", "Jane Doe", map[string]any{"Title": "CEO"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "003A", id)
		assert.Equal(t, "003A", updatedID)
	})

	t.Run("requires account", func(t *testing.T) {
		_, _, err := UpsertContact(ctx, &mockClient{}, "", "Jane Doe", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "account id is required")
	})

	t.Run("requires name", func(t *testing.T) {
		_, _, err := UpsertContact(ctx, &mockClient{}, "001A", "  ", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LastName is required")
	})
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"", "", ""},
		{"Cher", "", "Cher"},
		{"Jane Doe", "Jane", "Doe"},
		{"  Mary  Ann   Smith ", "Mary Ann", "Smith"},
	}
	for _, tt := range tests {
		first, last := SplitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}

func TestEscapeSoql(t *testing.T) {
	assert.Equal(t, `O\'Neil`, escapeSoql("O'Neil"))
	assert.Equal(t, `a\\b`, escapeSoql(`a\b`))
}
