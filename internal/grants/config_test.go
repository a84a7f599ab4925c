package grants

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/scopegrant/internal/models"
)

func TestParseIdentifierKind(t *testing.T) {
	cases := []struct {
		in   string
		want IdentifierKind
		err  bool
	}{
		{in: "", want: KindOpaque},
		{in: "opaque", want: KindOpaque},
		{in: "string", want: KindOpaque},
		{in: "uuid", want: KindUUID},
		{in: "UUID", want: KindUUID},
		{in: "integer", want: KindInteger},
		{in: "int", want: KindInteger},
		{in: "float", err: true},
	}

	for _, tc := range cases {
		kind, err := ParseIdentifierKind(tc.in)
		if tc.err {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, kind, tc.in)
	}
}

func TestIdentifierKindValidate(t *testing.T) {
	require.NoError(t, KindOpaque.Validate("anything-goes"))
	require.Error(t, KindOpaque.Validate("  "))

	require.NoError(t, KindUUID.Validate("1b4e28ba-2fa1-11d2-883f-0016d3cca427"))
	require.ErrorIs(t, KindUUID.Validate("42"), ErrInvalidReference)

	require.NoError(t, KindInteger.Validate("42"))
	require.Error(t, KindInteger.Validate("forty-two"))
}

func TestConfigTableNameApply(t *testing.T) {
	t.Cleanup(func() {
		models.SetGrantTableName("")
	})

	Config{TableName: "custom_grants"}.Apply()
	require.Equal(t, "custom_grants", models.GrantTableName())

	Config{}.Apply()
	require.Equal(t, "model_resource_grants", models.GrantTableName())
}
