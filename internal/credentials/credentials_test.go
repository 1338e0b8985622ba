package credentials

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentials_Valid(t *testing.T) {
	tests := []struct {
		label string
		c     Credentials
		want  bool
	}{
		{label: "complete", c: Credentials{AccessToken: "t", UserID: "u", CompanyID: "c"}, want: true},
		{label: "no token", c: Credentials{UserID: "u", CompanyID: "c"}},
		{label: "no user", c: Credentials{AccessToken: "t", CompanyID: "c"}},
		{label: "no company", c: Credentials{AccessToken: "t", UserID: "u"}},
		{label: "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Valid())
		})
	}
}

func TestFromQuery(t *testing.T) {
	q, err := url.ParseQuery("access_token=abc&useId=42&companyId=%20acme%20&other=x")
	require.NoError(t, err)

	c := FromQuery(q)
	assert.Equal(t, Credentials{AccessToken: "abc", UserID: "42", CompanyID: "acme"}, c)
	assert.True(t, c.Valid())

	assert.Equal(t, Credentials{}, FromQuery(url.Values{}))
}

func TestCredentials_Merge(t *testing.T) {
	base := Credentials{AccessToken: "old", UserID: "u", CompanyID: "c"}
	got := base.Merge(Credentials{AccessToken: "new"})
	assert.Equal(t, Credentials{AccessToken: "new", UserID: "u", CompanyID: "c"}, got)
	assert.Equal(t, "old", base.AccessToken, "receiver is a value")
}

func TestCredentials_Redacted(t *testing.T) {
	c := Credentials{AccessToken: "abcdefghijklmnop", UserID: "u"}
	r := c.Redacted()
	assert.Equal(t, "abcd********", r.AccessToken)
	assert.Equal(t, "u", r.UserID)
	assert.Equal(t, "", Credentials{}.Redacted().AccessToken)
	assert.Equal(t, "********", Credentials{AccessToken: "ab"}.Redacted().AccessToken)
}

func TestStatic(t *testing.T) {
	want := Credentials{AccessToken: "t", UserID: "u", CompanyID: "c"}
	var sup Supplier = Static(want)
	got, err := sup.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
