package orgs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleResolver(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/rpc?org=acme", nil)
	oc, err := SingleResolver{}.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, DefaultOrg, oc.Org)
}

func TestHeaderResolver(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		header  string
		want    string
		wantErr bool
	}{
		{name: "query param", url: "/rpc?org=acme", want: "acme"},
		{name: "header", url: "/rpc", header: "acme", want: "acme"},
		{name: "query wins over header", url: "/rpc?org=acme", header: "other", want: "acme"},
		{name: "absent falls back to root", url: "/rpc", want: DefaultOrg},
		{name: "uppercase rejected", url: "/rpc?org=Acme", wantErr: true},
		{name: "leading hyphen rejected", url: "/rpc?org=-acme", wantErr: true},
		{name: "too long rejected", url: "/rpc?org=" + strings.Repeat("a", 64), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				r.Header.Set(OrgHeader, tt.header)
			}
			oc, err := HeaderResolver{}.Resolve(r)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, oc.Org)
		})
	}
}

func TestMiddleware(t *testing.T) {
	var got string
	handler := NewMiddleware(ModeHeader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = OrgFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rpc", nil)
	req.Header.Set(OrgHeader, "acme")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", got)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/rpc?org=Bad_Org", nil)
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid")
}

func TestOrgFromContext_Default(t *testing.T) {
	assert.Equal(t, DefaultOrg, OrgFromContext(context.Background()))

	ctx := WithOrg(context.Background(), OrgContext{Org: "acme", Principal: "bot-1"})
	assert.Equal(t, "acme", OrgFromContext(ctx))
	oc, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "bot-1", oc.Principal)
}
