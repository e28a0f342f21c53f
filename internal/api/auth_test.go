package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAPIKey(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidateAPIKey("provided", "provided"))
	assert.False(t, ValidateAPIKey("provided", "other"))
	assert.False(t, ValidateAPIKey("", "configured"))
	assert.False(t, ValidateAPIKey("provided", ""))
}

func TestExtractAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "bearer", header: "Bearer test-key", want: "test-key"},
		{name: "padded", header: "Bearer   test-key  ", want: "test-key"},
		{name: "missing", wantErr: true},
		{name: "basic", header: "Basic abc", wantErr: true},
		{name: "blank", header: "Bearer   ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://example.test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractAPIKey(req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
