package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name      string
		provided  string
		configKey string
		want      bool
	}{
		{"exact match", "secret-key", "secret-key", true},
		{"mismatch", "wrong-key1", "secret-key", false},
		{"different length", "short", "secret-key", false},
		{"empty provided", "", "secret-key", false},
		{"empty config rejects everything", "secret-key", "", false},
		{"both empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateAPIKey(tt.provided, tt.configKey))
		})
	}
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"bearer key", "Bearer my-key", "my-key", false},
		{"trailing space trimmed", "Bearer my-key  ", "my-key", false},
		{"missing header", "", "", true},
		{"basic scheme", "Basic dXNlcjpwYXNz", "", true},
		{"bearer with no key", "Bearer ", "", true},
		{"lowercase scheme", "bearer my-key", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/query", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			key, err := ExtractAPIKey(req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}
}
