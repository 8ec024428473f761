package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateLayerName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		layerName string
		wantErr   bool
	}{
		{
			name:      "valid scoped name",
			layerName: "@layerhub/auth",
			wantErr:   false,
		},
		{
			name:      "valid with hyphens and underscores",
			layerName: "@my-org/auth_firebase",
			wantErr:   false,
		},
		{
			name:      "missing scope",
			layerName: "auth",
			wantErr:   true,
		},
		{
			name:      "missing at sign",
			layerName: "layerhub/auth",
			wantErr:   true,
		},
		{
			name:      "empty name",
			layerName: "",
			wantErr:   true,
		},
		{
			name:      "extra path segment",
			layerName: "@layerhub/auth/extra",
			wantErr:   true,
		},
		{
			name:      "whitespace in name",
			layerName: "@layerhub/my layer",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateLayerName(tt.layerName)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeLayerName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		layerName string
		want      string
	}{
		{
			name:      "scoped name",
			layerName: "@layerhub/auth",
			want:      "layerhub-auth",
		},
		{
			name:      "hyphenated layer",
			layerName: "@acme/auth-firebase",
			want:      "acme-auth-firebase",
		},
		{
			name:      "already sanitized",
			layerName: "layerhub-auth",
			want:      "layerhub-auth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, SanitizeLayerName(tt.layerName))
		})
	}
}
