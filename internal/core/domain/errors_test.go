package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrUnsupportedType", ErrUnsupportedType},
		{"ErrValidation", ErrValidation},
		{"ErrTransientStore", ErrTransientStore},
		{"ErrImageUpload", ErrImageUpload},
		{"ErrBackup", ErrBackup},
		{"ErrConfiguration", ErrConfiguration},
		{"ErrConnectorClosed", ErrConnectorClosed},
		{"ErrRateLimited", ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestErrNotFound(t *testing.T) {
	assert.Equal(t, "not found", ErrNotFound.Error())
	assert.False(t, errors.Is(ErrNotFound, ErrInvalidInput))
}

func TestErrors_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("put product_1: %w", ErrTransientStore)

	assert.True(t, errors.Is(wrapped, ErrTransientStore))
	assert.False(t, errors.Is(wrapped, ErrBackup))
	assert.Contains(t, wrapped.Error(), "object store unavailable")
}

func TestErrors_Distinct(t *testing.T) {
	all := []error{
		ErrNotFound, ErrInvalidInput, ErrUnsupportedType, ErrValidation,
		ErrTransientStore, ErrImageUpload, ErrBackup, ErrConfiguration,
		ErrConnectorClosed, ErrRateLimited,
	}
	for i, a := range all {
		for j, b := range all {
			if i != j {
				assert.False(t, errors.Is(a, b), "%v should not match %v", a, b)
			}
		}
	}
}
