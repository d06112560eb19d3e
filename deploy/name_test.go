package deploy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRouterName(t *testing.T) {
	assert.NoError(t, ValidateRouterName(""))
	assert.NoError(t, ValidateRouterName("myrouter"))
	assert.NoError(t, ValidateRouterName(strings.Repeat("x", 255)))
}

func TestValidateRouterName_Reserved(t *testing.T) {
	err := ValidateRouterName("system")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'system' is reserved")
}

func TestValidateRouterName_ControlCharacters(t *testing.T) {
	for _, name := range []string{"new\nline", "car\rreturn"} {
		err := ValidateRouterName(name)
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), "contains invalid characters")
	}
}

func TestValidateRouterName_TooLong(t *testing.T) {
	err := ValidateRouterName(strings.Repeat("x", 256))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too long (max 255)")
}
