package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "y"} {
		t.Setenv("MMK_TEST_FLAG", v)
		assert.True(t, envBool("MMK_TEST_FLAG"), v)
	}
	for _, v := range []string{"", "0", "false", "no"} {
		t.Setenv("MMK_TEST_FLAG", v)
		assert.False(t, envBool("MMK_TEST_FLAG"), v)
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("MMK_TEST_VALUE", "")
	assert.Equal(t, "fallback", getEnvOrDefault("MMK_TEST_VALUE", "fallback"))
	t.Setenv("MMK_TEST_VALUE", "set")
	assert.Equal(t, "set", getEnvOrDefault("MMK_TEST_VALUE", "fallback"))
}

func TestStringPtr(t *testing.T) {
	p := StringPtr("x")
	if assert.NotNil(t, p) {
		assert.Equal(t, "x", *p)
	}
}
