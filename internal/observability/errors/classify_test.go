package errors

import (
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/target/mmk-auth/internal/errors"
)

type customErr struct{}

func (customErr) Error() string { return "custom" }

func TestClassify(t *testing.T) {
	assert.Empty(t, Classify(nil))
	assert.Equal(t, "provider", Classify(apperrors.Provider("invalid-email", "m", nil)))
	assert.Equal(t, "storage", Classify(fmt.Errorf("wrap: %w", apperrors.Storage("m", nil))))
	assert.Equal(t, "errors_customerr", Classify(fmt.Errorf("wrap: %w", customErr{})))
	assert.Equal(t, "errors_errorstring", Classify(goerrors.New("plain")))
}
