package ports_test

import (
	"testing"

	"github.com/target/mmk-auth/internal/mocks"
	mockauth "github.com/target/mmk-auth/internal/mocks/auth"
	"github.com/target/mmk-auth/internal/ports"
)

// This test only verifies that our mocks conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.AuthService = (*mockauth.MockAuthService)(nil)
	var _ ports.CredentialStore = (*mockauth.MemoryCredentialStore)(nil)
	var _ ports.IdentityProvider = (*mocks.MockIdentityProvider)(nil)
	var _ ports.CredentialStore = (*mocks.MockCredentialStore)(nil)
}
