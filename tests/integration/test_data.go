//go:build integration

package integration

import (
	"fmt"
	"time"
)

// TestPassword satisfies the password policy.
const TestPassword = "TestPassword123!"

// TestUser generates unique test credentials.
func TestUser(suffix string) (email, password string) {
	email = fmt.Sprintf("test-%d-%s@example.com", time.Now().UnixNano(), suffix)
	return email, TestPassword
}
