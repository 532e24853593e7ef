package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost matches the teacher's PasswordManager default.
const DefaultBcryptCost = 12

// PasswordManager hashes and verifies the operator's login password. The
// control surface has exactly one operator, so unlike the teacher's
// per-user PasswordManager this carries no user-lookup concern, only the
// bcrypt cost.
type PasswordManager struct {
	cost int
}

// NewPasswordManager builds a PasswordManager at the given bcrypt cost,
// falling back to DefaultBcryptCost when cost is below bcrypt's minimum.
func NewPasswordManager(cost int) *PasswordManager {
	if cost < bcrypt.MinCost {
		cost = DefaultBcryptCost
	}
	return &PasswordManager{cost: cost}
}

// Hash produces a bcrypt hash of password, suitable for storing in
// config.AuthConfig.OperatorPasswordHash.
func (p *PasswordManager) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing operator password: %w", err)
	}
	return string(bytes), nil
}

// Verify reports whether password matches hash.
func (p *PasswordManager) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
