package provision

import (
	"crypto/rand"
	"crypto/sha1"
	"fmt"
	"math/big"
)

// PasswordSource produces candidate secrets for the provisioned account.
// It is an injected capability so tests and embedders can swap it; the
// provisioner holds no process-wide state.
type PasswordSource interface {
	Generate() (string, error)
}

const (
	passwordLength  = 16
	passwordCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// RandomPassword draws passwords from crypto/rand.
type RandomPassword struct{}

func (RandomPassword) Generate() (string, error) {
	buf := make([]byte, passwordLength)
	max := big.NewInt(int64(len(passwordCharset)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		buf[i] = passwordCharset[n.Int64()]
	}
	return string(buf), nil
}

// FixedPassword always returns the same secret; for tests.
type FixedPassword string

func (f FixedPassword) Generate() (string, error) {
	return string(f), nil
}

// nativePasswordHash computes the mysql_native_password authentication
// string: "*" followed by the uppercase hex SHA1 of the SHA1 of the
// password.
func nativePasswordHash(password string) string {
	first := sha1.Sum([]byte(password))
	second := sha1.Sum(first[:])
	return fmt.Sprintf("*%X", second)
}
