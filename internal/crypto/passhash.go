// Package crypto hashes registrar passwords and domain authorization codes.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	saltLen = 16
)

const authCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword returns Argon2id hash of password using the provided salt.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyPassword verifies password against expected Argon2id hash and salt.
func VerifyPassword(password, salt, expected []byte) bool {
	got := HashPassword(password, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}

// HashAuthCode salts and hashes a domain authorization code.
func HashAuthCode(code string) (salt, hash []byte, err error) {
	salt, err = RandBytes(saltLen)
	if err != nil {
		return nil, nil, err
	}
	return salt, HashPassword([]byte(code), salt), nil
}

// VerifyAuthCode reports whether code matches a stored salt and hash. An empty code never matches.
func VerifyAuthCode(code string, salt, hash []byte) bool {
	if code == "" || len(hash) == 0 {
		return false
	}
	return VerifyPassword([]byte(code), salt, hash)
}

// GenerateAuthCode returns a random code of n unambiguous letters and digits.
func GenerateAuthCode(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(authCodeAlphabet)))
	for i := range out {
		k, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = authCodeAlphabet[k.Int64()]
	}
	return string(out), nil
}
