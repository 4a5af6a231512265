// Package secretbox encrypts bot credentials (password, TOTP seed,
// identity secret) at rest: spec.md §3 requires secrets be "stored
// encrypted at rest and decrypted only in-memory" by the owning bot
// worker.
//
// Adapted from infrastructure/crypto/envelope.go's AES-GCM envelope
// scheme, keyed by bot ID instead of account/secret ID.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

const envelopeVersionPrefix = "v1:"

func deriveKey(masterKey, subject []byte, info string) ([]byte, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(masterKey))
	}
	mac := hmac.New(sha256.New, masterKey)
	_, _ = mac.Write([]byte(info))
	_, _ = mac.Write([]byte{0})
	_, _ = mac.Write(subject)
	return mac.Sum(nil), nil
}

func aad(subject []byte, info string) []byte {
	out := make([]byte, 0, len(info)+1+len(subject))
	out = append(out, info...)
	out = append(out, 0)
	out = append(out, subject...)
	return out
}

// Encrypt encrypts plaintext with a key derived from masterKey, the bot
// ID (subject), and a purpose label (info) so a password envelope can't
// be swapped for a TOTP-seed envelope of the same bot.
func Encrypt(masterKey []byte, botID []byte, info string, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, nil
	}
	key, err := deriveKey(masterKey, botID, info)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, aad(botID, info))

	buf := make([]byte, 0, len(nonce)+len(ciphertext))
	buf = append(buf, nonce...)
	buf = append(buf, ciphertext...)
	return []byte(envelopeVersionPrefix + base64.RawURLEncoding.EncodeToString(buf)), nil
}

// Decrypt reverses Encrypt. The result must be held only in the memory
// of the owning bot worker, never persisted or logged.
func Decrypt(masterKey []byte, botID []byte, info string, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, nil
	}
	encoded := strings.TrimPrefix(strings.TrimSpace(string(ciphertext)), envelopeVersionPrefix)
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	key, err := deriveKey(masterKey, botID, info)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, body := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, aad(botID, info))
}

// Purpose labels scope a bot's three encrypted secrets to distinct keys.
const (
	PurposePassword = "bot-password"
	PurposeTOTPSeed = "bot-totp-seed"
	PurposeIdentity = "bot-identity-secret"
)
