package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Decrypt reverses the AES-GCM encryption the operator uses to keep the
// signer's private key out of plaintext env files: key is a passphrase
// (stretched via SHA-256 into an AES-256 key), encHex is the hex-encoded
// nonce||ciphertext produced at encryption time.
func Decrypt(key string, encHex string) (string, error) {
	blob, err := hex.DecodeString(encHex)
	if err != nil {
		return "", fmt.Errorf("decode encrypted payload: %w", err)
	}
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return "", fmt.Errorf("build cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("build gcm: %w", err)
	}
	if len(blob) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, ciphertext := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt signer key: %w", err)
	}
	return string(plain), nil
}
