package lark

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Callback signature headers
const (
	HeaderTimestamp = "X-Lark-Request-Timestamp"
	HeaderNonce     = "X-Lark-Request-Nonce"
	HeaderSignature = "X-Lark-Signature"
)

var errBadCiphertext = errors.New("malformed encrypted callback")

// Verifier checks callback signatures and decrypts encrypted callback
// bodies. A verifier without an encrypt key accepts everything as-is.
type Verifier struct {
	encryptKey string
}

// NewVerifier creates a Verifier for the app's encrypt key
func NewVerifier(encryptKey string) *Verifier {
	return &Verifier{encryptKey: encryptKey}
}

// VerifySignature checks sha256(timestamp + nonce + key + body)
func (v *Verifier) VerifySignature(timestamp, nonce, signature string, body []byte) bool {
	if v == nil || v.encryptKey == "" {
		return true
	}

	h := sha256.New()
	h.Write([]byte(timestamp + nonce + v.encryptKey))
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// Decrypt unwraps a {"encrypt": "..."} body. Plain bodies are returned unchanged.
func (v *Verifier) Decrypt(body []byte) ([]byte, error) {
	if v == nil || v.encryptKey == "" {
		return body, nil
	}

	var wrapped struct {
		Encrypt string `json:"encrypt"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil || wrapped.Encrypt == "" {
		return body, nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(wrapped.Encrypt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadCiphertext, err)
	}
	if len(ciphertext) < 2*aes.BlockSize || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errBadCiphertext
	}

	key := sha256.Sum256([]byte(v.encryptKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	iv, data := ciphertext[:aes.BlockSize], ciphertext[aes.BlockSize:]
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)

	return unpad(plain)
}

func unpad(data []byte) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, errBadCiphertext
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errBadCiphertext
		}
	}
	return data[:len(data)-n], nil
}
