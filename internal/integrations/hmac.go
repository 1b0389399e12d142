package integrations

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// VerifyShopifyHMAC checks a webhook body against the
// X-Shopify-Hmac-Sha256 header. Shopify sends base64; hex digests are also
// accepted. Comparison is constant-time.
func VerifyShopifyHMAC(body []byte, secret, signature string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	if got, err := base64.StdEncoding.DecodeString(signature); err == nil && hmac.Equal(got, expected) {
		return true
	}
	if got, err := hex.DecodeString(signature); err == nil && hmac.Equal(got, expected) {
		return true
	}
	return false
}
