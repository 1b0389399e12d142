package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(INFO)
	})
	return &buf
}

func TestLogWritesJSONEntry(t *testing.T) {
	buf := capture(t)

	Info("escrow funded", "campaign_id", "c-1", "amount", "3000.00")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "escrow funded", entry["msg"])
	assert.Equal(t, "c-1", entry["campaign_id"])
	assert.Equal(t, "3000.00", entry["amount"])
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel(WARN)

	Info("dropped")
	assert.Empty(t, buf.String())

	Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestRedaction(t *testing.T) {
	buf := capture(t)

	Info("webhook", "customer_email", "john.doe@example.com", "client_ip", "203.0.113.7", "note", "contact ab@shop.io")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "jo***@example.com", entry["customer_email"])
	assert.Equal(t, "203.0.113.0", entry["client_ip"])
	assert.Equal(t, "contact ***@shop.io", entry["note"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
}

func TestRedactIP(t *testing.T) {
	assert.Equal(t, "10.1.2.0", RedactIP("10.1.2.3:5555"))
	assert.Equal(t, "2001:db8:abcd::", RedactIP("2001:db8:abcd:12::1"))
	assert.Equal(t, "***", RedactIP("not-an-ip"))
}

func TestSecretsAreMasked(t *testing.T) {
	buf := capture(t)

	Warn("stripe misconfigured", "webhook_secret", "whsec_abc", "detail", "bad key sk_test_4eC39HqLyjWDarjtT1zdp7dc", "dangling")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "[redacted]", entry["webhook_secret"])
	assert.Equal(t, "bad key [redacted]", entry["detail"])
	assert.Equal(t, "dangling", entry["!BADKEY"])
}

func TestRedactionCanBeDisabled(t *testing.T) {
	buf := capture(t)
	SetRedactPII(false)
	t.Cleanup(func() { SetRedactPII(true) })

	Info("deposit", "customer_email", "john.doe@example.com")
	assert.Contains(t, buf.String(), "john.doe@example.com")
}
