package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(headers map[string]string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.Request = req
	return c
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"public x-real-ip", map[string]string{"X-Real-IP": "203.0.113.7"}, "203.0.113.7"},
		{"first public forwarded", map[string]string{"X-Forwarded-For": "10.1.1.1, 198.51.100.4, 203.0.113.9"}, "198.51.100.4"},
		{"all private forwarded", map[string]string{"X-Forwarded-For": "192.168.1.5, 10.0.0.2"}, "192.168.1.5"},
		{"private x-real-ip falls through", map[string]string{"X-Real-IP": "10.2.2.2", "X-Forwarded-For": "198.51.100.4"}, "198.51.100.4"},
		{"no headers", nil, "10.0.0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetRealIP(newTestContext(tt.headers)))
		})
	}
}

func TestGetUserAgent(t *testing.T) {
	assert.Equal(t, "Unknown", GetUserAgent(newTestContext(nil)))
	assert.Equal(t, "okhttp/4.9.2", GetUserAgent(newTestContext(map[string]string{"User-Agent": "okhttp/4.9.2"})))
}

func TestParseUserAgent(t *testing.T) {
	app := ParseUserAgent("okhttp/4.9.2")
	assert.Equal(t, "app", app.DeviceType)
	assert.Equal(t, "okhttp", app.Client)
	assert.Equal(t, "android", app.Platform)

	iphone := ParseUserAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1")
	assert.Equal(t, "mobile", iphone.DeviceType)
	assert.Equal(t, "ios", iphone.Platform)

	unknown := ParseUserAgent("")
	assert.Equal(t, "unknown", unknown.DeviceType)
}

func TestCredentialFingerprint(t *testing.T) {
	a := CredentialFingerprint("token-a")
	assert.Len(t, a, 16)
	assert.Equal(t, a, CredentialFingerprint(" token-a "))
	assert.NotEqual(t, a, CredentialFingerprint("token-b"))
	assert.Empty(t, CredentialFingerprint(""))
}

func TestGenerateSecret(t *testing.T) {
	s, err := GenerateSecret(32)
	require.NoError(t, err)
	assert.Len(t, s, 64)
}
