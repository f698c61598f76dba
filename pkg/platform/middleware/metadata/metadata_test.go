package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"correspondence/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.9:5123"
	assert.Equal(t, "10.0.0.9", ClientIPFromRequest(r))

	r.Header.Set("X-Real-IP", "172.16.0.4")
	assert.Equal(t, "172.16.0.4", ClientIPFromRequest(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIPFromRequest(r))
}

func TestDescribeUserAgent(t *testing.T) {
	assert.Empty(t, DescribeUserAgent(""))

	firefox := "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"
	assert.Contains(t, DescribeUserAgent(firefox), "Firefox/")

	bot := "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	assert.Contains(t, DescribeUserAgent(bot), "bot/")
}

func TestClientMetadata(t *testing.T) {
	var ip, client string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		client = requestcontext.Client(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:80"
	r.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "192.0.2.1", ip)
	assert.Contains(t, client, "Chrome/")
}
