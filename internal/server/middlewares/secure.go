package middlewares

import (
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
)

// SecureHeaders sets the usual hardening headers. HSTS is only sent over TLS.
func SecureHeaders() gin.HandlerFunc {
	return secure.New(secure.Config{
		STSSeconds:           31536000,
		STSIncludeSubdomains: true,
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		BrowserXssFilter:     true,
		IENoOpen:             true,
		ReferrerPolicy:       "no-referrer",
		SSLProxyHeaders:      map[string]string{"X-Forwarded-Proto": "https"},
	})
}
