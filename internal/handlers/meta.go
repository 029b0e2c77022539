package handlers

import (
	"net"
	"net/http"

	"github.com/ndenisov/accounts/internal/models"
)

// requestMeta collects diagnostic request attributes stored on sessions
func requestMeta(r *http.Request) models.RequestMeta {
	return models.RequestMeta{
		UserAgent: r.UserAgent(),
		IPAddress: clientIP(r),
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
