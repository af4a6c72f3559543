package clients

import (
	"net"
	"net/http"
	"time"

	"github.com/Bache94/ListeByBache/internal/config"
)

// NewHTTPClient returns the client used for record store calls. Requests
// time out after cfg.RequestTimeoutSec, at least 5 seconds.
func NewHTTPClient(cfg config.CloudSyncConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
	}
	timeoutSec := cfg.RequestTimeoutSec
	if timeoutSec < 5 {
		timeoutSec = 5
	}
	return &http.Client{Transport: transport, Timeout: time.Duration(timeoutSec) * time.Second}
}
