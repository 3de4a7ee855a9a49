// Package httputil builds the HTTP client shared by object-store transfers.
package httputil

import (
	"net"
	nethttp "net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/tangram-vision/datasets-cli/internal/constants"
)

// NewTransferClient creates an HTTP client tuned for concurrent part
// uploads and streamed downloads.
//
// The connection pool is sized to the part-upload concurrency so every
// in-flight part can hold a warm connection; compression is disabled
// because sensor payloads are already packed.
func NewTransferClient() *nethttp.Client {
	dialer := &net.Dialer{
		Timeout:   constants.HTTPDialTimeout,
		KeepAlive: constants.HTTPDialKeepAlive,
	}

	tr := &nethttp.Transport{
		Proxy:                 nethttp.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          4 * constants.ConcurrentRequestLimit,
		MaxIdleConnsPerHost:   constants.ConcurrentRequestLimit,
		MaxConnsPerHost:       2 * constants.ConcurrentRequestLimit,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
		ForceAttemptHTTP2:     true,
	}
	_ = http2.ConfigureTransport(tr)

	// No overall client timeout; a multi-gigabyte part legitimately takes
	// minutes. Cancellation comes from the request context.
	return &nethttp.Client{Transport: tr}
}
