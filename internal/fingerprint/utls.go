// Package fingerprint builds the http.RoundTripper used for outbound
// fetches, optionally swapping the Go standard library's TLS ClientHello
// for a browser-shaped one via uTLS so a fetch's handshake doesn't betray
// it as a Go client even when its headers claim to be a browser. Paired
// with internal/antidetect's header profiles via Manager.TLSFingerprint.
package fingerprint

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	utls "github.com/refraction-networking/utls"
)

// Profile names one recognized ClientHello shape.
type Profile string

const (
	ProfileGo      Profile = "go" // unmodified net/http transport
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileRandom  Profile = "random" // a different uTLS identity per handshake
)

var clientHellos = map[Profile]utls.ClientHelloID{
	ProfileChrome:  utls.HelloChrome_Auto,
	ProfileFirefox: utls.HelloFirefox_Auto,
	ProfileSafari:  utls.HelloIOS_Auto,
	ProfileRandom:  utls.HelloRandomizedALPN,
}

// Transport builds a RoundTripper for profile. ProfileGo returns a plain
// cloned http.Transport; every other profile wraps it with a uTLS dial
// that performs the chosen ClientHello instead of crypto/tls's own.
// proxyFunc may be nil.
func Transport(profile Profile, proxyFunc func(*http.Request) (*url.URL, error)) (http.RoundTripper, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if proxyFunc != nil {
		base.Proxy = proxyFunc
	}

	if profile == ProfileGo {
		return base, nil
	}

	helloID, ok := clientHellos[profile]
	if !ok {
		return nil, fmt.Errorf("fingerprint: unrecognized profile %q", profile)
	}

	base.DialTLSContext = utlsDialer(base, helloID)
	return base, nil
}

// utlsDialer produces a DialTLSContext that dials the plain TCP
// connection through base's own dialer, then layers a uTLS handshake
// with helloID over it instead of the standard library's handshake.
func utlsDialer(base *http.Transport, helloID utls.ClientHelloID) func(context.Context, string, string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := base.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		serverName := addr
		if host, _, splitErr := net.SplitHostPort(addr); splitErr == nil {
			serverName = host
		}

		uConn := utls.UClient(conn, &utls.Config{ServerName: serverName}, helloID)
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("fingerprint: uTLS handshake failed: %w", err)
		}
		return uConn, nil
	}
}
