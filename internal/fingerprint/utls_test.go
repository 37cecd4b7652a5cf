package fingerprint

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	utls "github.com/refraction-networking/utls"
)

// insecureDialer rewires tr's DialTLSContext to skip certificate
// verification against srv's self-signed cert while still performing
// helloID's handshake, so the profile under test is exercised for real
// rather than bypassed.
func insecureDialer(tr *http.Transport, helloID utls.ClientHelloID) func(context.Context, string, string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := tr.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		uConn := utls.UClient(conn, &utls.Config{ServerName: host, InsecureSkipVerify: true}, helloID)
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return uConn, nil
	}
}

func TestTransport_EachProfileReachesServer(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cases := []struct {
		profile Profile
		hello   utls.ClientHelloID
	}{
		{ProfileGo, utls.ClientHelloID{}},
		{ProfileChrome, utls.HelloChrome_Auto},
		{ProfileFirefox, utls.HelloFirefox_Auto},
		{ProfileSafari, utls.HelloIOS_Auto},
		{ProfileRandom, utls.HelloRandomizedALPN},
	}

	for _, tc := range cases {
		t.Run(string(tc.profile), func(t *testing.T) {
			rt, err := Transport(tc.profile, nil)
			if err != nil {
				t.Fatalf("Transport(%s): unexpected error: %v", tc.profile, err)
			}
			tr, ok := rt.(*http.Transport)
			if !ok {
				t.Fatalf("Transport(%s): got %T, want *http.Transport", tc.profile, rt)
			}

			if tc.profile == ProfileGo {
				tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
			} else {
				tr.DialTLSContext = insecureDialer(tr, tc.hello)
			}

			resp, err := (&http.Client{Transport: tr}).Get(srv.URL)
			if err != nil {
				t.Fatalf("Transport(%s): request failed: %v", tc.profile, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("Transport(%s): status = %d, want 200", tc.profile, resp.StatusCode)
			}
		})
	}
}

func TestTransport_RejectsUnknownProfile(t *testing.T) {
	_, err := Transport(Profile("netscape"), nil)
	if err == nil {
		t.Fatal("expected an error for an unrecognized profile, got nil")
	}
}

func TestTransport_GoProfileIgnoresClientHellos(t *testing.T) {
	rt, err := Transport(ProfileGo, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr := rt.(*http.Transport)
	if tr.DialTLSContext != nil {
		t.Error("ProfileGo transport should leave DialTLSContext unset")
	}
}
