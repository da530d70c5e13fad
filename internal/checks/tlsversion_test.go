package checks

import (
	"crypto/tls"
	"testing"
)

func TestIsWeakCipher(t *testing.T) {
	weak := []string{
		"TLS_RSA_WITH_RC4_128_SHA",
		"TLS_RSA_WITH_3DES_EDE_CBC_SHA",
		"TLS_RSA_EXPORT_WITH_RC4_40_MD5",
		"TLS_NULL_WITH_NULL_NULL",
		"TLS_DH_anon_WITH_AES_128_CBC_SHA",
	}
	for _, s := range weak {
		if !IsWeakCipher(s) {
			t.Errorf("IsWeakCipher(%q) = false, want true", s)
		}
	}

	strong := []string{
		"TLS_AES_128_GCM_SHA256",
		"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384",
		"TLS_CHACHA20_POLY1305_SHA256",
	}
	for _, s := range strong {
		if IsWeakCipher(s) {
			t.Errorf("IsWeakCipher(%q) = true, want false", s)
		}
	}
}

func TestTLSVersionNameAndRank(t *testing.T) {
	if tlsVersionName(tls.VersionTLS13) != "TLSv1.3" {
		t.Error("wrong name for TLS 1.3")
	}
	if tlsVersionName(tls.VersionTLS10) != "TLSv1" {
		t.Error("wrong name for TLS 1.0")
	}
	if tlsVersionRank("TLSv1.2") <= tlsVersionRank("TLSv1.1") {
		t.Error("TLSv1.2 should rank above TLSv1.1")
	}
	if tlsVersionRank("SSLv3") != -1 {
		t.Error("unknown version should rank -1")
	}
}

func TestTLSAddress(t *testing.T) {
	cases := []struct {
		in, host, addr string
		wantErr        bool
	}{
		{in: "https://example.com", host: "example.com", addr: "example.com:443"},
		{in: "https://example.com:8443/path", host: "example.com", addr: "example.com:8443"},
		{in: "example.com", host: "example.com", addr: "example.com:443"},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		host, addr, err := tlsAddress(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("tlsAddress(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("tlsAddress(%q): %v", tc.in, err)
			continue
		}
		if host != tc.host || addr != tc.addr {
			t.Errorf("tlsAddress(%q) = %q, %q; want %q, %q", tc.in, host, addr, tc.host, tc.addr)
		}
	}
}
