package collect

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"siteaudit/internal/identity"
	"siteaudit/internal/snapshot"
)

// TLS performs a single handshake against host:443 and records the
// negotiated protocol, certificate issuer, expiry, and SANs. No cipher
// probing.
func (c *Collectors) TLS(ctx context.Context, id identity.Identity) snapshot.CollectorOutput[snapshot.TLSFacts] {
	host := id.Host()
	if host == "" {
		return failf[snapshot.TLSFacts]("no host in %q", id.NormalizedURL)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.TLS)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.cfg.Timeouts.TLS},
		Config: &tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS10, // observe legacy servers rather than refuse them
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, "443"))
	if err != nil {
		return snapshot.Fail[snapshot.TLSFacts](err)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	facts := snapshot.TLSFacts{
		Protocol: tls.VersionName(state.Version),
	}
	if len(state.PeerCertificates) > 0 {
		leaf := state.PeerCertificates[0]
		facts.Issuer = leaf.Issuer.CommonName
		facts.Subject = leaf.Subject.CommonName
		facts.NotAfter = leaf.NotAfter
		facts.ExpiryDays = int(time.Until(leaf.NotAfter).Hours() / 24)
		facts.SANs = leaf.DNSNames
	}
	return snapshot.OK(facts)
}
