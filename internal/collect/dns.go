package collect

import (
	"context"
	"net"
	"strings"

	"siteaudit/internal/identity"
	"siteaudit/internal/snapshot"
)

// DNS resolves A, AAAA, and CNAME records for the target host under a
// strict timeout. The stdlib resolver does not expose record TTLs, so
// TTLSeconds is zero; downstream treats zero as unreported.
func (c *Collectors) DNS(ctx context.Context, id identity.Identity) snapshot.CollectorOutput[snapshot.DNSFacts] {
	host := id.Host()
	if host == "" {
		return failf[snapshot.DNSFacts]("no host in %q", id.NormalizedURL)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.DNS)
	defer cancel()

	resolver := &net.Resolver{}
	facts := snapshot.DNSFacts{}

	ips, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return snapshot.Fail[snapshot.DNSFacts](err)
	}
	for _, ip := range ips {
		rec := snapshot.DNSRecord{Value: ip.IP.String()}
		if ip.IP.To4() != nil {
			facts.A = append(facts.A, rec)
		} else {
			facts.AAAA = append(facts.AAAA, rec)
		}
	}

	// CNAME lookup failures are non-fatal: apex domains have none.
	if cname, err := resolver.LookupCNAME(ctx, host); err == nil {
		cname = strings.TrimSuffix(cname, ".")
		if cname != host {
			facts.CNAME = cname
		}
	}

	return snapshot.OK(facts)
}
