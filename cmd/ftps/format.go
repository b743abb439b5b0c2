package main

import (
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gonzalop/ftps/listing"
	"github.com/gonzalop/ftps/profile"
	"github.com/gonzalop/ftps/trust"
)

func formatEntry(e listing.Entry) string {
	if e.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

func writeEntries(w io.Writer, entries []listing.Entry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		size := ""
		if !e.IsDir() {
			size = humanize.IBytes(uint64(e.Size))
		}
		perms := e.UserPerm + e.GroupPerm + e.OtherPerm
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", perms, size, e.Date, formatEntry(e))
	}
	tw.Flush()
}

// fingerprint renders the SHA-256 digest of der as colon-separated hex.
func fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

func describeRequest(r *trust.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "the certificate of %s could not be verified (%s)\n", r.Host, r.Result)
	if r.Err != nil {
		fmt.Fprintf(&b, "  reason:      %v\n", r.Err)
	}
	if len(r.Chain) == 0 {
		return b.String()
	}
	leaf := r.Chain[0]
	fmt.Fprintf(&b, "  subject:     %s\n", leaf.Subject)
	fmt.Fprintf(&b, "  issuer:      %s\n", leaf.Issuer)
	fmt.Fprintf(&b, "  valid from:  %s\n", leaf.NotBefore.Format(time.RFC3339))
	fmt.Fprintf(&b, "  valid until: %s (%s)\n", leaf.NotAfter.Format(time.RFC3339), humanize.Time(leaf.NotAfter))
	fmt.Fprintf(&b, "  sha-256:     %s\n", fingerprint(leaf.Raw))
	return b.String()
}

func describeServers(l *profile.List) []string {
	if l.Len() == 0 {
		return []string{"no known servers"}
	}
	out := make([]string, 0, l.Len())
	for _, s := range l.Servers() {
		who := s.Host
		if s.User != "" {
			who = s.User + "@" + s.Host
		}
		if s.Port != 0 {
			who = fmt.Sprintf("%s:%d", who, s.Port)
		}
		out = append(out, fmt.Sprintf("%-20s %s%s", s.Name, who, s.Path))
	}
	return out
}
