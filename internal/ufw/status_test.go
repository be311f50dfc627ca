package ufw

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/cidr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testParser() *Parser {
	return NewParser(Selector{Port: 443, Protocol: "tcp", Tag: "Cloudflare IP"}, testLogger())
}

func prefixes(set cidr.Set) []string {
	out := make([]string, 0, len(set))
	for _, r := range set.Sorted() {
		out = append(out, r.Prefix)
	}
	return out
}

// Realistic `ufw status numbered` output.
const tabularStatus = `Status: active

     To                         Action      From
     --                         ------      ----
[ 1] 22/tcp                     ALLOW IN    Anywhere
[ 2] 443/tcp                    ALLOW IN    173.245.48.0/20            # Cloudflare IP
[ 3] 443/tcp                    ALLOW IN    103.21.244.0/22            # Cloudflare IP
[ 4] 22/tcp (v6)                ALLOW IN    Anywhere (v6)
[ 5] 443/tcp (v6)               ALLOW IN    2400:cb00::/32             # Cloudflare IP
`

func TestParser_TabularLayout(t *testing.T) {
	st := testParser().CurrentState(tabularStatus)

	if diff := cmp.Diff([]string{"103.21.244.0/22", "173.245.48.0/20"}, prefixes(st.Get(cidr.FamilyV4))); diff != "" {
		t.Errorf("v4 mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"2400:cb00::/32"}, prefixes(st.Get(cidr.FamilyV6))); diff != "" {
		t.Errorf("v6 mismatch (-want +got):\n%s", diff)
	}
}

func TestParser_VerbFirstLayout(t *testing.T) {
	raw := `
[ 1] 203.0.113.0/24  ALLOW IN  tcp/443  from 203.0.113.0/24  # Cloudflare IP
[ 2] 2001:db8::/32   ALLOW IN  tcp/443  from 2001:db8::/32   # Cloudflare IP
[ 3] 10.0.0.0/8      ALLOW IN  tcp/22   from 10.0.0.0/8      # not ours
`
	st := testParser().CurrentState(raw)

	if diff := cmp.Diff([]string{"203.0.113.0/24"}, prefixes(st.Get(cidr.FamilyV4))); diff != "" {
		t.Errorf("v4 mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"2001:db8::/32"}, prefixes(st.Get(cidr.FamilyV6))); diff != "" {
		t.Errorf("v6 mismatch (-want +got):\n%s", diff)
	}
}

func TestParser_OtherPortExcluded(t *testing.T) {
	raw := `[ 1] 22/tcp                     ALLOW IN    198.51.100.0/24            # Cloudflare IP
[ 2] 203.0.113.0/24  ALLOW IN  tcp/22  from 203.0.113.0/24  # Cloudflare IP
[ 3] 203.0.113.0/24  ALLOW IN  udp/443  from 203.0.113.0/24  # Cloudflare IP
[ 4] 203.0.113.0/24  ALLOW IN  tcp/4430  from 203.0.113.0/24  # Cloudflare IP
`
	st := testParser().CurrentState(raw)
	if st.Len() != 0 {
		t.Errorf("CurrentState() = %v, want empty", st)
	}
}

func TestParser_UntaggedRulesNeverIncluded(t *testing.T) {
	raw := `[ 1] 443/tcp                    ALLOW IN    173.245.48.0/20            # someone else
[ 2] 443/tcp                    ALLOW IN    103.21.244.0/22
[ 3] 203.0.113.0/24  ALLOW IN  tcp/443  from 203.0.113.0/24
`
	p := testParser()
	if st := p.CurrentState(raw); st.Len() != 0 {
		t.Errorf("CurrentState() = %v, want empty", st)
	}
	if _, ok := p.FindIndex(raw, cidr.Range{Prefix: "173.245.48.0/20", Family: cidr.FamilyV4}); ok {
		t.Error("FindIndex() found an untagged rule")
	}
}

func TestParser_GarbageInterleaved(t *testing.T) {
	raw := "\x00\x01 binary noise # Cloudflare IP\n" +
		"[ 1] nonsense without expected tokens # Cloudflare IP\n" +
		"[ 2] 2001:db8::/32   ALLOW IN  tcp/443 from 2001:db8::/32   # Cloudflare IP\n" +
		"ALLOW IN\n" +
		"[ 3] 443/tcp ALLOW IN not-a-cidr # Cloudflare IP\n" +
		"[ 4] 443/tcp ALLOW IN 203.0.113.5/24 # Cloudflare IP\n" +
		"[\n" +
		"[ 5] some other thing # Cloudflare IP\r\n" +
		"[ 6] 443/tcp                    ALLOW IN    198.51.100.0/24            # Cloudflare IP\r\n"

	recs := testParser().Records(raw)
	got := make([]string, 0, len(recs))
	for _, r := range recs {
		got = append(got, r.Source.Prefix)
	}
	if diff := cmp.Diff([]string{"2001:db8::/32", "198.51.100.0/24"}, got); diff != "" {
		t.Errorf("Records() mismatch (-want +got):\n%s", diff)
	}
}

func TestParser_OnlyFromFieldTaken(t *testing.T) {
	raw := `[ 9] 192.0.2.10 ALLOW IN tcp/443 from 198.51.100.0/24 # Cloudflare IP`

	recs := testParser().Records(raw)
	if len(recs) != 1 {
		t.Fatalf("len(Records()) = %d, want 1", len(recs))
	}
	if recs[0].Source.Prefix != "198.51.100.0/24" {
		t.Errorf("Source = %q, want 198.51.100.0/24", recs[0].Source.Prefix)
	}
	if recs[0].Index != 9 {
		t.Errorf("Index = %d, want 9", recs[0].Index)
	}
	if recs[0].Comment != "Cloudflare IP" {
		t.Errorf("Comment = %q, want %q", recs[0].Comment, "Cloudflare IP")
	}
}

func TestParser_FindIndex(t *testing.T) {
	p := testParser()

	idx, ok := p.FindIndex(tabularStatus, cidr.Range{Prefix: "2400:cb00::/32", Family: cidr.FamilyV6})
	if !ok || idx != 5 {
		t.Errorf("FindIndex() = %d, %v, want 5, true", idx, ok)
	}

	if _, ok := p.FindIndex(tabularStatus, cidr.Range{Prefix: "198.51.100.0/24", Family: cidr.FamilyV4}); ok {
		t.Error("FindIndex() found a range that is not installed")
	}
}

func TestParser_FindIndexRequiresExactTag(t *testing.T) {
	raw := "[ 7] 443/tcp ALLOW IN 203.0.113.0/24 # Cloudflare IP\n" +
		"[ 8] 443/tcp ALLOW IN 192.0.2.0/24 # Cloudflare IP legacy\n"
	p := testParser()

	if _, ok := p.FindIndex(raw, cidr.Range{Prefix: "192.0.2.0/24", Family: cidr.FamilyV4}); ok {
		t.Error("FindIndex() resolved a rule whose tag only contains the configured tag")
	}
	idx, ok := p.FindIndex(raw, cidr.Range{Prefix: "203.0.113.0/24", Family: cidr.FamilyV4})
	if !ok || idx != 7 {
		t.Errorf("FindIndex() = %d, %v, want 7, true", idx, ok)
	}
}

func TestParser_EmptyInput(t *testing.T) {
	st := testParser().CurrentState("")
	if st.Len() != 0 {
		t.Errorf("CurrentState(\"\") = %v, want empty", st)
	}
	if st.Get(cidr.FamilyV4) == nil || st.Get(cidr.FamilyV6) == nil {
		t.Error("CurrentState(\"\") should carry empty sets for both families")
	}
}

func TestParsePortToken(t *testing.T) {
	tests := []struct {
		in        string
		wantProto string
		wantPort  int
		wantOK    bool
	}{
		{"tcp/443", "tcp", 443, true},
		{"443/tcp", "tcp", 443, true},
		{"UDP/53", "udp", 53, true},
		{"443", "", 0, false},
		{"80,443/tcp", "", 0, false},
		{"tcp/https", "", 0, false},
	}
	for _, tt := range tests {
		proto, port, ok := parsePortToken(tt.in)
		if proto != tt.wantProto || port != tt.wantPort || ok != tt.wantOK {
			t.Errorf("parsePortToken(%q) = %q, %d, %v, want %q, %d, %v",
				tt.in, proto, port, ok, tt.wantProto, tt.wantPort, tt.wantOK)
		}
	}
}
