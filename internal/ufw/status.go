package ufw

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/cidr"
)

// Selector scopes which rules in a listing belong to this tool.
type Selector struct {
	Port     int
	Protocol string
	Tag      string
}

// Record is one allow rule observed in a `status numbered` listing.
// Index is assigned by ufw and changes after any deletion.
type Record struct {
	Index    int
	Protocol string
	Port     int
	Source   cidr.Range
	Comment  string
	Line     string
}

var (
	// [ 1] 203.0.113.0/24  ALLOW IN  tcp/443  from 203.0.113.0/24  # tag
	verbFirstRe = regexp.MustCompile(`\bALLOW\s+IN\s+(\S+)\s+from\s+(\S+)`)

	// [ 1] 443/tcp (v6)   ALLOW IN    2400:cb00::/32   # tag
	tabularRe = regexp.MustCompile(`^\s*\[\s*\d+\]\s+(\S+)(?:\s+\(v6\))?\s+ALLOW\s+IN\s+(\S+)`)

	indexRe = regexp.MustCompile(`^\s*\[\s*(\d+)\]`)
)

// Parser extracts owned rules from ufw status listings. It performs no I/O.
type Parser struct {
	sel    Selector
	logger *slog.Logger
}

// NewParser creates a Parser for the given selector.
func NewParser(sel Selector, logger *slog.Logger) *Parser {
	return &Parser{
		sel:    sel,
		logger: logger.With("component", "ufw"),
	}
}

// Records returns the allow rules in raw that carry the selector's tag and
// match its port and protocol. Lines that do not look like rules are skipped.
func (p *Parser) Records(raw string) []Record {
	var out []Record
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if rec, ok := p.parseLine(line); ok {
			out = append(out, rec)
		}
	}
	return out
}

// CurrentState returns the owned source ranges in raw, grouped by family.
func (p *Parser) CurrentState(raw string) cidr.State {
	st := cidr.NewState()
	for _, rec := range p.Records(raw) {
		st.Add(rec.Source)
	}
	return st
}

// FindIndex returns the index of the first owned rule whose source equals r
// and whose comment is exactly the selector's tag.
func (p *Parser) FindIndex(raw string, r cidr.Range) (int, bool) {
	for _, rec := range p.Records(raw) {
		if rec.Source.Prefix == r.Prefix && rec.Comment == p.sel.Tag && rec.Index > 0 {
			return rec.Index, true
		}
	}
	return 0, false
}

func (p *Parser) parseLine(line string) (Record, bool) {
	if p.sel.Tag == "" || !strings.Contains(line, p.sel.Tag) {
		return Record{}, false
	}

	body, comment := splitComment(line)

	var portToken, source string
	if m := verbFirstRe.FindStringSubmatch(body); m != nil {
		portToken, source = m[1], m[2]
	} else if m := tabularRe.FindStringSubmatch(body); m != nil {
		portToken, source = m[1], m[2]
	} else {
		p.logger.Debug("skipping unrecognized rule line", "line", line)
		return Record{}, false
	}

	proto, port, ok := parsePortToken(portToken)
	if !ok || proto != p.sel.Protocol || port != p.sel.Port {
		return Record{}, false
	}

	src, err := cidr.Parse(source)
	if err != nil {
		p.logger.Warn("invalid source in ufw rule",
			"source", source,
			"line", strings.TrimSpace(line),
			"error", err,
		)
		return Record{}, false
	}

	rec := Record{
		Protocol: proto,
		Port:     port,
		Source:   src,
		Comment:  comment,
		Line:     line,
	}
	if m := indexRe.FindStringSubmatch(line); m != nil {
		rec.Index, _ = strconv.Atoi(m[1])
	}
	return rec, true
}

// splitComment separates the rule body from a trailing "# comment".
func splitComment(line string) (body, comment string) {
	i := strings.Index(line, "#")
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i+1:])
}

// parsePortToken accepts "tcp/443" and ufw's own "443/tcp" ordering.
func parsePortToken(tok string) (proto string, port int, ok bool) {
	a, b, found := strings.Cut(tok, "/")
	if !found {
		return "", 0, false
	}
	if n, err := strconv.Atoi(b); err == nil {
		return strings.ToLower(a), n, true
	}
	if n, err := strconv.Atoi(a); err == nil {
		return strings.ToLower(b), n, true
	}
	return "", 0, false
}
