package tools

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Whois はドメイン/IP 登録情報照会のアダプター。
type Whois struct {
	baseAdapter
}

func NewWhois(binary string) *Whois {
	return &Whois{baseAdapter{
		name:        "whois",
		description: "Domain and IP registration lookup",
		binary:      binary,
	}}
}

func (w *Whois) BuildInvocation(args map[string]any) (*Invocation, error) {
	target, err := requireString(args, "target")
	if err != nil {
		return nil, err
	}
	target, err = sanitizeTarget(target)
	if err != nil {
		return nil, err
	}
	return &Invocation{
		Binary:  w.binary,
		Args:    []string{target},
		Timeout: 30 * time.Second,
	}, nil
}

// whoisKeepPrefixes は要約に残すフィールドの接頭辞（小文字比較）。
var whoisKeepPrefixes = []string{
	"domain name:", "registrar:", "creation date:", "updated date:",
	"registry expiry date:", "name server:", "registrant", "admin", "tech",
	"orgname:", "netrange:", "cidr:", "country:", "status:",
}

func (w *Whois) ParseOutput(raw string) string {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		for _, p := range whoisKeepPrefixes {
			if strings.HasPrefix(lower, p) {
				kept = append(kept, trimmed)
				break
			}
		}
	}
	if len(kept) == 0 {
		return strings.TrimSpace(raw)
	}
	return strings.Join(kept, "\n")
}

// Dig は DNS 照会ツールのアダプター。
type Dig struct {
	baseAdapter
}

func NewDig(binary string) *Dig {
	return &Dig{baseAdapter{
		name:        "dig",
		description: "DNS lookup (A, AAAA, MX, NS, TXT, ANY records)",
		binary:      binary,
	}}
}

// digRecordTypes は許可するレコード種別。
var digRecordTypes = map[string]bool{
	"A": true, "AAAA": true, "MX": true, "NS": true, "TXT": true,
	"CNAME": true, "SOA": true, "PTR": true, "ANY": true, "AXFR": true,
}

// BuildInvocation の対応引数: domain（必須）, record_type, nameserver。
func (d *Dig) BuildInvocation(args map[string]any) (*Invocation, error) {
	domain, err := requireString(args, "domain")
	if err != nil {
		return nil, err
	}
	domain, err = sanitizeTarget(domain)
	if err != nil {
		return nil, err
	}

	recordType := strings.ToUpper(argString(args, "record_type"))
	if recordType == "" {
		recordType = "A"
	}
	if !digRecordTypes[recordType] {
		recordType = "A"
	}

	cmdArgs := []string{domain, recordType, "+noall", "+answer", "+authority"}
	if ns := argString(args, "nameserver"); ns != "" {
		ns, err := sanitizeTarget(ns)
		if err != nil {
			return nil, err
		}
		cmdArgs = append(cmdArgs, "@"+ns)
	}

	return &Invocation{
		Binary:  d.binary,
		Args:    cmdArgs,
		Timeout: 30 * time.Second,
	}, nil
}

func (d *Dig) ParseOutput(raw string) string {
	out := strings.TrimSpace(raw)
	if out == "" {
		return "no records returned"
	}
	return out
}

// Subfinder はパッシブサブドメイン列挙ツールのアダプター。
type Subfinder struct {
	baseAdapter
}

func NewSubfinder(binary string) *Subfinder {
	return &Subfinder{baseAdapter{
		name:        "subfinder",
		description: "Passive subdomain enumeration",
		binary:      binary,
	}}
}

func (s *Subfinder) BuildInvocation(args map[string]any) (*Invocation, error) {
	domain, err := requireString(args, "domain")
	if err != nil {
		return nil, err
	}
	domain, err = sanitizeTarget(domain)
	if err != nil {
		return nil, err
	}
	return &Invocation{
		Binary:  s.binary,
		Args:    []string{"-d", domain, "-silent"},
		Timeout: time.Duration(argInt(args, "timeout", 180)) * time.Second,
	}, nil
}

// ParseOutput はサブドメイン一覧に件数ヘッダーを付ける。
func (s *Subfinder) ParseOutput(raw string) string {
	var domains []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "[") {
			domains = append(domains, trimmed)
		}
	}
	if len(domains) == 0 {
		return "no subdomains found"
	}
	header := "found " + strconv.Itoa(len(domains)) + " subdomains:"
	return header + "\n" + strings.Join(domains, "\n")
}

// Searchsploit は Exploit-DB オフライン検索のアダプター。
type Searchsploit struct {
	baseAdapter
}

func NewSearchsploit(binary string) *Searchsploit {
	return &Searchsploit{baseAdapter{
		name:        "searchsploit",
		description: "Offline Exploit-DB search by product/version",
		binary:      binary,
	}}
}

// BuildInvocation の対応引数: query（必須）。
func (s *Searchsploit) BuildInvocation(args map[string]any) (*Invocation, error) {
	query, err := requireString(args, "query")
	if err != nil {
		return nil, err
	}
	if dangerousChars.MatchString(query) {
		return nil, fmt.Errorf("%w: query contains shell metacharacters", ErrInvalidArguments)
	}
	return &Invocation{
		Binary:  s.binary,
		Args:    append([]string{"--colour"}, strings.Fields(query)...),
		Timeout: 30 * time.Second,
	}, nil
}

func (s *Searchsploit) ParseOutput(raw string) string {
	out := strings.TrimSpace(raw)
	if out == "" || strings.Contains(out, "Exploits: No Results") {
		return "no exploits found"
	}
	return out
}
