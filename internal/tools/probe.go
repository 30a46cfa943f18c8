package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// probeTimeout はバイナリ存在確認の上限。is_available は短時間で返す契約。
const probeTimeout = 5 * time.Second

// installHints はバイナリ不在時のインストールヒント。
var installHints = map[string]string{
	"nmap":         "apt install nmap / brew install nmap",
	"nikto":        "apt install nikto",
	"gobuster":     "apt install gobuster / go install github.com/OJ/gobuster/v3@latest",
	"whois":        "apt install whois",
	"dig":          "apt install dnsutils / bind-tools",
	"subfinder":    "go install github.com/projectdiscovery/subfinder/v2/cmd/subfinder@latest",
	"whatweb":      "apt install whatweb",
	"searchsploit": "apt install exploitdb",
}

// probeBinary はバイナリの存在と応答を確認して (available, hint) を返す。
// ヒントは利用可能なら --version の先頭行、不在ならインストール方法。
func probeBinary(ctx context.Context, binary string) (bool, string) {
	absPath, err := resolveBinary(binary)
	if err != nil {
		if hint, ok := installHints[binary]; ok {
			return false, fmt.Sprintf("%s not found. Install: %s", binary, hint)
		}
		return false, fmt.Sprintf("%s not found in PATH", binary)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, _ := exec.CommandContext(ctx, absPath, "--version").CombinedOutput() // nosemgrep: go.lang.security.audit.dangerous-exec-command.dangerous-exec-command -- absPath は resolveBinary で検証済み
	first := strings.SplitN(strings.TrimSpace(string(out)), "\n", 2)[0]
	if len(first) > 80 {
		first = first[:80]
	}
	return true, first
}
