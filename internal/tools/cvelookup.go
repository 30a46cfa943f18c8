package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultNVDBaseURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"

// CVELookup は NVD API を直接叩くアダプター。プロセス起動を伴わないため
// Executor として実行される。
type CVELookup struct {
	baseURL string
	client  *http.Client
}

// NewCVELookup は CVE 照会アダプターを生成する。baseURL が空なら NVD 本番 API。
func NewCVELookup(baseURL string) *CVELookup {
	if baseURL == "" {
		baseURL = defaultNVDBaseURL
	}
	return &CVELookup{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *CVELookup) Name() string { return "cve_lookup" }

func (c *CVELookup) Description() string {
	return "Look up CVE details from the NVD (by CVE ID or keyword search)"
}

func (c *CVELookup) Dangerous() bool { return false }

// Probe はエンドポイントへの到達性を確認する。バイナリ探索は行わない。
func (c *CVELookup) Probe(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?resultsPerPage=1", nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, "NVD API unreachable (check network access)"
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return false, fmt.Sprintf("NVD API returned %d", resp.StatusCode)
	}
	return true, ""
}

// BuildInvocation は Executor 経由で実行されるため呼ばれない。
func (c *CVELookup) BuildInvocation(map[string]any) (*Invocation, error) {
	return nil, fmt.Errorf("%w: cve_lookup does not spawn a process", ErrInvalidArguments)
}

func (c *CVELookup) ParseOutput(raw string) string { return raw }

// nvdResponse は NVD API 2.0 のレスポンスのうち要約に使う部分。
type nvdResponse struct {
	TotalResults    int `json:"totalResults"`
	Vulnerabilities []struct {
		CVE struct {
			ID           string `json:"id"`
			Descriptions []struct {
				Lang  string `json:"lang"`
				Value string `json:"value"`
			} `json:"descriptions"`
			Metrics struct {
				CvssMetricV31 []struct {
					CvssData struct {
						BaseScore    float64 `json:"baseScore"`
						BaseSeverity string  `json:"baseSeverity"`
					} `json:"cvssData"`
				} `json:"cvssMetricV31"`
			} `json:"metrics"`
		} `json:"cve"`
	} `json:"vulnerabilities"`
}

// Execute は cve_id または keyword のどちらかで NVD を照会する。
func (c *CVELookup) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	q := url.Values{}
	switch {
	case argString(args, "cve_id") != "":
		id := strings.ToUpper(argString(args, "cve_id"))
		if !strings.HasPrefix(id, "CVE-") {
			return nil, fmt.Errorf("%w: cve_id must look like CVE-YYYY-NNNN", ErrInvalidArguments)
		}
		q.Set("cveId", id)
	case argString(args, "keyword") != "":
		q.Set("keywordSearch", argString(args, "keyword"))
		q.Set("resultsPerPage", "5")
	default:
		return nil, fmt.Errorf("%w: need cve_id or keyword", ErrInvalidArguments)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return &Result{
			Tool:     c.Name(),
			Status:   StatusToolError,
			Err:      err,
			Duration: time.Since(start),
		}, nil
	}
	defer resp.Body.Close()

	body, truncated, err := readAllLimited(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return &Result{
			Tool:     c.Name(),
			Status:   StatusToolError,
			Stdout:   fmt.Sprintf("NVD API returned %d", resp.StatusCode),
			ExitCode: 1,
			Duration: time.Since(start),
		}, nil
	}

	var parsed nvdResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return &Result{
			Tool:     c.Name(),
			Status:   StatusToolError,
			Stdout:   "NVD API returned unparseable JSON",
			ExitCode: 1,
			Duration: time.Since(start),
		}, nil
	}

	return &Result{
		Tool:      c.Name(),
		Status:    StatusSuccess,
		Stdout:    summarizeNVD(parsed),
		Duration:  time.Since(start),
		Truncated: truncated,
	}, nil
}

func summarizeNVD(r nvdResponse) string {
	if len(r.Vulnerabilities) == 0 {
		return "no CVEs found"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d results:\n", r.TotalResults)
	for _, v := range r.Vulnerabilities {
		desc := ""
		for _, d := range v.CVE.Descriptions {
			if d.Lang == "en" {
				desc = d.Value
				break
			}
		}
		if len(desc) > 300 {
			desc = desc[:300] + "..."
		}
		score := ""
		if m := v.CVE.Metrics.CvssMetricV31; len(m) > 0 {
			score = fmt.Sprintf(" (CVSS %.1f %s)", m[0].CvssData.BaseScore, m[0].CvssData.BaseSeverity)
		}
		fmt.Fprintf(&b, "%s%s: %s\n", v.CVE.ID, score, desc)
	}
	return strings.TrimRight(b.String(), "\n")
}
