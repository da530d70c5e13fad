package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DNSCheck resolves the site's hostname and optionally verifies the
// returned records against an expected set.
type DNSCheck struct {
	// Resolver overrides the nameserver address, host:port. Empty uses
	// the system resolver from /etc/resolv.conf.
	Resolver string
}

func (c *DNSCheck) Type() string        { return "dns" }
func (c *DNSCheck) DisplayName() string { return "DNS Resolution" }
func (c *DNSCheck) Description() string {
	return "Resolves the site's hostname and verifies the returned records"
}

func (c *DNSCheck) ConfigSchema() Schema {
	return Schema{
		Type: c.Type(), Label: c.DisplayName(), Description: c.Description(),
		Fields: []Field{
			{Key: "record_type", Label: "Record Type", Type: FieldSelect, Default: "A",
				Options: []SelectOption{
					{Value: "A", Label: "A"},
					{Value: "AAAA", Label: "AAAA"},
					{Value: "CNAME", Label: "CNAME"},
					{Value: "MX", Label: "MX"},
				}},
			{Key: "expected_values", Label: "Expected Values", Type: FieldList,
				HelpText: "Leave empty to only verify that resolution succeeds"},
			{Key: "timeout_seconds", Label: "Timeout (seconds)", Type: FieldNumber,
				Default: "10"},
		},
	}
}

var recordTypes = map[string]uint16{
	"A":     dns.TypeA,
	"AAAA":  dns.TypeAAAA,
	"CNAME": dns.TypeCNAME,
	"MX":    dns.TypeMX,
}

func (c *DNSCheck) Execute(ctx context.Context, siteURL string, config map[string]any) Outcome {
	recordType := strings.ToUpper(cfgString(config, "record_type", "A"))
	expected := cfgStringSlice(config, "expected_values")
	timeout := time.Duration(cfgInt(config, "timeout_seconds", 10)) * time.Second

	qtype, ok := recordTypes[recordType]
	if !ok {
		return failure(fmt.Sprintf("unsupported record type: %s", recordType), -1, nil)
	}

	host, err := hostFromURL(siteURL)
	if err != nil {
		return failure(err.Error(), -1, nil)
	}

	resolver := c.Resolver
	if resolver == "" {
		conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil || len(conf.Servers) == 0 {
			return failure(fmt.Sprintf("no resolver available: %v", err), -1, nil)
		}
		resolver = conf.Servers[0] + ":" + conf.Port
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	msg.RecursionDesired = true

	client := &dns.Client{Timeout: timeout}
	start := time.Now()
	resp, _, err := client.ExchangeContext(ctx, msg, resolver)
	elapsed := int(time.Since(start).Milliseconds())
	if err != nil {
		return failure(fmt.Sprintf("DNS query failed: %v", err), elapsed, nil)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return failure(fmt.Sprintf("DNS query for %s returned %s", host, dns.RcodeToString[resp.Rcode]),
			elapsed, map[string]any{"hostname": host, "record_type": recordType})
	}

	values := make([]string, 0, len(resp.Answer))
	for _, rr := range resp.Answer {
		switch r := rr.(type) {
		case *dns.A:
			values = append(values, r.A.String())
		case *dns.AAAA:
			values = append(values, r.AAAA.String())
		case *dns.CNAME:
			values = append(values, strings.TrimSuffix(r.Target, "."))
		case *dns.MX:
			values = append(values, strings.TrimSuffix(r.Mx, "."))
		}
	}
	sort.Strings(values)

	data := map[string]any{
		"hostname":        host,
		"record_type":     recordType,
		"resolved_values": values,
	}

	if len(values) == 0 {
		return failure(fmt.Sprintf("no %s records found for %s", recordType, host), elapsed, data)
	}

	if len(expected) > 0 {
		missing, unexpected := DiffRecordSets(expected, values)
		if len(missing) > 0 || len(unexpected) > 0 {
			data["missing_values"] = missing
			data["unexpected_values"] = unexpected
			return failure(formatRecordMismatch(missing, unexpected), elapsed, data)
		}
	}
	return success(elapsed, data)
}

// DiffRecordSets compares expected and resolved record values as sets,
// case-insensitively, and returns what was expected but absent and what
// was resolved but not expected. Empty slices on both sides mean the
// sets match exactly.
func DiffRecordSets(expected, resolved []string) (missing, unexpected []string) {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

	want := make(map[string]string, len(expected))
	for _, v := range expected {
		want[norm(v)] = v
	}
	got := make(map[string]string, len(resolved))
	for _, v := range resolved {
		got[norm(v)] = v
	}

	for k, v := range want {
		if _, ok := got[k]; !ok {
			missing = append(missing, v)
		}
	}
	for k, v := range got {
		if _, ok := want[k]; !ok {
			unexpected = append(unexpected, v)
		}
	}
	sort.Strings(missing)
	sort.Strings(unexpected)
	return missing, unexpected
}

func formatRecordMismatch(missing, unexpected []string) string {
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing values: "+strings.Join(missing, ", "))
	}
	if len(unexpected) > 0 {
		parts = append(parts, "unexpected values: "+strings.Join(unexpected, ", "))
	}
	return "DNS records do not match: " + strings.Join(parts, "; ")
}
