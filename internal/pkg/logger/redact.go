package logger

import (
	"net"
	"regexp"
	"strings"
)

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	stripeKeyLike = regexp.MustCompile(`\b(sk|rk|whsec)_(live|test)?_?[A-Za-z0-9]{8,}\b`)
	secretKeys    = []string{"secret", "password", "token", "api_key", "authorization"}
)

// scrub masks a field value based on its key and content.
func scrub(key, val string) string {
	k := strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(k, s) {
			return "[redacted]"
		}
	}
	switch {
	case strings.Contains(k, "email"):
		return RedactEmail(val)
	case k == "ip" || strings.HasSuffix(k, "_ip") || strings.HasPrefix(k, "ip_"):
		return RedactIP(val)
	}
	val = stripeKeyLike.ReplaceAllString(val, "[redacted]")
	return emailPattern.ReplaceAllStringFunc(val, RedactEmail)
}

// RedactEmail keeps the first two characters of the local part:
// "john.doe@example.com" becomes "jo***@example.com". Shorter local parts
// are masked entirely.
func RedactEmail(email string) string {
	name, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(name) > 2 {
		return name[:2] + "***@" + domain
	}
	return "***@" + domain
}

// RedactIP keeps the /24 of an IPv4 address and the /48 of an IPv6 one.
// Unparseable input is masked entirely.
func RedactIP(ip string) string {
	host := ip
	if h, _, err := net.SplitHostPort(ip); err == nil {
		host = h
	}
	parsed := net.ParseIP(host)
	if parsed == nil {
		return "***"
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return parsed.Mask(net.CIDRMask(48, 128)).String()
}
