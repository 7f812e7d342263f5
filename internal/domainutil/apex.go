package domainutil

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// Normalize 对域名进行规范化处理
// 规则：
//   - 小写
//   - trim 空格
//   - 去掉末尾 .
//   - 拒绝 IP（IPv4/IPv6）
//   - 拒绝空字符串/非法字符
//
// 国际化域名保留 unicode 形式，写入 nginx 配置前再用 ToASCII 转换。
func Normalize(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", fmt.Errorf("domain must not be empty")
	}

	host = strings.ToLower(host)
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", fmt.Errorf("domain must not be empty after normalization")
	}

	if net.ParseIP(strings.Trim(host, "[]")) != nil {
		return "", fmt.Errorf("IP address is not allowed as domain: %s", host)
	}

	if strings.HasPrefix(host, ".") || strings.HasPrefix(host, "-") {
		return "", fmt.Errorf("domain must not start with '.' or '-': %s", host)
	}

	// 校验合法性：ASCII 部分只允许 a-z 0-9 . - *
	for _, r := range host {
		if r > 127 {
			continue
		}
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '*') {
			return "", fmt.Errorf("domain contains invalid character: %c in %s", r, host)
		}
	}

	if strings.Contains(host[1:], "*") {
		return "", fmt.Errorf("wildcard is only allowed as the first label: %s", host)
	}

	return host, nil
}

// NormalizeList normalizes every entry and drops case-insensitive duplicates,
// keeping the first occurrence order.
func NormalizeList(domains []string) ([]string, error) {
	out := make([]string, 0, len(domains))
	seen := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		n, err := Normalize(d)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

// ToASCII returns the punycode form used in nginx server_name directives.
// A leading wildcard label is kept as is.
func ToASCII(domain string) string {
	prefix := ""
	if strings.HasPrefix(domain, "*.") {
		prefix, domain = "*.", domain[2:]
	}
	ascii, err := idna.Punycode.ToASCII(domain)
	if err != nil {
		return prefix + domain
	}
	return prefix + ascii
}

// IsWildcard reports whether the domain starts with a "*." label
func IsWildcard(domain string) bool {
	return strings.HasPrefix(domain, "*.")
}

// EqualFold compares two host names the way conflict checks do
func EqualFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
