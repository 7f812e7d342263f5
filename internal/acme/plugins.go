package acme

import (
	"sort"
	"strconv"
	"strings"
)

// DNSPlugin describes a certbot DNS authenticator plugin
type DNSPlugin struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	PackageName    string `json:"package_name"`
	PackageVersion string `json:"package_version,omitempty"`
	// Dependencies are extra pip requirements, space separated
	Dependencies   string `json:"dependencies,omitempty"`
	FullPluginName string `json:"full_plugin_name"`
	// IndexURL replaces PyPI; the package is then installed unpinned
	IndexURL       string `json:"-"`
}

// PipArgs returns the pip install arguments for the plugin
func (p DNSPlugin) PipArgs() []string {
	args := []string{"install", "--no-cache-dir"}
	if p.IndexURL != "" {
		return append(args, p.PackageName, "--index-url", p.IndexURL, "--prefer-binary")
	}
	req := p.PackageName
	if p.PackageVersion != "" {
		req += "==" + p.PackageVersion
	}
	args = append(args, req)
	return append(args, strings.Fields(p.Dependencies)...)
}

// Provider quirks
const (
	ProviderRoute53 = "route53" // credentials only through AWS_CONFIG_FILE
	ProviderDuckDNS = "duckdns" // needs --dns-duckdns-no-txt-restore
)

// HasCredentialsFlag reports whether the plugin accepts --<plugin>-credentials
func (p DNSPlugin) HasCredentialsFlag() bool {
	return p.ID != ProviderRoute53
}

func plugin(id, display, pkg, version, full string) DNSPlugin {
	return DNSPlugin{ID: id, DisplayName: display, PackageName: pkg, PackageVersion: version, FullPluginName: full}
}

// piwheels carries prebuilt wheels of the cloudflare plugin for arm boards
const piwheelsIndex = "https://www.piwheels.org/simple"

var dnsPlugins = map[string]DNSPlugin{}

func init() {
	for _, p := range []DNSPlugin{
		plugin("acmedns", "ACME-DNS", "certbot-dns-acmedns", "0.1.0", "certbot-dns-acmedns:dns-acmedns"),
		plugin("aliyun", "Aliyun", "certbot-dns-aliyun", "0.38.1", "certbot-dns-aliyun:dns-aliyun"),
		plugin("azure", "Azure", "certbot-dns-azure", "1.2.0", "dns-azure"),
		plugin("cloudflare", "Cloudflare", "certbot-dns-cloudflare", "1.8.0", "dns-cloudflare"),
		plugin("cloudns", "ClouDNS", "certbot-dns-cloudns", "0.4.0", "dns-cloudns"),
		plugin("cloudxns", "CloudXNS", "certbot-dns-cloudxns", "1.8.0", "dns-cloudxns"),
		plugin("corenetworks", "Core Networks", "certbot-dns-corenetworks", "0.1.4", "certbot-dns-corenetworks:dns-corenetworks"),
		plugin("cpanel", "cPanel", "certbot-dns-cpanel", "0.2.2", "certbot-dns-cpanel:cpanel"),
		plugin("duckdns", "DuckDNS", "certbot-dns-duckdns", "0.6", "dns-duckdns"),
		plugin("digitalocean", "DigitalOcean", "certbot-dns-digitalocean", "1.8.0", "dns-digitalocean"),
		plugin("directadmin", "DirectAdmin", "certbot-dns-directadmin", "0.0.20", "certbot-dns-directadmin:directadmin"),
		plugin("dnsimple", "DNSimple", "certbot-dns-dnsimple", "1.8.0", "dns-dnsimple"),
		plugin("dnsmadeeasy", "DNS Made Easy", "certbot-dns-dnsmadeeasy", "1.8.0", "dns-dnsmadeeasy"),
		plugin("dnspod", "DNSPod", "certbot-dns-dnspod", "0.1.0", "certbot-dns-dnspod:dns-dnspod"),
		plugin("dynu", "Dynu", "certbot-dns-dynu", "0.0.1", "certbot-dns-dynu:dns-dynu"),
		plugin("eurodns", "EuroDNS", "certbot-dns-eurodns", "0.0.4", "certbot-dns-eurodns:dns-eurodns"),
		plugin("gandi", "Gandi Live DNS", "certbot_plugin_gandi", "1.2.5", "certbot-plugin-gandi:dns"),
		plugin("godaddy", "GoDaddy", "certbot-dns-godaddy", "0.2.0", "dns-godaddy"),
		plugin("google", "Google", "certbot-dns-google", "1.8.0", "dns-google"),
		plugin("hetzner", "Hetzner", "certbot-dns-hetzner", "1.0.4", "certbot-dns-hetzner:dns-hetzner"),
		plugin("infomaniak", "Infomaniak", "certbot-dns-infomaniak", "0.1.12", "certbot-dns-infomaniak:dns-infomaniak"),
		plugin("inwx", "INWX", "certbot-dns-inwx", "2.1.2", "certbot-dns-inwx:dns-inwx"),
		plugin("ionos", "IONOS", "certbot-dns-ionos", "0.0.7", "certbot-dns-ionos:dns-ionos"),
		plugin("ispconfig", "ISPConfig", "certbot-dns-ispconfig", "0.2.0", "certbot-dns-ispconfig:dns-ispconfig"),
		plugin("isset", "Isset", "certbot-dns-isset", "0.0.3", "certbot-dns-isset:dns-isset"),
		plugin("joker", "Joker", "certbot-dns-joker", "1.1.0", "certbot-dns-joker:dns-joker"),
		plugin("linode", "Linode", "certbot-dns-linode", "1.8.0", "dns-linode"),
		plugin("loopia", "Loopia", "certbot-dns-loopia", "1.0.0", "dns-loopia"),
		plugin("luadns", "LuaDNS", "certbot-dns-luadns", "1.8.0", "dns-luadns"),
		plugin("netcup", "netcup", "certbot-dns-netcup", "1.0.0", "certbot-dns-netcup:dns-netcup"),
		plugin("njalla", "Njalla", "certbot-dns-njalla", "1.0.0", "certbot-dns-njalla:dns-njalla"),
		plugin("nsone", "NS1", "certbot-dns-nsone", "1.8.0", "dns-nsone"),
		plugin("ovh", "OVH", "certbot-dns-ovh", "1.8.0", "dns-ovh"),
		plugin("porkbun", "Porkbun", "certbot-dns-porkbun", "0.2", "dns-porkbun"),
		plugin("powerdns", "PowerDNS", "certbot-dns-powerdns", "0.2.0", "certbot-dns-powerdns:dns-powerdns"),
		plugin("regru", "reg.ru", "certbot-regru", "1.0.2", "certbot-regru:dns"),
		plugin("rfc2136", "RFC 2136", "certbot-dns-rfc2136", "1.8.0", "dns-rfc2136"),
		plugin("route53", "Route 53 (Amazon)", "certbot-dns-route53", "1.8.0", "dns-route53"),
		plugin("transip", "TransIP", "certbot-dns-transip", "0.3.3", "certbot-dns-transip:dns-transip"),
		plugin("vultr", "Vultr", "certbot-dns-vultr", "1.0.3", "certbot-dns-vultr:dns-vultr"),
	} {
		if p.ID == "cloudflare" {
			p.Dependencies = "cloudflare"
			p.IndexURL = piwheelsIndex
		}
		dnsPlugins[p.ID] = p
	}
}

// LookupPlugin returns the DNS plugin registered under id
func LookupPlugin(id string) (DNSPlugin, bool) {
	p, ok := dnsPlugins[id]
	return p, ok
}

// Plugins lists every known DNS plugin ordered by id
func Plugins() []DNSPlugin {
	out := make([]DNSPlugin, 0, len(dnsPlugins))
	for _, p := range dnsPlugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
