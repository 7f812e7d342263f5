package acme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPluginsArePinned(t *testing.T) {
	for _, p := range Plugins() {
		assert.NotEmpty(t, p.PackageVersion, p.ID)
	}
	cf, ok := LookupPlugin("cloudflare")
	require.True(t, ok)
	assert.Equal(t, "cloudflare", cf.Dependencies)
}

func TestPipArgs(t *testing.T) {
	tests := []struct {
		name   string
		plugin DNSPlugin
		want   []string
	}{
		{
			"pinned",
			DNSPlugin{PackageName: "certbot-dns-ovh", PackageVersion: "1.8.0"},
			[]string{"install", "--no-cache-dir", "certbot-dns-ovh==1.8.0"},
		},
		{
			"dependencies",
			DNSPlugin{PackageName: "certbot-dns-x", PackageVersion: "0.1", Dependencies: " dep-a  dep-b==2 "},
			[]string{"install", "--no-cache-dir", "certbot-dns-x==0.1", "dep-a", "dep-b==2"},
		},
		{
			"unpinned",
			DNSPlugin{PackageName: "certbot-dns-y"},
			[]string{"install", "--no-cache-dir", "certbot-dns-y"},
		},
		{
			"custom index",
			DNSPlugin{PackageName: "certbot-dns-z", PackageVersion: "3", Dependencies: "z", IndexURL: "https://pkgs.example.com/simple"},
			[]string{"install", "--no-cache-dir", "certbot-dns-z", "--index-url", "https://pkgs.example.com/simple", "--prefer-binary"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.plugin.PipArgs())
		})
	}
}
