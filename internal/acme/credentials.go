package acme

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"proxy_manager/internal/apperr"
	"proxy_manager/internal/model"
)

// WriteCredentials writes the DNS provider credentials of cert to its
// owner-only credentials file and returns the path.
func (c *Certbot) WriteCredentials(ctx context.Context, cert *model.Certificate) (string, error) {
	meta := cert.Settings()
	plugin, ok := LookupPlugin(meta.DNSProvider)
	if !ok {
		return "", apperr.Validation("Unknown DNS provider '%s'", meta.DNSProvider)
	}

	path := c.settings.CredentialsPath(cert)
	if err := os.MkdirAll(c.settings.CredentialsDir, 0700); err != nil {
		return "", fmt.Errorf("create credentials dir: %w", err)
	}

	content := meta.DNSProviderCredentials
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return "", fmt.Errorf("write credentials: %w", err)
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(path, 0600); err != nil {
		return "", fmt.Errorf("chmod credentials: %w", err)
	}

	if plugin.ID == ProviderRoute53 {
		if err := checkRoute53Credentials(ctx, path); err != nil {
			_ = os.Remove(path)
			return "", err
		}
	}
	return path, nil
}

// RemoveCredentials deletes the credentials file of cert if present
func (c *Certbot) RemoveCredentials(cert *model.Certificate) error {
	err := os.Remove(c.settings.CredentialsPath(cert))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// checkRoute53Credentials parses the file the way the AWS SDK used by the
// route53 plugin will and fails early when the default profile cannot
// yield credentials.
func checkRoute53Credentials(ctx context.Context, path string) error {
	profile, err := awsconfig.LoadSharedConfigProfile(ctx, "default", func(o *awsconfig.LoadSharedConfigOptions) {
		o.ConfigFiles = []string{path}
		o.CredentialsFiles = []string{path}
	})
	if err != nil {
		return apperr.ValidationWrap(err, "invalid Route 53 credentials")
	}
	if profile.Credentials.HasKeys() || profile.RoleARN != "" || profile.CredentialProcess != "" ||
		profile.SSOSessionName != "" || profile.WebIdentityTokenFile != "" {
		return nil
	}
	return apperr.Validation("invalid Route 53 credentials: no aws_access_key_id/aws_secret_access_key in [default]")
}
