// Package acme drives the certbot and openssl binaries for certificate
// issuance, renewal, revocation and validation.
package acme

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"proxy_manager/internal/apperr"
	"proxy_manager/internal/model"
	"proxy_manager/internal/shell"
)

const preferredChallenges = "dns,http"

// Certbot runs certbot. At most one certbot process runs at a time.
type Certbot struct {
	settings Settings
	shell    shell.Runner
	logger   *logrus.Entry
	sem      chan struct{}

	mu        sync.Mutex
	installed map[string]bool
}

// NewCertbot creates a Certbot client
func NewCertbot(settings Settings, sh shell.Runner, logger *logrus.Entry) *Certbot {
	settings.setDefaults()
	return &Certbot{
		settings:  settings,
		shell:     sh,
		logger:    logger.WithField("component", "certbot"),
		sem:       make(chan struct{}, 1),
		installed: make(map[string]bool),
	}
}

// Settings returns the effective settings
func (c *Certbot) Settings() Settings {
	return c.settings
}

// RequestHTTP issues cert with the webroot authenticator
func (c *Certbot) RequestHTTP(ctx context.Context, cert *model.Certificate) (string, error) {
	c.logger.Infof("Requesting Let's Encrypt certificate for #%d: %s", cert.ID, strings.Join(cert.DomainNames, ", "))
	out, err := c.run(ctx, c.HTTPCommand(cert))
	if err != nil {
		return out, apperr.Challenge(err, "HTTP-01 challenge failed for certificate %d", cert.ID)
	}
	return out, nil
}

// RequestDNS issues cert with its DNS plugin. The credentials file must
// already be written.
func (c *Certbot) RequestDNS(ctx context.Context, cert *model.Certificate) (string, error) {
	cmd, err := c.DNSCommand(cert)
	if err != nil {
		return "", err
	}
	plugin, _ := LookupPlugin(cert.Settings().DNSProvider)
	if err := c.installPlugin(ctx, plugin); err != nil {
		return "", err
	}

	c.logger.Infof("Requesting Let's Encrypt certificate via %s for #%d: %s", plugin.DisplayName, cert.ID, strings.Join(cert.DomainNames, ", "))
	out, err := c.run(ctx, cmd)
	if err != nil {
		return out, apperr.Challenge(err, "DNS-01 challenge via %s failed for certificate %d", plugin.DisplayName, cert.ID)
	}
	return out, nil
}

// Renew forces renewal of cert
func (c *Certbot) Renew(ctx context.Context, cert *model.Certificate) (string, error) {
	cmd, err := c.RenewCommand(cert)
	if err != nil {
		return "", err
	}
	c.logger.Infof("Renewing Let's Encrypt certificate #%d: %s", cert.ID, strings.Join(cert.DomainNames, ", "))
	out, err := c.run(ctx, cmd)
	if err != nil {
		return out, apperr.Challenge(err, "renewal failed for certificate %d", cert.ID)
	}
	return out, nil
}

// Revoke revokes cert and deletes its material, then removes the DNS
// credentials file whatever the outcome.
func (c *Certbot) Revoke(ctx context.Context, cert *model.Certificate) (string, error) {
	c.logger.Infof("Revoking Let's Encrypt certificate #%d: %s", cert.ID, strings.Join(cert.DomainNames, ", "))
	out, err := c.run(ctx, c.RevokeCommand(cert))
	if rerr := c.RemoveCredentials(cert); rerr != nil {
		c.logger.WithError(rerr).Warn("Could not remove credentials file")
	}
	if err != nil {
		return out, fmt.Errorf("revoke certificate %d: %w", cert.ID, err)
	}
	return out, nil
}

// HTTPCommand builds the certonly invocation for the webroot authenticator
func (c *Certbot) HTTPCommand(cert *model.Certificate) shell.Command {
	s := &c.settings
	args := c.baseArgs("certonly")
	args = append(args,
		"--cert-name", cert.CertName(s.CertPrefix),
		"--agree-tos",
		"--authenticator", "webroot",
		"--webroot-path", s.Webroot,
	)
	args = append(args, emailArgs(cert)...)
	args = append(args,
		"--preferred-challenges", preferredChallenges,
		"--domains", strings.Join(cert.DomainNames, ","),
	)
	return shell.Command{Name: s.Bin, Args: append(args, c.serverArgs()...)}
}

// DNSCommand builds the certonly invocation for the DNS plugin of cert
func (c *Certbot) DNSCommand(cert *model.Certificate) (shell.Command, error) {
	s := &c.settings
	meta := cert.Settings()
	plugin, ok := LookupPlugin(meta.DNSProvider)
	if !ok {
		return shell.Command{}, apperr.Validation("Unknown DNS provider '%s'", meta.DNSProvider)
	}

	credentials := s.CredentialsPath(cert)
	args := c.baseArgs("certonly")
	args = append(args,
		"--cert-name", cert.CertName(s.CertPrefix),
		"--agree-tos",
	)
	args = append(args, emailArgs(cert)...)
	args = append(args,
		"--domains", strings.Join(cert.DomainNames, ","),
		"--authenticator", plugin.FullPluginName,
	)
	if plugin.HasCredentialsFlag() {
		args = append(args, "--"+plugin.FullPluginName+"-credentials", credentials)
	}
	if plugin.ID == ProviderDuckDNS {
		args = append(args, "--dns-duckdns-no-txt-restore")
	}
	if meta.PropagationSeconds != nil {
		args = append(args, "--"+plugin.FullPluginName+"-propagation-seconds", itoa(*meta.PropagationSeconds))
	}

	return shell.Command{Name: s.Bin, Args: append(args, c.serverArgs()...), Env: providerEnv(plugin, credentials)}, nil
}

// RenewCommand builds the forced renew invocation of cert
func (c *Certbot) RenewCommand(cert *model.Certificate) (shell.Command, error) {
	s := &c.settings
	meta := cert.Settings()
	args := c.baseArgs("renew")
	args = append(args,
		"--force-renewal",
		"--cert-name", cert.CertName(s.CertPrefix),
	)
	if !meta.DNSChallenge {
		args = append(args, "--preferred-challenges", preferredChallenges)
	}
	args = append(args,
		"--no-random-sleep-on-renew",
		"--disable-hook-validation",
	)
	cmd := shell.Command{Name: s.Bin, Args: append(args, c.serverArgs()...)}

	if meta.DNSChallenge {
		plugin, ok := LookupPlugin(meta.DNSProvider)
		if !ok {
			return shell.Command{}, apperr.Validation("Unknown DNS provider '%s'", meta.DNSProvider)
		}
		cmd.Env = providerEnv(plugin, s.CredentialsPath(cert))
	}
	return cmd, nil
}

// RevokeCommand builds the revoke invocation of cert
func (c *Certbot) RevokeCommand(cert *model.Certificate) shell.Command {
	s := &c.settings
	args := c.baseArgs("revoke")
	args = append(args,
		"--cert-path", s.FullchainPath(cert),
		"--delete-after-revoke",
	)
	return shell.Command{Name: s.Bin, Args: append(args, c.serverArgs()...)}
}

func (c *Certbot) baseArgs(subcommand string) []string {
	s := &c.settings
	args := []string{subcommand, "--non-interactive"}
	if s.ConfigFile != "" {
		args = append(args, "--config", s.ConfigFile)
	}
	return append(args,
		"--config-dir", s.ConfigDir,
		"--work-dir", s.WorkDir,
		"--logs-dir", s.LogsDir,
	)
}

func (c *Certbot) serverArgs() []string {
	if c.settings.Staging {
		return []string{"--staging"}
	}
	if c.settings.Server != "" {
		return []string{"--server", c.settings.Server}
	}
	return nil
}

func emailArgs(cert *model.Certificate) []string {
	if email := cert.Settings().LetsEncryptEmail; email != "" {
		return []string{"--email", email}
	}
	return []string{"--register-unsafely-without-email"}
}

// route53 reads credentials only from the AWS config file
func providerEnv(plugin DNSPlugin, credentials string) []string {
	if plugin.ID == ProviderRoute53 {
		return []string{"AWS_CONFIG_FILE=" + credentials}
	}
	return nil
}

func (c *Certbot) installPlugin(ctx context.Context, plugin DNSPlugin) error {
	if !c.settings.InstallPlugins {
		return nil
	}
	c.mu.Lock()
	done := c.installed[plugin.ID]
	c.mu.Unlock()
	if done {
		return nil
	}

	c.logger.Infof("Installing %s", plugin.PackageName)
	if _, err := c.shell.Run(ctx, shell.Command{Name: c.settings.PipBin, Args: plugin.PipArgs()}); err != nil {
		return fmt.Errorf("install %s: %w", plugin.PackageName, err)
	}

	c.mu.Lock()
	c.installed[plugin.ID] = true
	c.mu.Unlock()
	return nil
}

func (c *Certbot) run(ctx context.Context, cmd shell.Command) (string, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-c.sem }()

	c.logger.Infof("Command: %s", cmd)
	out, err := c.shell.Run(ctx, cmd)
	if err != nil {
		c.logger.WithError(err).Error("certbot failed")
		return out, err
	}
	if out = strings.TrimSpace(out); out != "" {
		c.logger.Info(out)
	}
	return out, nil
}
