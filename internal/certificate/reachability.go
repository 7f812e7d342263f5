package certificate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"proxy_manager/internal/access"
	"proxy_manager/internal/apperr"
	"proxy_manager/internal/domainutil"
)

// Reachability results of TestHTTPChallenge
const (
	ReachOK        = "ok"
	ReachWrongData = "wrong-data"
	ReachNotFound  = "404"
	ReachNoHost    = "no-host"
	ReachFailed    = "failed"
)

const (
	challengeTestFile = "test-challenge"
	challengeTestBody = "Success"
)

// TestHTTPChallenge checks that each domain routes
// /.well-known/acme-challenge/ to this server, which is what an HTTP-01
// challenge needs. A marker file is placed in the webroot for the duration
// of the test.
func (m *Manager) TestHTTPChallenge(ctx context.Context, domains []string) (map[string]string, error) {
	if err := m.authz.Can(ctx, perm(access.ActionList)); err != nil {
		return nil, err
	}
	if len(domains) == 0 {
		return nil, apperr.Validation("No domains provided")
	}
	domains, err := domainutil.NormalizeList(domains)
	if err != nil {
		return nil, apperr.ValidationWrap(err, "invalid domain names")
	}
	for _, d := range domains {
		if domainutil.IsWildcard(d) {
			return nil, apperr.Validation("wildcard domain %s cannot be reached over HTTP", d)
		}
	}

	settings := m.acme.Settings()
	dir := filepath.Join(settings.Webroot, ".well-known", "acme-challenge")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create challenge dir: %w", err)
	}
	marker := filepath.Join(dir, challengeTestFile)
	if err := os.WriteFile(marker, []byte(challengeTestBody), 0644); err != nil {
		return nil, fmt.Errorf("write challenge test file: %w", err)
	}
	defer func() {
		if err := os.Remove(marker); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.WithError(err).Warn("Could not remove challenge test file")
		}
	}()

	results := make(map[string]string, len(domains))
	for _, d := range domains {
		results[d] = m.reach(ctx, d)
	}
	return results, nil
}

func (m *Manager) reach(ctx context.Context, domain string) string {
	logger := m.logger.WithField("domain", domain)
	url := "http://" + domain + "/.well-known/acme-challenge/" + challengeTestFile
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		logger.WithError(err).Warn("Could not build challenge test request")
		return ReachFailed
	}
	resp, err := m.opts.HTTPClient.Do(req)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			logger.Info("HTTP challenge test failed, host not found")
			return ReachNoHost
		}
		logger.WithError(err).Warn("HTTP challenge test failed")
		return ReachFailed
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if err != nil {
			logger.WithError(err).Warn("HTTP challenge test failed reading the response")
			return ReachFailed
		}
		if strings.TrimSpace(string(body)) == challengeTestBody {
			return ReachOK
		}
		logger.WithField("body", string(body)).Info("HTTP challenge test returned invalid data")
		return ReachWrongData
	case http.StatusNotFound:
		logger.Info("HTTP challenge test failed with 404")
		return ReachNotFound
	default:
		logger.Infof("HTTP challenge test failed with %d", resp.StatusCode)
		return fmt.Sprintf("other:%d", resp.StatusCode)
	}
}
