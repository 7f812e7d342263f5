// Package conflict answers which hosts claim a given domain name.
package conflict

import (
	"context"
	"fmt"
	"strings"

	"proxy_manager/internal/apperr"
	"proxy_manager/internal/domainutil"
	"proxy_manager/internal/model"
)

// HostLister lists non-deleted hosts of the given types
type HostLister interface {
	ListHosts(ctx context.Context, types ...model.HostType) ([]model.Host, error)
}

// HostnameCheck is the answer to a single hostname lookup
type HostnameCheck struct {
	Hostname string `json:"hostname"`
	IsTaken  bool   `json:"is_taken"`
}

// InUseResult groups hosts whose domains intersect a domain set
type InUseResult struct {
	ByType     map[model.HostType][]model.Host `json:"by_type"`
	TotalCount int                             `json:"total_count"`
}

// Hosts returns every host of the result in pause order (proxy, redirection, dead)
func (r *InUseResult) Hosts() []model.Host {
	if r == nil {
		return nil
	}
	out := make([]model.Host, 0, r.TotalCount)
	for _, t := range model.DomainHostTypes {
		out = append(out, r.ByType[t]...)
	}
	return out
}

// Resolver detects domain-name conflicts across all host variants
type Resolver struct {
	hosts HostLister
}

// NewResolver creates a Resolver
func NewResolver(hosts HostLister) *Resolver {
	return &Resolver{hosts: hosts}
}

// IsHostnameTaken reports whether any non-deleted host other than exclude
// serves hostname. Matching is case-insensitive and exact.
func (r *Resolver) IsHostnameTaken(ctx context.Context, hostname string, exclude *model.HostRef) (HostnameCheck, error) {
	check := HostnameCheck{Hostname: hostname}
	all, err := r.hosts.ListHosts(ctx, model.DomainHostTypes...)
	if err != nil {
		return check, fmt.Errorf("list hosts: %w", err)
	}
	for i := range all {
		h := &all[i]
		if exclude != nil && h.Type == exclude.Type && h.ID == exclude.ID {
			continue
		}
		if hasDomain(h, hostname) {
			check.IsTaken = true
			return check, nil
		}
	}
	return check, nil
}

// GetHostsWithDomains returns, per variant, the hosts serving at least one of
// domains.
func (r *Resolver) GetHostsWithDomains(ctx context.Context, domains []string) (*InUseResult, error) {
	res := &InUseResult{ByType: make(map[model.HostType][]model.Host, len(model.DomainHostTypes))}
	for _, t := range model.DomainHostTypes {
		res.ByType[t] = []model.Host{}
	}
	if len(domains) == 0 {
		return res, nil
	}

	all, err := r.hosts.ListHosts(ctx, model.DomainHostTypes...)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	for i := range all {
		h := all[i]
		for _, d := range domains {
			if hasDomain(&h, d) {
				res.ByType[h.Type] = append(res.ByType[h.Type], h)
				res.TotalCount++
				break
			}
		}
	}
	return res, nil
}

// CheckDomains fails with a validation error for the first domain already
// served by another host. Duplicate input names are checked once.
func (r *Resolver) CheckDomains(ctx context.Context, domains []string, exclude *model.HostRef) error {
	seen := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		key := strings.ToLower(strings.TrimSpace(d))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		check, err := r.IsHostnameTaken(ctx, d, exclude)
		if err != nil {
			return err
		}
		if check.IsTaken {
			return apperr.Validation("%s is already in use", d)
		}
	}
	return nil
}

func hasDomain(h *model.Host, hostname string) bool {
	for _, d := range h.DomainNames {
		if domainutil.EqualFold(d, hostname) {
			return true
		}
	}
	return false
}
