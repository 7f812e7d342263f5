package certificate

import (
	"context"
	"time"

	"proxy_manager/internal/conflict"
	"proxy_manager/internal/model"
	"proxy_manager/internal/nginx"
	"proxy_manager/internal/pipeline"
)

// issue runs the whole issuance under the nginx lock:
//
//	pause in-use hosts -> challenge branch -> resume in-use hosts -> reload
//
// Any failure restores the in-use hosts and reloads through the single
// compensation of the pause step; branch-specific cleanup is declared on
// the branch's own steps.
func (m *Manager) issue(ctx context.Context, cert *model.Certificate, inUse *conflict.InUseResult) error {
	dns := cert.Settings().DNSChallenge
	return m.nginx.Do(ctx, func(s *nginx.Session) error {
		// holding the lock, the sequence runs to completion
		ctx := context.WithoutCancel(ctx)
		steps := []pipeline.Step{m.pauseStep(s, inUse)}
		if dns {
			steps = append(steps, m.dnsSteps(s, cert)...)
		} else {
			steps = append(steps, m.httpSteps(s, cert)...)
		}
		steps = append(steps,
			pipeline.Step{
				Name: "resume in-use hosts",
				Run:  func(ctx context.Context) error { return enableInUse(s, inUse) },
			},
			reloadStep(s),
		)

		logger := m.logger.WithField("certificate_id", cert.ID)
		return pipeline.Run(ctx, logger, steps...)
	})
}

func (m *Manager) pauseStep(s *nginx.Session, inUse *conflict.InUseResult) pipeline.Step {
	return pipeline.Step{
		Name: "pause in-use hosts",
		Run: func(ctx context.Context) error {
			return disableInUse(s, inUse)
		},
		Compensate: func(ctx context.Context) error {
			if err := enableInUse(s, inUse); err != nil {
				m.logger.WithError(err).Error("Could not restore in-use hosts")
			}
			return s.Reload(ctx)
		},
	}
}

func (m *Manager) httpSteps(s *nginx.Session, cert *model.Certificate) []pipeline.Step {
	return []pipeline.Step{
		{
			Name: "write challenge vhost",
			Run: func(ctx context.Context) error {
				return s.GenerateChallengeConfig(cert)
			},
			Compensate: func(ctx context.Context) error {
				return s.DeleteChallengeConfig(cert)
			},
		},
		reloadStep(s),
		{
			Name: "settle",
			Run: func(ctx context.Context) error {
				// not cancellable, the vhost is already live
				if m.opts.SettleDelay > 0 {
					time.Sleep(m.opts.SettleDelay)
				}
				return nil
			},
		},
		{
			Name: "request certificate",
			Run: func(ctx context.Context) error {
				_, err := m.acme.RequestHTTP(ctx, cert)
				return err
			},
		},
		{
			Name: "remove challenge vhost",
			Run: func(ctx context.Context) error {
				return s.DeleteChallengeConfig(cert)
			},
		},
		reloadStep(s),
	}
}

func (m *Manager) dnsSteps(s *nginx.Session, cert *model.Certificate) []pipeline.Step {
	return []pipeline.Step{
		{
			Name: "write credentials",
			Run: func(ctx context.Context) error {
				_, err := m.acme.WriteCredentials(ctx, cert)
				return err
			},
			Compensate: func(ctx context.Context) error {
				return m.acme.RemoveCredentials(cert)
			},
		},
		reloadStep(s),
		{
			Name: "request certificate",
			Run: func(ctx context.Context) error {
				_, err := m.acme.RequestDNS(ctx, cert)
				return err
			},
		},
		reloadStep(s),
	}
}

func reloadStep(s *nginx.Session) pipeline.Step {
	return pipeline.Step{
		Name: "reload nginx",
		Run:  s.Reload,
	}
}

// DisableInUseHosts removes the configs of the enabled hosts in inUse
// without reloading.
func (m *Manager) DisableInUseHosts(ctx context.Context, inUse *conflict.InUseResult) error {
	return m.nginx.Do(ctx, func(s *nginx.Session) error { return disableInUse(s, inUse) })
}

// EnableInUseHosts writes the configs of the enabled hosts in inUse without
// reloading. Disabled hosts and hosts whose last config was rejected had no
// active config before the pause and get none.
func (m *Manager) EnableInUseHosts(ctx context.Context, inUse *conflict.InUseResult) error {
	return m.nginx.Do(ctx, func(s *nginx.Session) error { return enableInUse(s, inUse) })
}

func disableInUse(s *nginx.Session, inUse *conflict.InUseResult) error {
	return s.BulkDeleteConfigs(liveHosts(inUse))
}

func enableInUse(s *nginx.Session, inUse *conflict.InUseResult) error {
	return s.BulkGenerateConfigs(liveHosts(inUse))
}

// liveHosts are the in-use hosts nginx is currently serving. Rejected
// configs keep their .err file through a pause.
func liveHosts(inUse *conflict.InUseResult) []model.Host {
	if inUse == nil || inUse.TotalCount == 0 {
		return nil
	}
	var live []model.Host
	for _, h := range inUse.Hosts() {
		if h.Enabled && h.ConfigState != model.ConfigStateError {
			live = append(live, h)
		}
	}
	return live
}
