// Package nginx renders host records into nginx configuration files and
// keeps the running nginx in step with them.
package nginx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"proxy_manager/internal/apperr"
	"proxy_manager/internal/model"
	"proxy_manager/internal/shell"
)

// StatusStore persists the reconciliation outcome of a host
type StatusStore interface {
	PatchHostStatus(ctx context.Context, id int, meta datatypes.JSONMap, state model.ConfigState, path string) error
}

// State is the reconciliation state of one host config
type State struct {
	State model.ConfigState
	Path  string
	Err   string
}

// Reconciler converts host records into validated on-disk configs. Every
// mutation runs under a process-wide lock; use Do to hold it across a
// compound sequence.
type Reconciler struct {
	opts     Options
	runner   *Runner
	renderer *Renderer
	store    StatusStore
	logger   *logrus.Entry

	sem chan struct{}

	mu     sync.RWMutex
	states map[model.HostRef]State
}

// NewReconciler creates a Reconciler
func NewReconciler(opts Options, sh shell.Runner, store StatusStore, logger *logrus.Entry) (*Reconciler, error) {
	opts.setDefaults()
	logger = logger.WithField("component", "nginx")

	r := &Reconciler{
		opts:   opts,
		runner: NewRunner(opts.Bin, sh, logger),
		store:  store,
		logger: logger,
		sem:    make(chan struct{}, 1),
		states: make(map[model.HostRef]State),
	}
	renderer, err := NewRenderer(&r.opts)
	if err != nil {
		return nil, err
	}
	r.renderer = renderer
	return r, nil
}

// Options returns the effective directory settings
func (r *Reconciler) Options() Options {
	return r.opts
}

// Do runs fn while holding the nginx lock. Waiting for the lock honours ctx;
// once fn starts it runs to completion.
func (r *Reconciler) Do(ctx context.Context, fn func(s *Session) error) error {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-r.sem }()
	return fn(&Session{r: r})
}

// State returns the tracked state of a host config. Hosts not touched by
// this process fall back to what is on disk.
func (r *Reconciler) State(t model.HostType, id int) State {
	ref := model.HostRef{Type: t, ID: id}
	r.mu.RLock()
	st, ok := r.states[ref]
	r.mu.RUnlock()
	if ok {
		return st
	}

	if path := r.opts.ConfigPath(t, id); fileExists(path) {
		return State{State: model.ConfigStateActive, Path: path}
	}
	if path := r.opts.ErrorPath(t, id); fileExists(path) {
		return State{State: model.ConfigStateError, Path: path}
	}
	return State{State: model.ConfigStateNone}
}

func (r *Reconciler) setState(ref model.HostRef, st State) {
	r.mu.Lock()
	r.states[ref] = st
	r.mu.Unlock()
}

// Test validates the running configuration
func (r *Reconciler) Test(ctx context.Context) error {
	return r.Do(ctx, func(s *Session) error { return s.Test(ctx) })
}

// Reload tests and reloads nginx
func (r *Reconciler) Reload(ctx context.Context) error {
	return r.Do(ctx, func(s *Session) error { return s.Reload(ctx) })
}

// Configure renders, validates and activates the config of host
func (r *Reconciler) Configure(ctx context.Context, host *model.Host) (datatypes.JSONMap, error) {
	var meta datatypes.JSONMap
	err := r.Do(ctx, func(s *Session) error {
		var err error
		meta, err = s.Configure(ctx, host)
		return err
	})
	return meta, err
}

// DeleteConfig removes the config files of host without reloading
func (r *Reconciler) DeleteConfig(ctx context.Context, host *model.Host) error {
	return r.Do(ctx, func(s *Session) error { return s.DeleteConfig(host) })
}

// GenerateConfig renders and writes the config of host without validating
func (r *Reconciler) GenerateConfig(ctx context.Context, host *model.Host) error {
	return r.Do(ctx, func(s *Session) error { return s.GenerateConfig(host) })
}

// BulkGenerateConfigs writes configs for hosts one after another
func (r *Reconciler) BulkGenerateConfigs(ctx context.Context, hosts []model.Host) error {
	return r.Do(ctx, func(s *Session) error { return s.BulkGenerateConfigs(hosts) })
}

// BulkDeleteConfigs removes configs for hosts one after another
func (r *Reconciler) BulkDeleteConfigs(ctx context.Context, hosts []model.Host) error {
	return r.Do(ctx, func(s *Session) error { return s.BulkDeleteConfigs(hosts) })
}

// Session exposes the reconciler operations to code holding the nginx lock.
// It must not be used after the Do callback returns.
type Session struct {
	r *Reconciler
}

// Test runs nginx -tq
func (s *Session) Test(ctx context.Context) error {
	return s.r.runner.Test(ctx)
}

// Reload runs nginx -tq followed by nginx -s reload
func (s *Session) Reload(ctx context.Context) error {
	if err := s.r.runner.Reload(ctx); err != nil {
		return fmt.Errorf("reload nginx: %w", err)
	}
	return nil
}

// Configure performs the full reconcile of one host:
//  1. test the current configuration, abort untouched if invalid
//  2. drop the old config and its error sibling
//  3. reload so the old config is no longer served
//  4. render and write the new config
//  5. test again and persist the outcome; a rejected file is renamed to .err
//  6. reload
//
// It returns the merged status meta.
func (s *Session) Configure(ctx context.Context, host *model.Host) (datatypes.JSONMap, error) {
	r := s.r
	ref := host.Ref()
	logger := r.logger.WithField("host", ref.String())

	if err := r.runner.Test(ctx); err != nil {
		return nil, apperr.Internal(err, "nginx configuration is invalid, refusing to configure %s", ref)
	}
	// from here on files change, so the outcome is persisted and reloaded
	// even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	if err := s.DeleteConfig(host); err != nil {
		logger.WithError(err).Warn("Could not delete previous config")
	}

	if err := s.Reload(ctx); err != nil {
		return nil, err
	}

	var (
		meta  datatypes.JSONMap
		state State
	)
	path := r.opts.ConfigPath(host.Type, host.ID)
	if err := s.write(path, func() ([]byte, error) { return r.renderer.RenderHost(host) }); err != nil {
		cerr := apperr.Configuration(err, "failed to generate config for %s", ref)
		logger.WithError(cerr).Error("Config generation failed")
		meta = model.MergeMeta(host.Meta, map[string]interface{}{
			model.MetaNginxOnline: false,
			model.MetaNginxErr:    cerr.Error(),
		})
		state = State{State: model.ConfigStateError, Err: cerr.Error()}
	} else if err := r.runner.Test(ctx); err != nil {
		msg := err.Error()
		logger.WithField("nginx_err", msg).Error("Nginx test failed")
		meta = model.MergeMeta(host.Meta, map[string]interface{}{
			model.MetaNginxOnline: false,
			model.MetaNginxErr:    msg,
		})
		errPath := r.opts.ErrorPath(host.Type, host.ID)
		if rerr := os.Rename(path, errPath); rerr != nil {
			logger.WithError(rerr).Error("Could not move rejected config aside")
			_ = os.Remove(path)
		}
		state = State{State: model.ConfigStateError, Path: errPath, Err: msg}
	} else {
		meta = model.MergeMeta(host.Meta, map[string]interface{}{
			model.MetaNginxOnline: true,
			model.MetaNginxErr:    nil,
		})
		state = State{State: model.ConfigStateActive, Path: path}
	}

	if err := r.store.PatchHostStatus(ctx, host.ID, meta, state.State, state.Path); err != nil {
		return nil, fmt.Errorf("persist status of %s: %w", ref, err)
	}
	host.Meta = meta
	host.ConfigState = state.State
	host.ConfigPath = state.Path
	r.setState(ref, state)

	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return meta, nil
}

// GenerateConfig renders and writes the config of host. It neither tests
// nor reloads.
func (s *Session) GenerateConfig(host *model.Host) error {
	r := s.r
	path := r.opts.ConfigPath(host.Type, host.ID)
	if err := s.write(path, func() ([]byte, error) { return r.renderer.RenderHost(host) }); err != nil {
		return apperr.Configuration(err, "failed to generate config for %s", host.Ref())
	}
	r.logger.WithField("host", host.Ref().String()).Debugf("Wrote %s", path)
	r.setState(host.Ref(), State{State: model.ConfigStateActive, Path: path})
	return nil
}

// DeleteConfig removes the config of host and its error sibling. Missing
// files are not an error.
func (s *Session) DeleteConfig(host *model.Host) error {
	r := s.r
	var errs []error
	for _, path := range []string{r.opts.ConfigPath(host.Type, host.ID), r.opts.ErrorPath(host.Type, host.ID)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	r.setState(host.Ref(), State{State: model.ConfigStateNone})
	return errors.Join(errs...)
}

// BulkGenerateConfigs writes every config in order. It keeps going after a
// failure and returns all errors joined.
func (s *Session) BulkGenerateConfigs(hosts []model.Host) error {
	var errs []error
	for i := range hosts {
		if err := s.GenerateConfig(&hosts[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BulkDeleteConfigs removes every config in order
func (s *Session) BulkDeleteConfigs(hosts []model.Host) error {
	var errs []error
	for i := range hosts {
		if err := s.DeleteConfig(&hosts[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GenerateChallengeConfig writes the temporary HTTP-01 vhost for cert
func (s *Session) GenerateChallengeConfig(cert *model.Certificate) error {
	r := s.r
	path := r.opts.ChallengePath(cert.ID)
	r.logger.WithField("certificate_id", cert.ID).Info("Generating ACME challenge config")
	if err := s.write(path, func() ([]byte, error) { return r.renderer.RenderChallenge(cert) }); err != nil {
		return apperr.Configuration(err, "failed to generate challenge config for certificate %d", cert.ID)
	}
	return nil
}

// DeleteChallengeConfig removes the temporary HTTP-01 vhost for cert
func (s *Session) DeleteChallengeConfig(cert *model.Certificate) error {
	err := os.Remove(s.r.opts.ChallengePath(cert.ID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Session) write(path string, render func() ([]byte, error)) error {
	content, err := render()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
