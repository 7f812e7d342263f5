// Package store persists hosts, certificates and audit records with gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"proxy_manager/internal/apperr"
	"proxy_manager/internal/model"
)

// Store implements the persistence needs of the engine
type Store struct {
	db *gorm.DB
}

// New creates a Store
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection
func (s *Store) DB() *gorm.DB {
	return s.db
}

// HostFilter narrows ListHostsPage
type HostFilter struct {
	Type     model.HostType
	Search   string
	Page     int
	PageSize int
}

// ListHosts returns all non-deleted hosts of the given types ordered by id.
// No types means every type.
func (s *Store) ListHosts(ctx context.Context, types ...model.HostType) ([]model.Host, error) {
	var hosts []model.Host
	q := s.db.WithContext(ctx).Preload("Certificate").Where("is_deleted = ?", false)
	if len(types) > 0 {
		q = q.Where("type IN ?", types)
	}
	if err := q.Order("id ASC").Find(&hosts).Error; err != nil {
		return nil, err
	}
	return hosts, nil
}

// ListHostsPage returns one page of hosts matching filter and the total count
func (s *Store) ListHostsPage(ctx context.Context, f HostFilter) ([]model.Host, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 15
	}

	q := s.db.WithContext(ctx).Model(&model.Host{}).Where("is_deleted = ?", false)
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Search != "" {
		q = q.Where("domain_names LIKE ?", "%"+f.Search+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var hosts []model.Host
	if err := q.Preload("Certificate").Order("id ASC").
		Offset((f.Page - 1) * f.PageSize).Limit(f.PageSize).
		Find(&hosts).Error; err != nil {
		return nil, 0, err
	}
	return hosts, total, nil
}

// GetHost loads a non-deleted host with its certificate
func (s *Store) GetHost(ctx context.Context, id int) (*model.Host, error) {
	var host model.Host
	err := s.db.WithContext(ctx).Preload("Certificate").
		Where("id = ? AND is_deleted = ?", id, false).
		First(&host).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("host %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &host, nil
}

// CreateHost inserts host
func (s *Store) CreateHost(ctx context.Context, host *model.Host) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(host).Error
}

// SaveHost writes every column of host
func (s *Store) SaveHost(ctx context.Context, host *model.Host) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(host).Error
}

// PatchHostStatus stores the reconciliation outcome of a host
func (s *Store) PatchHostStatus(ctx context.Context, id int, meta datatypes.JSONMap, state model.ConfigState, path string) error {
	return s.db.WithContext(ctx).Model(&model.Host{}).Where("id = ?", id).Updates(map[string]interface{}{
		"meta":         meta,
		"config_state": state,
		"config_path":  path,
	}).Error
}

// SoftDeleteHost marks a host deleted
func (s *Store) SoftDeleteHost(ctx context.Context, id int) error {
	res := s.db.WithContext(ctx).Model(&model.Host{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{"is_deleted": true, "config_state": model.ConfigStateNone, "config_path": ""})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("host %d not found", id)
	}
	return nil
}

// InsertCertificate inserts cert and fills its id
func (s *Store) InsertCertificate(ctx context.Context, cert *model.Certificate) error {
	return s.db.WithContext(ctx).Create(cert).Error
}

// GetCertificate loads a non-deleted certificate
func (s *Store) GetCertificate(ctx context.Context, id int) (*model.Certificate, error) {
	var cert model.Certificate
	err := s.db.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("certificate %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// ListCertificates returns all non-deleted certificates ordered by nice name
func (s *Store) ListCertificates(ctx context.Context) ([]model.Certificate, error) {
	var certs []model.Certificate
	err := s.db.WithContext(ctx).Where("is_deleted = ?", false).Order("nice_name ASC, id ASC").Find(&certs).Error
	return certs, err
}

// PatchCertificate updates the given columns of a certificate
func (s *Store) PatchCertificate(ctx context.Context, id int, updates map[string]interface{}) error {
	if err := s.db.WithContext(ctx).Model(&model.Certificate{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("patch certificate %d: %w", id, err)
	}
	return nil
}

// HardDeleteCertificate removes the certificate row
func (s *Store) HardDeleteCertificate(ctx context.Context, id int) error {
	return s.db.WithContext(ctx).Delete(&model.Certificate{}, id).Error
}

// SoftDeleteCertificate marks a certificate deleted
func (s *Store) SoftDeleteCertificate(ctx context.Context, id int) error {
	return s.PatchCertificate(ctx, id, map[string]interface{}{"is_deleted": true})
}

// ListRenewable returns active Let's Encrypt certificates expiring before
// the given time, soonest first.
func (s *Store) ListRenewable(ctx context.Context, before time.Time) ([]model.Certificate, error) {
	var certs []model.Certificate
	err := s.db.WithContext(ctx).
		Where("is_deleted = ? AND provider = ? AND status = ?", false, model.CertificateProviderLetsEncrypt, model.CertificateStatusActive).
		Where("expires_on IS NOT NULL AND expires_on < ?", before).
		Order("expires_on ASC, id ASC").
		Find(&certs).Error
	return certs, err
}

// InsertAuditLog stores one audit record
func (s *Store) InsertAuditLog(ctx context.Context, entry *model.AuditLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// ListAuditLogs returns the most recent audit records
func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]model.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	var logs []model.AuditLog
	err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// GetUserByUsername returns the user with the given name
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("User %q not found", username)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", username, err)
	}
	return &user, nil
}

// CreateUser inserts user
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}
