package certificate

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"proxy_manager/internal/access"
	"proxy_manager/internal/apperr"
)

// Archive is a zip of the PEM files certbot keeps for a certificate
type Archive struct {
	Name string
	Data []byte
}

// Download zips the live PEM files of a Let's Encrypt certificate. Each
// entry is named after the file the live symlink resolves to.
func (m *Manager) Download(ctx context.Context, id int) (*Archive, error) {
	if err := m.authz.Can(ctx, perm(access.ActionGet)); err != nil {
		return nil, err
	}
	cert, err := m.store.GetCertificate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cert.IsLetsEncrypt() {
		return nil, apperr.Validation("Only Let's Encrypt certificates can be downloaded")
	}

	settings := m.acme.Settings()
	dir := settings.LiveDir(cert)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.NotFound("Certificate %s does not exist", cert.NiceName)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".pem") {
			continue
		}
		resolved, err := filepath.EvalSymlinks(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", e.Name(), err)
		}
		files = append(files, resolved)
	}
	sort.Strings(files)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, path := range files {
		if err := addZipFile(zw, path); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}

	m.logger.WithField("certificate_id", id).Debugf("Zipped %d files from %s", len(files), dir)
	return &Archive{
		Name: fmt.Sprintf("%s-%d.zip", cert.CertName(settings.CertPrefix), time.Now().UnixMilli()),
		Data: buf.Bytes(),
	}, nil
}

func addZipFile(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := zw.Create(filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
