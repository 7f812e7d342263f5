package certificate

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxy_manager/internal/apperr"
	"proxy_manager/internal/model"
)

func zipEntries(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := map[string]string{}
	for _, zf := range zr.File {
		rc, err := zf.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[zf.Name] = string(b)
	}
	return out
}

func TestDownload_ZipsResolvedPEMFiles(t *testing.T) {
	f := newFixture(t)
	cert, err := f.manager.Create(f.ctx, letsEncryptRequest("a.example.com"))
	require.NoError(t, err)

	name := "npm-" + strconv.Itoa(cert.ID)
	live := f.settings.LiveDir(cert)
	archive := filepath.Join(f.leDir, "archive", name)
	require.NoError(t, os.MkdirAll(archive, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(archive, "privkey1.pem"), []byte("KEY"), 0600))
	require.NoError(t, os.Symlink(filepath.Join("..", "..", "archive", name, "privkey1.pem"), filepath.Join(live, "privkey.pem")))
	require.NoError(t, os.WriteFile(filepath.Join(live, "README"), []byte("ignored"), 0644))

	got, err := f.manager.Download(f.ctx, cert.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.Name, name+"-"), got.Name)
	assert.True(t, strings.HasSuffix(got.Name, ".zip"), got.Name)

	entries := zipEntries(t, got.Data)
	names := make([]string, 0, len(entries))
	for n := range entries {
		names = append(names, n)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"fullchain.pem", "privkey1.pem"}, names)
	assert.Equal(t, "KEY", entries["privkey1.pem"])
	assert.Contains(t, entries["fullchain.pem"], "BEGIN CERTIFICATE")
}

func TestDownload_Rejections(t *testing.T) {
	f := newFixture(t)
	custom := &model.Certificate{Provider: model.CertificateProviderOther, NiceName: "custom"}
	require.NoError(t, f.store.InsertCertificate(f.ctx, custom))

	_, err := f.manager.Download(f.ctx, custom.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation), "got %v", err)

	cert, err := f.manager.Create(f.ctx, letsEncryptRequest("a.example.com"))
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(f.settings.LiveDir(cert)))

	_, err = f.manager.Download(f.ctx, cert.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound), "got %v", err)
}
