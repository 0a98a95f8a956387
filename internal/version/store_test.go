// TaigaChat
// Copyright (c) 2026 The TaigaChat Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of TaigaChat.
//
// TaigaChat is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// TaigaChat is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with TaigaChat.  If not, see <http://www.gnu.org/licenses/>.

package version

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStemRejectsMissingSuffix(t *testing.T) {
	_, err := Stem("app-1.0.0")
	assert.ErrorIs(t, err, ErrMalformedName)
}

func TestStemStripsSuffix(t *testing.T) {
	stem, err := Stem("app-1.0.0.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, "app-1.0.0", stem)
}

func TestDownloadPathRejectsPathSeparators(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.DownloadPath("../escape.tar.gz")
	assert.ErrorIs(t, err, ErrBadFilename)
}

func TestExecutablePathEmptyNameReturnsEmptyPath(t *testing.T) {
	s := New(t.TempDir())
	path, err := s.ExecutablePath("")
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestExecutablePathDerivesFromFirstHyphenToken(t *testing.T) {
	s := New("/data/taigachat")
	path, err := s.ExecutablePath("app-1.0.0.tar.gz")
	require.NoError(t, err)

	want := filepath.Join("/data/taigachat", "versions", "app-1.0.0", "app-1.0.0", "app"+platformExt())
	assert.Equal(t, want, path)
}

func TestExecutablePathRejectsMalformedName(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.ExecutablePath("app-1.0.0")
	assert.ErrorIs(t, err, ErrMalformedName)
}

func TestDeleteRefusesActiveVersionByFullName(t *testing.T) {
	s := New(t.TempDir())
	err := s.Delete("app-1.0.0.tar.gz", "app-1.0.0.tar.gz")
	assert.ErrorIs(t, err, ErrActiveVersion)
}

func TestDeleteRefusesActiveVersionByStem(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, os.MkdirAll(s.VersionsDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.VersionsDir(), "app-1.0.0.tar.gz"), []byte("x"), 0o644))

	err := s.Delete("app-1.0.0", "app-1.0.0.tar.gz")
	assert.ErrorIs(t, err, ErrActiveVersion)
}

func TestDeleteRemovesArchiveAndDirForInactiveVersion(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	require.NoError(t, os.MkdirAll(s.VersionsDir(), 0o755))
	archive := filepath.Join(s.VersionsDir(), "app-1.0.0.tar.gz")
	require.NoError(t, os.WriteFile(archive, []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(s.VersionsDir(), "app-1.0.0"), 0o755))

	require.NoError(t, s.Delete("app-1.0.0.tar.gz", "app-2.0.0.tar.gz"))

	_, err := os.Stat(archive)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(s.VersionsDir(), "app-1.0.0"))
	assert.True(t, os.IsNotExist(err))
}

func TestListReturnsArchiveFilenames(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, os.MkdirAll(s.VersionsDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.VersionsDir(), "app-1.0.0.tar.gz"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.VersionsDir(), "notes.txt"), []byte("x"), 0o644))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"app-1.0.0.tar.gz"}, names)
}

func buildTestArchive(t *testing.T, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	dir := t.TempDir()
	path := filepath.Join(dir, "app-1.0.0.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestUnpackExtractsFiles(t *testing.T) {
	archive := buildTestArchive(t, map[string]string{"app/README.txt": "hello"})

	s := New(t.TempDir())
	require.NoError(t, s.Unpack(archive))

	data, err := os.ReadFile(filepath.Join(s.VersionsDir(), "app-1.0.0", "app", "README.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestUnpackRejectsPathTraversal(t *testing.T) {
	archive := buildTestArchive(t, map[string]string{"../../etc/passwd": "pwned"})

	s := New(t.TempDir())
	err := s.Unpack(archive)
	assert.Error(t, err)
}
