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

// Package version manages the on-disk layout of renderer bundles: download
// targets, unpacked directories, the active version pointer, and deletion.
package version

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	// ErrMalformedName is returned when a version filename can't be
	// decomposed into a stem (it must end in ".tar.gz").
	ErrMalformedName = errors.New("malformed version name")
	// ErrActiveVersion is returned by Delete when asked to remove the
	// currently active version.
	ErrActiveVersion = errors.New("cannot delete the active version")
	// ErrBadFilename is returned when a download destination filename
	// contains a path separator or colon.
	ErrBadFilename = errors.New("filename must not contain path separators or colons")
)

const versionsDir = "versions"

// Store manages versioned renderer bundles under an installation root.
type Store struct {
	root string
}

// New constructs a Store rooted at root (the installation root directory;
// archives and unpacked trees live under root/versions).
func New(root string) *Store {
	return &Store{root: root}
}

// VersionsDir returns the directory archives and unpacked trees live under.
func (s *Store) VersionsDir() string {
	return filepath.Join(s.root, versionsDir)
}

// DownloadPath returns the destination path for filename, validating it
// contains no path separators or colons.
func (s *Store) DownloadPath(filename string) (string, error) {
	if strings.ContainsAny(filename, `/\:`) {
		return "", ErrBadFilename
	}
	return filepath.Join(s.VersionsDir(), filename), nil
}

// Stem strips the ".tar.gz" suffix from a version filename.
func Stem(name string) (string, error) {
	const suffix = ".tar.gz"
	if !strings.HasSuffix(name, suffix) || len(name) <= len(suffix) {
		return "", fmt.Errorf("%w: %q", ErrMalformedName, name)
	}
	return strings.TrimSuffix(name, suffix), nil
}

// Unpack decompresses the gzip-tar archive at bundlePath into
// versions/<stem>/. It is idempotent (overwrites existing files). On
// failure the destination may contain partial files; the caller must treat
// the version as unusable.
func (s *Store) Unpack(bundlePath string) error {
	name := filepath.Base(bundlePath)
	stem, err := Stem(name)
	if err != nil {
		return err
	}

	dest := filepath.Join(s.VersionsDir(), stem)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create unpack dir: %w", err)
	}

	f, err := os.Open(bundlePath)
	if err != nil {
		return fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("malformed archive: %w", err)
		}

		target := filepath.Join(dest, filepath.Clean(hdr.Name)) //nolint:gosec // tar layout is a private packaging convention
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("malformed archive: entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("mkdir %s: %w", filepath.Dir(target), err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode)) //nolint:gosec
			if err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil { //nolint:gosec // bounded by archive's own declared sizes
				out.Close()
				return fmt.Errorf("write %s: %w", target, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("close %s: %w", target, err)
			}
		}
	}

	return nil
}

// platformExt returns the executable suffix for the current OS.
func platformExt() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}

// ExecutablePath computes the deterministic executable location for a
// version filename: versions/<stem>/<stem>/<first-hyphen-token>[+ext].
// An empty versionName returns an empty path. A malformed name returns an
// error wrapping ErrMalformedName.
func (s *Store) ExecutablePath(versionName string) (string, error) {
	if versionName == "" {
		return "", nil
	}

	stem, err := Stem(versionName)
	if err != nil {
		return "", err
	}

	token, _, _ := strings.Cut(stem, "-")
	if token == "" {
		return "", fmt.Errorf("%w: empty leading token in %q", ErrMalformedName, versionName)
	}

	return filepath.Join(s.VersionsDir(), stem, stem, token+platformExt()), nil
}

// Delete removes both the archive and the unpacked directory for version,
// refusing if version is the currently active one (version is compared
// against both the active full filename and the active stem).
func (s *Store) Delete(version, activeVersion string) error {
	activeStem, aerr := Stem(activeVersion)
	if version == activeVersion || (aerr == nil && version == activeStem) {
		return ErrActiveVersion
	}
	stem, err := Stem(version)
	if err != nil {
		return err
	}

	archive := filepath.Join(s.VersionsDir(), version)
	dir := filepath.Join(s.VersionsDir(), stem)

	if err := os.Remove(archive); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove archive: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove unpacked dir: %w", err)
	}

	log.Info().Str("version", version).Msg("deleted version")
	return nil
}

// ActivateBundled copies the launcher-bundled renderer archive (shipped
// alongside the launcher executable, named bundledPath) into the versions
// directory and unpacks it, returning its filename for use as the newest
// version. It is a no-op returning ("", nil) if bundledPath does not exist.
func (s *Store) ActivateBundled(bundledPath string) (string, error) {
	src, err := os.Open(bundledPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open bundled version: %w", err)
	}
	defer src.Close()

	name := filepath.Base(bundledPath)
	if _, err := Stem(name); err != nil {
		return "", err
	}

	dest, err := s.DownloadPath(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.VersionsDir(), 0o755); err != nil {
		return "", fmt.Errorf("create versions dir: %w", err)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, src); err != nil { //nolint:gosec // bundled archive ships with the launcher itself
		out.Close()
		return "", fmt.Errorf("copy bundled version: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", dest, err)
	}

	if err := s.Unpack(dest); err != nil {
		return "", fmt.Errorf("unpack bundled version: %w", err)
	}

	log.Info().Str("version", name).Msg("activated bundled version")
	return name, nil
}

// List returns the filenames of every "<stem>.tar.gz" archive present.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.VersionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read versions dir: %w", err)
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".tar.gz") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
