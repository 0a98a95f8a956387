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

package controlapi

import (
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
)

// handleDownloadUpdate streams a renderer bundle from a remote URL to disk,
// reporting byte-count progress over SSE, then unpacks it and reports its
// base64-no-pad SHA-512 digest. Only one download may be in flight at a time.
func (s *Server) handleDownloadUpdate(w http.ResponseWriter, r *http.Request) {
	if !s.state.TryBeginDownload() {
		http.Error(w, "download already in progress", http.StatusConflict)
		return
	}
	defer s.state.EndDownload()

	q := r.URL.Query()
	url, filename := q.Get("url"), q.Get("filename")

	dest, err := s.store.DownloadPath(filename)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	digest, err := s.download(r, dest, url, sse)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("download failed")
		return
	}

	if err := sse.send("updateUnpacking0", ""); err != nil {
		return
	}
	if err := s.store.Unpack(dest); err != nil {
		log.Error().Err(err).Str("file", dest).Msg("unpack failed")
		return
	}

	sse.send("updateDone0", digest) //nolint:errcheck // stream may already be closed by the peer
}

// download fetches url into dest, hashing the stream incrementally and
// publishing a byte-count progress event after each chunk. It returns the
// base64-no-pad SHA-512 digest of the fully downloaded file.
func (s *Server) download(r *http.Request, dest, url string, sse *sseWriter) (string, error) {
	if err := os.MkdirAll(s.store.VersionsDir(), 0o755); err != nil {
		return "", fmt.Errorf("create versions dir: %w", err)
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch bundle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d fetching bundle", resp.StatusCode)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()

	hasher := sha512.New()
	writer := io.MultiWriter(out, hasher)

	buf := make([]byte, 64*1024)
	var total uint64
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := writer.Write(buf[:n]); werr != nil {
				return "", fmt.Errorf("write bundle: %w", werr)
			}
			total += uint64(n)
			s.state.SetDownloadProgress(total)
			if err := sse.send("updateProgress0", fmt.Sprintf("%d", total)); err != nil {
				return "", err
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", fmt.Errorf("read bundle: %w", rerr)
		}
	}

	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", dest, err)
	}
	// Close is safe to call twice; the deferred Close becomes a no-op error
	// we intentionally ignore there.

	return base64.RawStdEncoding.EncodeToString(hasher.Sum(nil)), nil
}
