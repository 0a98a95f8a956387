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

// Package controller implements the Controller Link: the WebSocket or
// Unix-domain-socket framing between the remote controller and this
// process.
package controller

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/taigachat/launcher-sfu/internal/sfu/wire"
)

// Enqueuer accepts decoded inbound messages from the link's read loop.
// Implemented by *dispatch.Dispatcher.
type Enqueuer interface {
	Enqueue(msg any)
	EnqueueHeartbeat()
}

// Link is one connection to the remote SFU controller, over either a
// standard WebSocket or a Unix-domain-socket variant.
type Link struct {
	conn     *websocket.Conn
	enqueuer Enqueuer

	writeMu sync.Mutex
}

// Dial connects to rawURL, which is either a standard ws://, wss:// URL or
// the Unix-domain-socket form ws://unix/<http-path>:<fs-path>.
func Dial(ctx context.Context, rawURL string) (*Link, error) {
	httpPath, sockPath, isUnix, err := parseControllerURL(rawURL)
	if err != nil {
		return nil, err
	}

	dialer := *websocket.DefaultDialer
	dialURL := rawURL
	if isUnix {
		dialer.NetDialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", sockPath) //nolint:wrapcheck // returned straight to gorilla's dialer
		}
		dialURL = (&url.URL{Scheme: "ws", Host: "unix", Path: httpPath}).String()
	}

	conn, _, err := dialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial controller: %w", err)
	}

	l := &Link{conn: conn}
	conn.SetPingHandler(func(string) error {
		if l.enqueuer != nil {
			l.enqueuer.EnqueueHeartbeat()
		}
		return nil
	})
	return l, nil
}

// parseControllerURL splits rawURL into the parts Dial needs. For the
// Unix-domain-socket form the second colon in the URL (the first after
// "ws://unix") splits the HTTP upgrade path from the filesystem socket
// path.
func parseControllerURL(rawURL string) (httpPath, sockPath string, isUnix bool, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", false, fmt.Errorf("parse controller URL: %w", err)
	}
	if u.Host != "unix" {
		return "", "", false, nil
	}

	rest := u.Path
	before, after, ok := strings.Cut(rest, ":")
	if !ok {
		return "", "", false, fmt.Errorf("malformed unix controller URL %q: missing fs-path separator", rawURL)
	}
	return before, after, true, nil
}

// SetEnqueuer wires the dispatcher that receives decoded inbound messages.
// Must be called before ReadLoop.
func (l *Link) SetEnqueuer(e Enqueuer) { l.enqueuer = e }

// ReadLoop reads frames until the connection closes or ctx is cancelled,
// decoding JSON text frames into dispatch queue items. Non-text frames are
// ignored; parse errors are logged and skipped. When the read loop ends,
// the caller is expected to terminate the process.
func (l *Link) ReadLoop(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = l.conn.Close() //nolint:errcheck // unblocks the blocking ReadMessage below
	}()

	for {
		msgType, data, err := l.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("controller link closed: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}

		decoded, err := wire.Decode(data)
		if err != nil {
			log.Error().Err(err).Msg("error decoding controller message")
			continue
		}
		l.enqueuer.Enqueue(decoded)
	}
}

// Send renders msg and writes it as [channelID, peerID, payload], silently
// doing nothing when msg is Nothing.
func (l *Link) Send(channel wire.ChannelID, peer wire.PeerID, msg wire.ToClient) {
	data, ok := wire.Encode(channel, peer, msg)
	if !ok {
		return
	}
	l.writeText(data)
}

// SendHeartbeat writes the literal "heartbeat" text frame a Ping triggers.
func (l *Link) SendHeartbeat() {
	l.writeText([]byte("heartbeat"))
}

func (l *Link) writeText(data []byte) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Error().Err(err).Msg("error writing to controller link")
	}
}

// Close closes the underlying connection.
func (l *Link) Close() error {
	if err := l.conn.Close(); err != nil {
		return fmt.Errorf("close controller link: %w", err)
	}
	return nil
}
