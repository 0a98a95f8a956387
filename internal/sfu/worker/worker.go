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

// Package worker defines the collaborator interface to the native
// real-time-media worker: Worker/Router/Transport/Producer/Consumer
// handles with async operations and event callbacks. The actual RTP/codec
// machinery lives outside this repository; this package
// only speaks the shape of that contract, plus an in-process reference
// implementation used for wiring and tests.
package worker

import (
	"context"
	"encoding/json"
	"errors"
)

// LogLevel mirrors the native worker's --logLevel values.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelNone  LogLevel = "none"
)

// Settings configures a new Worker process/handle.
type Settings struct {
	LogLevel   LogLevel
	LogTags    []string
	RTCMinPort uint16
	RTCMaxPort uint16
}

// DTLSState mirrors a WebRTC transport's DTLS state machine.
type DTLSState int

const (
	DTLSStateNew DTLSState = iota
	DTLSStateConnecting
	DTLSStateConnected
	DTLSStateFailed
	DTLSStateClosed
)

// ErrClosed is returned by operations on an already-closed handle.
var ErrClosed = errors.New("worker: handle is closed")

// ErrCannotConsume is returned when a router cannot consume a producer with
// the given RTP capabilities.
var ErrCannotConsume = errors.New("worker: router cannot consume producer with given capabilities")

// Worker is one native media-worker process handle, created once per SFU
// process.
type Worker interface {
	// CreateRouter creates a new routing context scoped to codecs.
	CreateRouter(ctx context.Context, codecs []json.RawMessage) (Router, error)
	// Close releases the worker and every router it created.
	Close() error
}

// TransportOptions configures a new WebRTC transport.
type TransportOptions struct {
	ListenIP   string
	AnnounceIP string
	// ForceTCP restricts the transport to TCP-only candidates even though
	// both UDP and TCP listen infos are always registered.
	ForceTCP bool
}

// Router is a per-channel routing context obtained from a Worker,
// parameterised by a codec capability list.
type Router interface {
	// RTPCapabilities returns the router's finalized RTP capabilities.
	RTPCapabilities() json.RawMessage
	// CreateWebRTCTransport creates a transport with both UDP and TCP
	// listen infos on opts.ListenIP, announced as opts.AnnounceIP.
	CreateWebRTCTransport(ctx context.Context, opts TransportOptions) (Transport, error)
	// CanConsume reports whether a consumer with rtpCapabilities could
	// consume the producer identified by producerID.
	CanConsume(producerID string, rtpCapabilities json.RawMessage) bool
	// Close releases the router and every transport it created.
	Close() error
}

// Transport is a WebRTC transport handle owning DTLS state.
type Transport interface {
	ID() string
	ICEParameters() json.RawMessage
	ICECandidates() json.RawMessage
	DTLSParameters() json.RawMessage

	// Connect supplies the remote peer's DTLS parameters.
	Connect(ctx context.Context, dtlsParameters json.RawMessage) error

	// Produce starts a media producer on this transport.
	Produce(ctx context.Context, kind string, rtpParameters json.RawMessage) (Producer, error)

	// Consume creates a consumer for producerID on this transport.
	Consume(ctx context.Context, producerID string, rtpCapabilities json.RawMessage) (Consumer, error)

	// OnDTLSStateChange registers a callback invoked on every DTLS state
	// transition, including the terminal DTLSStateClosed.
	OnDTLSStateChange(cb func(DTLSState))

	Close() error
}

// Producer is a media stream sent from a transport.
type Producer interface {
	ID() string
	Kind() string

	// OnTransportClose registers a callback invoked when the owning
	// transport closes.
	OnTransportClose(cb func())

	Close() error
}

// Consumer is a media stream sent to a transport, consuming a remote
// Producer.
type Consumer interface {
	ID() string
	ProducerID() string
	Kind() string
	RTPParameters() json.RawMessage

	Pause(ctx context.Context) error
	Resume(ctx context.Context) error

	// OnTransportClose registers a callback invoked when the owning
	// transport closes.
	OnTransportClose(cb func())
	// OnProducerClose registers a callback invoked when the consumed
	// producer closes upstream.
	OnProducerClose(cb func())

	Close() error
}
