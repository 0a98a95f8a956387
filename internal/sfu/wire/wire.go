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

// Package wire holds the JSON-tagged message types that cross the
// controller link: inbound commands from the controller (externally
// tagged by "type"), the FromClient variants they wrap, and the ToClient
// replies/broadcasts sent back as [channelID, peerID, payload] arrays.
package wire

import (
	"encoding/json"
	"fmt"
)

// ChannelID identifies an SFU channel, unique within the process.
type ChannelID uint32

// PeerID identifies a peer within a channel.
type PeerID uint64

// BroadcastPeerID is the peer id reserved as a broadcast sentinel. Dispatch
// does not use it: it sends each broadcast once per recipient, addressed
// to that recipient's own PeerID.
const BroadcastPeerID PeerID = ^PeerID(0)

// Inbound message type tags (controller -> worker).
const (
	TypeNewChannel      = "NewChannel"
	TypeAddPeer         = "AddPeer"
	TypeRemovePeer      = "RemovePeer"
	TypeRemoveTransport = "RemoveTransport"
	TypeHandleClient    = "HandleClient"
	TypeSetDeafenPeer   = "SetDeafenPeer"
)

// FromClient variant tags, nested inside a HandleClient envelope.
const (
	TypeCreateTransport  = "CreateTransport"
	TypeConnectTransport = "ConnectTransport"
	TypeProduceTransport = "ProduceTransport"
	TypeProducerClosed   = "ProducerClosed"
	TypeConsumeProducer  = "ConsumeProducer"
	TypeConsumerClosed   = "ConsumerClosed"
	TypeGetProducers     = "GetProducers"
)

// ToClient variant tags.
const (
	TypeNothing             = "Nothing"
	TypeCapabilities        = "Capabilities"
	TypeTransportCreated    = "TransportCreated"
	TypeTransportConnected  = "TransportConnected"
	TypeTransportProducing  = "TransportProducing"
	TypeNewProducers        = "NewProducers"
	TypeProducerConsumed    = "ProducerConsumed"
	TypeConsumerClosedToClt = "ConsumerClosed"
	TypeError               = "Error"
)

type envelope struct {
	Type string `json:"type"`
}

// NewChannel creates a channel with the given codec capability list.
type NewChannel struct {
	ChannelID ChannelID         `json:"channelId"`
	Codecs    []json.RawMessage `json:"codecs"`
}

// AddPeer allocates an empty peer record in a channel.
type AddPeer struct {
	ChannelID ChannelID `json:"channelId"`
	PeerID    PeerID    `json:"peerId"`
}

// RemovePeer removes a peer and cascades closure to its owned resources.
type RemovePeer struct {
	ChannelID ChannelID `json:"channelId"`
	PeerID    PeerID    `json:"peerId"`
}

// RemoveTransport removes a single transport (and its producers/consumers).
type RemoveTransport struct {
	ChannelID   ChannelID `json:"channelId"`
	PeerID      PeerID    `json:"peerId"`
	TransportID string    `json:"transportId"`
}

// SetDeafenPeer toggles a peer's deaf flag.
type SetDeafenPeer struct {
	ChannelID ChannelID `json:"channelId"`
	PeerID    PeerID    `json:"peerId"`
	Deafen    bool      `json:"deafen"`
}

// HandleClient wraps a FromClient request addressed to a specific peer.
type HandleClient struct {
	ChannelID ChannelID `json:"channelId"`
	PeerID    PeerID    `json:"peerId"`
	Client    FromClient
}

// FromClient is the decoded payload of a HandleClient envelope. Exactly one
// of the typed fields below is non-nil, selected by Type.
type FromClient struct {
	Type               string
	CreateTransport    *CreateTransport
	ConnectTransport   *ConnectTransport
	ProduceTransport   *ProduceTransport
	ProducerClosed     *ProducerClosed
	ConsumeProducer    *ConsumeProducer
	ConsumerClosed     *ConsumerClosed
	GetProducers       *GetProducers
}

// CreateTransport requests a new WebRTC transport on the peer's channel.
type CreateTransport struct {
	RTPCapabilities json.RawMessage `json:"rtpCapabilities"`
	ForceTCP        bool            `json:"forceTCP"`
	Errand          int64           `json:"errand"`
}

// ConnectTransport supplies the remote DTLS parameters for a transport.
type ConnectTransport struct {
	DTLSParameters json.RawMessage `json:"dtlsParameters"`
	TransportID    string          `json:"transportId"`
	Errand         int64           `json:"errand"`
}

// ProduceTransport starts producing media on a transport.
type ProduceTransport struct {
	ProducerTransportID string          `json:"producerTransportId"`
	Kind                string          `json:"kind"`
	RTPParameters       json.RawMessage `json:"rtpParameters"`
	Errand              int64           `json:"errand"`
}

// ProducerClosed notifies that a producer owned by the sending peer closed.
type ProducerClosed struct {
	ProducerID string `json:"producerId"`
}

// ConsumeProducer requests a consumer for a remote producer.
type ConsumeProducer struct {
	RTPCapabilities     json.RawMessage `json:"rtpCapabilities"`
	ConsumerTransportID string          `json:"consumerTransportId"`
	ProducerID          string          `json:"producerId"`
}

// ConsumerClosed notifies that a consumer owned by the sending peer closed.
type ConsumerClosed struct {
	ConsumerID string `json:"consumerId"`
}

// GetProducers requests the current producer set of the whole channel.
type GetProducers struct{}

// Decode parses a single inbound frame's JSON body into its concrete type:
// one of *NewChannel, *AddPeer, *RemovePeer, *RemoveTransport,
// *HandleClient, *SetDeafenPeer.
func Decode(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case TypeNewChannel:
		var m NewChannel
		return &m, unmarshalInto(data, &m)
	case TypeAddPeer:
		var m AddPeer
		return &m, unmarshalInto(data, &m)
	case TypeRemovePeer:
		var m RemovePeer
		return &m, unmarshalInto(data, &m)
	case TypeRemoveTransport:
		var m RemoveTransport
		return &m, unmarshalInto(data, &m)
	case TypeSetDeafenPeer:
		var m SetDeafenPeer
		return &m, unmarshalInto(data, &m)
	case TypeHandleClient:
		return decodeHandleClient(data)
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}

func unmarshalInto(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

type handleClientWire struct {
	ChannelID ChannelID       `json:"channelId"`
	PeerID    PeerID          `json:"peerId"`
	Client    json.RawMessage `json:"client"`
}

func decodeHandleClient(data []byte) (*HandleClient, error) {
	var w handleClientWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode HandleClient: %w", err)
	}

	fc, err := decodeFromClient(w.Client)
	if err != nil {
		return nil, err
	}

	return &HandleClient{ChannelID: w.ChannelID, PeerID: w.PeerID, Client: fc}, nil
}

func decodeFromClient(data []byte) (FromClient, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return FromClient{}, fmt.Errorf("decode FromClient envelope: %w", err)
	}

	fc := FromClient{Type: env.Type}
	var err error
	switch env.Type {
	case TypeCreateTransport:
		fc.CreateTransport = &CreateTransport{}
		err = unmarshalInto(data, fc.CreateTransport)
	case TypeConnectTransport:
		fc.ConnectTransport = &ConnectTransport{}
		err = unmarshalInto(data, fc.ConnectTransport)
	case TypeProduceTransport:
		fc.ProduceTransport = &ProduceTransport{}
		err = unmarshalInto(data, fc.ProduceTransport)
	case TypeProducerClosed:
		fc.ProducerClosed = &ProducerClosed{}
		err = unmarshalInto(data, fc.ProducerClosed)
	case TypeConsumeProducer:
		fc.ConsumeProducer = &ConsumeProducer{}
		err = unmarshalInto(data, fc.ConsumeProducer)
	case TypeConsumerClosed:
		fc.ConsumerClosed = &ConsumerClosed{}
		err = unmarshalInto(data, fc.ConsumerClosed)
	case TypeGetProducers:
		fc.GetProducers = &GetProducers{}
	default:
		return FromClient{}, fmt.Errorf("unknown FromClient type %q", env.Type)
	}
	if err != nil {
		return FromClient{}, err
	}
	return fc, nil
}

// ToClient is a reply or broadcast payload headed back to the controller.
// ToClient.Nothing suppresses the send entirely; Encode checks this
// before wrapping anything as [channelID, peerID, payload].
type ToClient struct {
	Nothing bool

	Capabilities       *Capabilities
	TransportCreated   *TransportCreated
	TransportConnected *TransportConnected
	TransportProducing *TransportProducing
	NewProducers       *NewProducersMsg
	ProducerConsumed   *ProducerConsumed
	ConsumerClosed     *ConsumerClosedMsg
	Error              *ErrorMsg
}

// ErrorMsg reports an input or resource error back to the controller:
// an unknown channel/peer, a router that cannot consume a producer, or a
// rejected transport-creation request. Errand is non-zero only when the
// failing request carried one.
type ErrorMsg struct {
	Message string `json:"message"`
	Errand  int64  `json:"errand,omitempty"`
}

// Capabilities carries the channel router's finalized RTP capabilities,
// sent to a peer immediately after AddPeer.
type Capabilities struct {
	RTPCapabilities json.RawMessage `json:"rtpCapabilities"`
}

// TransportInfo describes a freshly created WebRTC transport.
type TransportInfo struct {
	ID             string          `json:"id"`
	ICEParameters  json.RawMessage `json:"iceParameters"`
	ICECandidates  json.RawMessage `json:"iceCandidates"`
	DTLSParameters json.RawMessage `json:"dtlsParameters"`
}

// TransportCreated replies to CreateTransport.
type TransportCreated struct {
	Errand    int64         `json:"errand"`
	Transport TransportInfo `json:"transport"`
}

// TransportConnected replies to ConnectTransport.
type TransportConnected struct {
	Errand int64 `json:"errand"`
}

// TransportProducing replies to ProduceTransport.
type TransportProducing struct {
	Errand     int64  `json:"errand"`
	ProducerID string `json:"producerId"`
}

// ProducerInfo identifies one producer owned by a peer, for NewProducers.
type ProducerInfo struct {
	PeerID     PeerID `json:"peerId"`
	ProducerID string `json:"producerId"`
	Kind       string `json:"kind"`
}

// NewProducersMsg enumerates producers newly available (broadcast) or the
// full channel set (GetProducers reply).
type NewProducersMsg struct {
	Producers []ProducerInfo `json:"producers"`
}

// ProducerConsumed replies to ConsumeProducer.
type ProducerConsumed struct {
	ID            string          `json:"id"`
	ProducerID    string          `json:"producerId"`
	Kind          string          `json:"kind"`
	RTPParameters json.RawMessage `json:"rtpParameters"`
}

// ConsumerClosedMsg is pushed to a peer when its consumer's producer closed
// upstream (distinct from the inbound ConsumerClosed the peer itself sends).
type ConsumerClosedMsg struct {
	ConsumerID string `json:"consumerId"`
}

// payload returns the non-nil variant and its "type" tag (merged in by
// Encode), or nil if Nothing is set or no variant is.
func (t ToClient) payload() (any, string) {
	switch {
	case t.Nothing:
		return nil, ""
	case t.Capabilities != nil:
		return t.Capabilities, TypeCapabilities
	case t.TransportCreated != nil:
		return t.TransportCreated, TypeTransportCreated
	case t.TransportConnected != nil:
		return t.TransportConnected, TypeTransportConnected
	case t.TransportProducing != nil:
		return t.TransportProducing, TypeTransportProducing
	case t.NewProducers != nil:
		return t.NewProducers, TypeNewProducers
	case t.ProducerConsumed != nil:
		return t.ProducerConsumed, TypeProducerConsumed
	case t.ConsumerClosed != nil:
		return t.ConsumerClosed, TypeConsumerClosedToClt
	case t.Error != nil:
		return t.Error, TypeError
	default:
		return nil, ""
	}
}

// Encode renders a (channelID, peerID, payload) triple as the 3-element
// array the controller expects, tagging payload's "type" field. It returns
// (nil, false) when msg is Nothing, signalling the caller to suppress the
// send.
func Encode(channel ChannelID, peer PeerID, msg ToClient) ([]byte, bool) {
	payload, tag := msg.payload()
	if payload == nil {
		return nil, false
	}

	tagged, err := json.Marshal(payload)
	if err != nil {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(tagged, &fields); err != nil {
		return nil, false
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	fields["type"], _ = json.Marshal(tag) //nolint:errcheck // marshalling a string literal cannot fail

	taggedBytes, err := json.Marshal(fields)
	if err != nil {
		return nil, false
	}

	out, err := json.Marshal([]json.RawMessage{
		mustMarshal(channel),
		mustMarshal(peer),
		taggedBytes,
	})
	if err != nil {
		return nil, false
	}
	return out, true
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
