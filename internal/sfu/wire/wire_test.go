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

package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNewChannel(t *testing.T) {
	raw := `{"type":"NewChannel","channelId":7,"codecs":[{"mimeType":"audio/opus"}]}`
	decoded, err := Decode([]byte(raw))
	require.NoError(t, err)

	m, ok := decoded.(*NewChannel)
	require.True(t, ok)
	assert.Equal(t, ChannelID(7), m.ChannelID)
	require.Len(t, m.Codecs, 1)
}

func TestDecodeHandleClientCreateTransport(t *testing.T) {
	raw := `{"type":"HandleClient","channelId":1,"peerId":2,"client":{"type":"CreateTransport","rtpCapabilities":{},"forceTCP":true,"errand":9}}`
	decoded, err := Decode([]byte(raw))
	require.NoError(t, err)

	hc, ok := decoded.(*HandleClient)
	require.True(t, ok)
	assert.Equal(t, ChannelID(1), hc.ChannelID)
	assert.Equal(t, PeerID(2), hc.PeerID)
	require.NotNil(t, hc.Client.CreateTransport)
	assert.True(t, hc.Client.CreateTransport.ForceTCP)
	assert.Equal(t, int64(9), hc.Client.CreateTransport.Errand)
}

func TestDecodeUnknownTypeErrors(t *testing.T) {
	_, err := Decode([]byte(`{"type":"Bogus"}`))
	assert.Error(t, err)
}

func TestDecodeUnknownFromClientTypeErrors(t *testing.T) {
	raw := `{"type":"HandleClient","channelId":1,"peerId":2,"client":{"type":"Bogus"}}`
	_, err := Decode([]byte(raw))
	assert.Error(t, err)
}

func TestEncodeNothingSuppressesSend(t *testing.T) {
	_, ok := Encode(1, 2, ToClient{Nothing: true})
	assert.False(t, ok)
}

func TestEncodeTagsPayloadAndWrapsTriple(t *testing.T) {
	data, ok := Encode(3, 4, ToClient{
		Capabilities: &Capabilities{RTPCapabilities: json.RawMessage(`{"codecs":[]}`)},
	})
	require.True(t, ok)

	var triple []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &triple))
	require.Len(t, triple, 3)

	var channel ChannelID
	require.NoError(t, json.Unmarshal(triple[0], &channel))
	assert.Equal(t, ChannelID(3), channel)

	var peer PeerID
	require.NoError(t, json.Unmarshal(triple[1], &peer))
	assert.Equal(t, PeerID(4), peer)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(triple[2], &fields))
	var tag string
	require.NoError(t, json.Unmarshal(fields["type"], &tag))
	assert.Equal(t, TypeCapabilities, tag)
}

func TestEncodeErrorVariant(t *testing.T) {
	data, ok := Encode(0, 0, ToClient{Error: &ErrorMsg{Message: "boom", Errand: 5}})
	require.True(t, ok)

	var triple []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &triple))

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(triple[2], &fields))
	var tag string
	require.NoError(t, json.Unmarshal(fields["type"], &tag))
	assert.Equal(t, TypeError, tag)

	var msg string
	require.NoError(t, json.Unmarshal(fields["message"], &msg))
	assert.Equal(t, "boom", msg)
}
