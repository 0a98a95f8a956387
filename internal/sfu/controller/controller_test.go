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

package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseControllerURLStandardWebSocket(t *testing.T) {
	httpPath, sockPath, isUnix, err := parseControllerURL("wss://sfu.example.com:9000/controller")
	require.NoError(t, err)
	assert.False(t, isUnix)
	assert.Empty(t, httpPath)
	assert.Empty(t, sockPath)
}

func TestParseControllerURLUnixDomainSocket(t *testing.T) {
	httpPath, sockPath, isUnix, err := parseControllerURL("ws://unix/controller:/run/taigachat/sfu.sock")
	require.NoError(t, err)
	require.True(t, isUnix)
	assert.Equal(t, "/controller", httpPath)
	assert.Equal(t, "/run/taigachat/sfu.sock", sockPath)
}

func TestParseControllerURLMalformedUnixMissingSeparator(t *testing.T) {
	_, _, _, err := parseControllerURL("ws://unix/controller")
	assert.Error(t, err)
}
