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

// Package buildinfo holds identifiers stamped in at link time via -ldflags
// and the developer/release split compiled in via build tags.
package buildinfo

// AppName identifies the installation's data directory and window title.
const AppName = "taigachat"

// AppVersion and BuildDate are overridden at release build time with
// -ldflags "-X ...=...". BuildDate drives the bundled-version activation
// check against installation.env's stored launcher build date.
var (
	AppVersion = "DEVELOPMENT"
	BuildDate  = "DEVELOPMENT"
)

// Developer reports whether this binary was built with the "developer"
// build tag. Build-tool (dev-server) mode is refused when false, matching
// the original's cfg!(feature = "developer_tools") split.
var Developer = developerBuild
