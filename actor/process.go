// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package actor

import "github.com/google/uuid"

// ProcessID names one running actor or worker instance for tracing and
// for addressing a cancellation at it, the same role QueryID plays
// for a single proxied request in
// elasticproxy/proxy_http/logging.go.
type ProcessID string

// NewProcessID mints a fresh, globally unique ProcessID.
func NewProcessID() ProcessID {
	return ProcessID(uuid.New().String())
}

// Dispatch sends an action onward — to the next actor in the pipeline,
// to a subscriber, or (in tests) to a recording sink. It stands in for
// the scheduler's SchedulerCommand::Send in the original actor model;
// this package's actors don't own a scheduler, so they take a Dispatch
// callback instead.
type Dispatch func(Action)

// Logf, when non-nil, receives diagnostic messages from this package,
// following the nil-by-default hook convention used throughout (see
// arena.Logf).
var Logf func(format string, args ...any)
