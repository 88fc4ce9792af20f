// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a mailbox failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindDNS
	KindTimeout
	KindConnection
	KindAuth
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindDNS:
		return "dns"
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindAuth:
		return "auth"
	case KindProtocol:
		return "protocol"
	}
	return "unknown"
}

// Error is returned by the mailbox client for every failed operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mailbox %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of a mailbox error, or KindUnknown.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindUnknown
}

// IsNetwork reports whether err is a transient network failure: DNS
// resolution, a timeout or a refused/dropped connection. Authentication
// and protocol failures are not network failures.
func IsNetwork(err error) bool {
	switch KindOf(err) {
	case KindDNS, KindTimeout, KindConnection:
		return true
	}
	return false
}

// classifyDial maps a resolve/dial/handshake error onto a Kind.
func classifyDial(op string, err error) *Error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return &Error{Kind: KindTimeout, Op: op, Err: err}
		}
		return &Error{Kind: KindDNS, Op: op, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	// Refused, reset and unreachable all land here.
	return &Error{Kind: KindConnection, Op: op, Err: err}
}
