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

// Package mailbox fetches unseen messages from an IMAP inbox and normalises
// them for the ingestion pipeline.
package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"golang.org/x/oauth2"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

const (
	defaultFolder      = "INBOX"
	defaultMaxMessages = 10
	defaultTimeout     = 30 * time.Second
	dnsDialTimeout     = 5 * time.Second
)

// Config holds the connection settings for the mailbox.
type Config struct {
	Host               string
	Port               int
	Username           string
	Password           string
	Folder             string
	TLS                bool
	InsecureSkipVerify bool
	MaxMessages        int
	Timeout            time.Duration
	DNSServers         []string

	// TokenSource switches authentication to OAUTHBEARER.
	TokenSource oauth2.TokenSource

	// Peek fetches without setting \Seen. Used for dry runs.
	Peek bool
}

// Handler processes one message and reports whether it was processed.
// Messages that fail to parse are still handed over with ParseErr set.
type Handler func(ctx context.Context, msg *models.InboundMessage) bool

// Client fetches unseen messages. Each FetchUnseen call opens and closes
// its own connection.
type Client struct {
	cfg      Config
	resolver *net.Resolver
}

// New creates a mailbox client, applying defaults for unset fields.
func New(cfg Config) *Client {
	if cfg.Folder == "" {
		cfg.Folder = defaultFolder
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = defaultMaxMessages
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	return &Client{cfg: cfg, resolver: newResolver(cfg.DNSServers)}
}

// newResolver returns a resolver that queries the given DNS servers in
// order, or the system resolver when none are configured.
func newResolver(servers []string) *net.Resolver {
	if len(servers) == 0 {
		return net.DefaultResolver
	}
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: dnsDialTimeout}
			var lastErr error
			for _, s := range servers {
				conn, err := d.DialContext(ctx, network, withDefaultPort(s, "53"))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			return nil, lastErr
		},
	}
}

func withDefaultPort(addr, port string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, port)
}

type fetched struct {
	uid          uint32
	internalDate time.Time
	raw          []byte
}

// FetchUnseen connects, fetches the most recent unseen messages and hands
// each to handler in order. It returns the number of messages handler
// reported as processed. When the timeout expires the connection is torn
// down and a KindTimeout error is returned with the partial count.
func (c *Client) FetchUnseen(ctx context.Context, handler Handler) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ic, err := c.connect(ctx)
	if err != nil {
		return 0, err
	}

	// Tear the connection down if the deadline fires mid-command.
	var terminated bool
	var mu sync.Mutex
	stop := context.AfterFunc(ctx, func() {
		mu.Lock()
		terminated = true
		mu.Unlock()
		_ = ic.Terminate()
	})
	defer func() {
		if stop() {
			_ = ic.Logout()
		}
	}()

	timedOut := func(op string, err error) error {
		mu.Lock()
		t := terminated
		mu.Unlock()
		if t || ctx.Err() != nil {
			return &Error{Kind: KindTimeout, Op: op, Err: context.Cause(ctx)}
		}
		return err
	}

	if err := c.authenticate(ic); err != nil {
		return 0, timedOut("authenticate", err)
	}

	if _, err := ic.Select(c.cfg.Folder, false); err != nil {
		return 0, timedOut("select", &Error{Kind: KindProtocol, Op: "select", Err: err})
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	seqNums, err := ic.Search(criteria)
	if err != nil {
		return 0, timedOut("search", &Error{Kind: KindProtocol, Op: "search", Err: err})
	}

	if len(seqNums) == 0 {
		slog.Debug("no unseen messages", "folder", c.cfg.Folder)
		return 0, nil
	}

	sort.Slice(seqNums, func(i, j int) bool { return seqNums[i] < seqNums[j] })
	total := len(seqNums)
	if total > c.cfg.MaxMessages {
		seqNums = seqNums[total-c.cfg.MaxMessages:]
	}

	slog.Info("unseen messages found",
		"folder", c.cfg.Folder,
		"unseen", total,
		"fetching", len(seqNums),
	)

	msgs, err := c.fetch(ic, seqNums)
	if err != nil {
		return 0, timedOut("fetch", &Error{Kind: KindProtocol, Op: "fetch", Err: err})
	}

	count := 0
	for _, f := range msgs {
		if ctx.Err() != nil {
			return count, &Error{Kind: KindTimeout, Op: "process", Err: ctx.Err()}
		}

		msg, err := ParseMessage(bytes.NewReader(f.raw), f.internalDate)
		if err != nil {
			msg = &models.InboundMessage{
				Date:        f.internalDate,
				Attachments: []models.Attachment{},
				ParseErr:    err,
			}
		}
		msg.UID = f.uid

		if handler(ctx, msg) {
			count++
		}
	}

	if ctx.Err() != nil {
		return count, &Error{Kind: KindTimeout, Op: "process", Err: ctx.Err()}
	}
	return count, nil
}

// fetch downloads the full bodies of seqNums. Without Peek the server sets
// \Seen on each message as it is fetched.
func (c *Client) fetch(ic *client.Client, seqNums []uint32) ([]fetched, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	section := &imap.BodySectionName{Peek: c.cfg.Peek}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	ch := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- ic.Fetch(seqset, items, ch)
	}()

	var out []fetched
	for m := range ch {
		body := m.GetBody(section)
		if body == nil {
			slog.Warn("message has no body", "uid", m.Uid)
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			slog.Warn("failed to read message body", "uid", m.Uid, "error", err)
			continue
		}
		out = append(out, fetched{uid: m.Uid, internalDate: m.InternalDate, raw: raw})
	}

	if err := <-done; err != nil {
		return nil, err
	}
	return out, nil
}

// connect resolves the host, dials it and reads the server greeting.
func (c *Client) connect(ctx context.Context) (*client.Client, error) {
	addrs, err := c.resolver.LookupHost(ctx, c.cfg.Host)
	if err != nil {
		return nil, classifyDial("resolve", err)
	}
	if len(addrs) == 0 {
		return nil, &Error{Kind: KindDNS, Op: "resolve", Err: fmt.Errorf("no addresses for %s", c.cfg.Host)}
	}

	d := net.Dialer{Timeout: c.cfg.Timeout}
	port := strconv.Itoa(c.cfg.Port)

	var conn net.Conn
	for _, addr := range addrs {
		conn, err = d.DialContext(ctx, "tcp", net.JoinHostPort(addr, port))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, classifyDial("dial", err)
	}

	if c.cfg.TLS {
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         c.cfg.Host,
			InsecureSkipVerify: c.cfg.InsecureSkipVerify,
		})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, classifyDial("tls handshake", err)
		}
		conn = tlsConn
	}

	// Bound the greeting read; cleared once the client is up.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	ic, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, classifyDial("greeting", err)
	}
	_ = conn.SetDeadline(time.Time{})
	ic.Timeout = c.cfg.Timeout

	slog.Debug("connected to mailbox", "host", c.cfg.Host, "port", c.cfg.Port)
	return ic, nil
}

func (c *Client) authenticate(ic *client.Client) error {
	if c.cfg.TokenSource != nil {
		saslClient, err := oauthBearer(c.cfg.TokenSource, c.cfg.Username, c.cfg.Host, c.cfg.Port)
		if err != nil {
			return &Error{Kind: KindAuth, Op: "oauth token", Err: err}
		}
		if err := ic.Authenticate(saslClient); err != nil {
			return &Error{Kind: KindAuth, Op: "authenticate", Err: err}
		}
		return nil
	}

	if err := ic.Login(c.cfg.Username, c.cfg.Password); err != nil {
		if isConnectionClosed(err) {
			return &Error{Kind: KindConnection, Op: "login", Err: err}
		}
		return &Error{Kind: KindAuth, Op: "login", Err: err}
	}
	return nil
}

func isConnectionClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
