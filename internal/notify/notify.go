// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify delivers intrusion alerts to the owner by email. Delivery is
// fire-and-forget from the caller's point of view: a failed or throttled
// alert never slows down evidence capture, and nothing about the delivery is
// visible at the keyboard.
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/camguard/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrThrottled indicates the alert was dropped by the rate limiter. A burst
// of failed attempts produces one alert, not an inbox flood.
var ErrThrottled = errors.New("alert throttled")

// ErrDisabled indicates alerting is switched off in configuration.
var ErrDisabled = errors.New("alerts disabled")

// =============================================================================
// ALERT
// =============================================================================

// Alert is the payload delivered to the owner.
type Alert struct {
	EpisodeID    string
	OccurredAt   time.Time
	FailureCount int
	Surface      string
	Hostname     string
	LocalIP      string
	Artifacts    []string
}

// =============================================================================
// ALERTER
// =============================================================================

// Options configures the Alerter.
type Options struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Timeout  time.Duration

	// RatePerMinute and Burst bound alert volume.
	RatePerMinute float64
	Burst         int
}

// sendFunc delivers a raw message; replaceable for tests.
type sendFunc func(ctx context.Context, to []string, msg []byte) error

// Alerter sends rate-limited email alerts.
type Alerter struct {
	opts    Options
	limiter *rate.Limiter
	send    sendFunc

	mu       sync.Mutex
	lastSent time.Time
	sent     int
	dropped  int
}

// Option configures an Alerter.
type Option func(*Alerter)

// WithSendFunc replaces the SMTP transport. Used by tests.
func WithSendFunc(fn func(ctx context.Context, to []string, msg []byte) error) Option {
	return func(a *Alerter) { a.send = fn }
}

// New creates an Alerter.
func New(opts Options, extra ...Option) *Alerter {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 3
	}
	a := &Alerter{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerMinute/60.0), opts.Burst),
	}
	a.send = a.smtpSend
	for _, o := range extra {
		o(a)
	}
	return a
}

// Send delivers an alert, subject to the rate limiter.
func (a *Alerter) Send(ctx context.Context, alert Alert) error {
	if !a.opts.Enabled {
		return ErrDisabled
	}
	if !a.limiter.Allow() {
		a.mu.Lock()
		a.dropped++
		a.mu.Unlock()
		return ErrThrottled
	}

	if alert.Hostname == "" {
		alert.Hostname, _ = os.Hostname()
	}
	if alert.LocalIP == "" {
		alert.LocalIP = util.LocalIP()
	}

	msg := a.buildMessage(alert)
	if err := a.send(ctx, a.opts.To, msg); err != nil {
		return fmt.Errorf("alert delivery failed: %w", err)
	}

	a.mu.Lock()
	a.sent++
	a.lastSent = time.Now()
	a.mu.Unlock()
	return nil
}

// Stats reports delivery counters.
func (a *Alerter) Stats() (sent, dropped int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sent, a.dropped
}

// =============================================================================
// MESSAGE
// =============================================================================

func (a *Alerter) buildMessage(alert Alert) []byte {
	occurred := alert.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", a.opts.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(a.opts.To, ", "))
	fmt.Fprintf(&b, "Subject: camguard: suspected intrusion on %s\r\n", alert.Hostname)
	fmt.Fprintf(&b, "Date: %s\r\n", occurred.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")

	fmt.Fprintf(&b, "Suspected intrusion detected.\r\n\r\n")
	fmt.Fprintf(&b, "Time:            %s\r\n", occurred.Format(time.RFC3339))
	fmt.Fprintf(&b, "Host:            %s\r\n", alert.Hostname)
	fmt.Fprintf(&b, "Local IP:        %s\r\n", alert.LocalIP)
	fmt.Fprintf(&b, "Surface:         %s\r\n", alert.Surface)
	fmt.Fprintf(&b, "Failed attempts: %d\r\n", alert.FailureCount)
	fmt.Fprintf(&b, "Episode:         %s\r\n", alert.EpisodeID)
	if len(alert.Artifacts) > 0 {
		b.WriteString("\r\nEvidence captured:\r\n")
		for _, p := range alert.Artifacts {
			fmt.Fprintf(&b, "  %s\r\n", p)
		}
	}
	return []byte(b.String())
}

// =============================================================================
// SMTP TRANSPORT
// =============================================================================

// smtpSend delivers via SMTP with a connection deadline. STARTTLS is used
// when the server offers it.
func (a *Alerter) smtpSend(ctx context.Context, to []string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", a.opts.Host, a.opts.Port)

	dialer := &net.Dialer{Timeout: a.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(a.opts.Timeout))

	client, err := smtp.NewClient(conn, a.opts.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: a.opts.Host}); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}
	if a.opts.Username != "" {
		auth := smtp.PlainAuth("", a.opts.Username, a.opts.Password, a.opts.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth failed: %w", err)
		}
	}

	if err := client.Mail(a.opts.From); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

