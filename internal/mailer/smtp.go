package mailer

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
)

const boundary = "bird-whisperer-alt"

const plainFallback = "This digest is an HTML email. Open it in a mail client that can display HTML."

// SMTP delivers mail through an SMTP relay.
type SMTP struct {
	addr     string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTP creates an SMTP transport. Authentication is skipped when user is empty.
func NewSMTP(host string, port int, user, password string) *SMTP {
	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, password, host)
	}
	return &SMTP{
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

// Deliver implements Transport.
func (s *SMTP) Deliver(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	envelopeFrom := msg.From
	if a, err := parseAddress(msg.From); err == nil {
		envelopeFrom = a
	}

	err := s.sendMail(s.addr, s.auth, envelopeFrom, []string{msg.To}, buildMIME(msg))
	if err == nil {
		return nil
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 421, 450, 451:
			return fmt.Errorf("smtp: %w: %w", ErrRateLimited, err)
		}
	}
	return fmt.Errorf("smtp: %w", err)
}

// buildMIME renders a multipart/alternative message with a plain fallback
// and the HTML body.
func buildMIME(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	writeQuotedPrintable(&b, plainFallback)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	writeQuotedPrintable(&b, msg.HTML)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}

// writeQuotedPrintable encodes s so no body line exceeds 76 columns and the
// part is 7-bit clean.
func writeQuotedPrintable(b *strings.Builder, s string) {
	w := quotedprintable.NewWriter(b)
	_, _ = w.Write([]byte(s))
	_ = w.Close()
}

func parseAddress(s string) (string, error) {
	a, err := mail.ParseAddress(s)
	if err != nil {
		return "", err
	}
	return a.Address, nil
}
