package notify

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GarretWalker/marketplace-management/internal/config"
)

func TestNewMailer(t *testing.T) {
	t.Run("disabled logs only", func(t *testing.T) {
		if _, ok := NewMailer(config.NotificationsConfig{Enabled: false}).(LogMailer); !ok {
			t.Error("NewMailer(disabled) is not a LogMailer")
		}
	})

	t.Run("enabled without host logs only", func(t *testing.T) {
		if _, ok := NewMailer(config.NotificationsConfig{Enabled: true}).(LogMailer); !ok {
			t.Error("NewMailer(no host) is not a LogMailer")
		}
	})

	t.Run("enabled with host uses smtp", func(t *testing.T) {
		cfg := config.NotificationsConfig{Enabled: true, SMTP: config.SMTPConfig{Host: "smtp.example.com", Port: 587}}
		if _, ok := NewMailer(cfg).(*SMTPMailer); !ok {
			t.Error("NewMailer(enabled) is not an *SMTPMailer")
		}
	})
}

func TestLogMailer_Send(t *testing.T) {
	if err := (LogMailer{}).Send(context.Background(), Message{To: "a@example.com", Subject: "s"}); err != nil {
		t.Errorf("Send() error = %v", err)
	}
	if err := (LogMailer{}).Send(context.Background(), Message{To: " "}); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("Send(no recipient) error = %v, want %v", err, ErrNoRecipient)
	}
}

func TestComposeMessage(t *testing.T) {
	raw := string(composeMessage("noreply@shop.local", "owner@example.com", "Hello\r\nBcc: evil@example.com", "line one\nline two"))

	if !strings.Contains(raw, "Subject: HelloBcc: evil@example.com\r\n") {
		t.Errorf("subject header not sanitized:\n%s", raw)
	}
	if strings.Count(raw, "Bcc:") != 1 || strings.Contains(raw, "\r\nBcc:") {
		t.Errorf("header injection produced a separate Bcc header:\n%s", raw)
	}
	if !strings.HasSuffix(raw, "\r\n\r\nline one\r\nline two\r\n") {
		t.Errorf("body not normalised to CRLF:\n%q", raw)
	}
}

func TestSMTPMailer_Send_NoRecipient(t *testing.T) {
	m := &SMTPMailer{cfg: config.SMTPConfig{Host: "localhost", Port: 25}}
	if err := m.Send(context.Background(), Message{To: "\r\n"}); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("Send() error = %v, want %v", err, ErrNoRecipient)
	}
}

func TestSMTPMailer_Send_CancelledContext(t *testing.T) {
	m := &SMTPMailer{cfg: config.SMTPConfig{Host: "localhost", Port: 25}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Send(ctx, Message{To: "a@example.com"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want context.Canceled", err)
	}
}

func TestSMTPMailer_Send_UnreachableServer(t *testing.T) {
	// Reserve a port and release it so nothing is listening there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	for _, useTLS := range []bool{false, true} {
		m := &SMTPMailer{cfg: config.SMTPConfig{
			Host: "127.0.0.1", Port: port, From: "noreply@shop.local", UseTLS: useTLS,
		}}
		if err := m.Send(context.Background(), Message{To: "a@example.com", Subject: "s", Body: "b"}); err == nil {
			t.Errorf("Send(useTLS=%v) expected error for closed port, got nil", useTLS)
		}
	}
}

// fakeSMTPServer accepts one session and speaks just enough SMTP for net/smtp.
// When silent is set it accepts the connection and never answers.
type fakeSMTPServer struct {
	ln     net.Listener
	silent bool

	mu       sync.Mutex
	commands []string
	data     string
	done     chan struct{}
}

func startFakeSMTP(t *testing.T, silent bool) *fakeSMTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	s := &fakeSMTPServer{ln: ln, silent: silent, done: make(chan struct{})}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *fakeSMTPServer) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

func (s *fakeSMTPServer) serve() {
	defer close(s.done)
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	if s.silent {
		// Hold the connection open until the client gives up.
		_, _ = r.ReadString('\n')
		return
	}

	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }
	reply("220 localhost ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		s.mu.Unlock()

		switch verb := strings.ToUpper(strings.SplitN(cmd, " ", 2)[0]); verb {
		case "EHLO", "HELO":
			reply("250 localhost")
		case "MAIL", "RCPT":
			reply("250 OK")
		case "DATA":
			reply("354 go ahead")
			var body strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				body.WriteString(l)
			}
			s.mu.Lock()
			s.data = body.String()
			s.mu.Unlock()
			reply("250 queued")
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func TestSMTPMailer_Send_DeliversMessage(t *testing.T) {
	srv := startFakeSMTP(t, false)
	m := &SMTPMailer{cfg: config.SMTPConfig{Host: "127.0.0.1", Port: srv.port(), From: "noreply@shop.local"}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Send(ctx, Message{To: "owner@example.com", Subject: "Hi", Body: "hello"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	<-srv.done

	srv.mu.Lock()
	defer srv.mu.Unlock()
	joined := strings.Join(srv.commands, "\n")
	if !strings.Contains(joined, "MAIL FROM:<noreply@shop.local>") {
		t.Errorf("MAIL FROM not sent, commands:\n%s", joined)
	}
	if !strings.Contains(joined, "RCPT TO:<owner@example.com>") {
		t.Errorf("RCPT TO not sent, commands:\n%s", joined)
	}
	if !strings.Contains(srv.data, "Subject: Hi\r\n") || !strings.Contains(srv.data, "hello\r\n") {
		t.Errorf("unexpected DATA payload:\n%q", srv.data)
	}
}

func TestSMTPMailer_Send_RequiresStartTLSWhenConfigured(t *testing.T) {
	srv := startFakeSMTP(t, false)
	m := &SMTPMailer{cfg: config.SMTPConfig{
		Host: "127.0.0.1", Port: srv.port(), From: "noreply@shop.local", UseTLS: true,
	}}

	err := m.Send(context.Background(), Message{To: "owner@example.com", Subject: "s", Body: "b"})
	if err == nil || !strings.Contains(err.Error(), "STARTTLS") {
		t.Fatalf("Send() error = %v, want STARTTLS refusal", err)
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	for _, cmd := range srv.commands {
		if strings.HasPrefix(cmd, "MAIL") {
			t.Errorf("message sent in clear text: %v", srv.commands)
		}
	}
}

func TestSMTPMailer_Send_HungServerHonoursDeadline(t *testing.T) {
	srv := startFakeSMTP(t, true)
	m := &SMTPMailer{cfg: config.SMTPConfig{Host: "127.0.0.1", Port: srv.port(), From: "noreply@shop.local"}}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := m.Send(ctx, Message{To: "owner@example.com", Subject: "s", Body: "b"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Send() returned after %v, want it bounded by the context deadline", elapsed)
	}
}

func TestSMTPMailer_Send_HungServerHonoursCancel(t *testing.T) {
	srv := startFakeSMTP(t, true)
	m := &SMTPMailer{cfg: config.SMTPConfig{Host: "127.0.0.1", Port: srv.port(), From: "noreply@shop.local"}}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() { done <- m.Send(ctx, Message{To: "owner@example.com", Subject: "s", Body: "b"}) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Send() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send() did not return after cancellation")
	}
}

func TestClaimEmails(t *testing.T) {
	approved := ClaimApprovedEmail("owner@example.com", "Main Street Bakery", "https://shop.local/")
	if approved.Subject != "Welcome to Shop Local!" {
		t.Errorf("approved subject = %q", approved.Subject)
	}
	if !strings.HasPrefix(approved.Body, "Your claim for Main Street Bakery has been approved. You can now log in to start adding products.") {
		t.Errorf("approved body = %q", approved.Body)
	}
	if !strings.Contains(approved.Body, "https://shop.local/merchant/dashboard") {
		t.Errorf("approved body has no dashboard link: %q", approved.Body)
	}

	denied := ClaimDeniedEmail("owner@example.com", "Main Street Bakery", "Not the owner")
	if denied.Subject != "Shop Local Claim Decision" {
		t.Errorf("denied subject = %q", denied.Subject)
	}
	if denied.Body != "Your claim for Main Street Bakery was not approved. Reason: Not the owner" {
		t.Errorf("denied body = %q", denied.Body)
	}
}
