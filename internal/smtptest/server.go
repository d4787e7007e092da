// Package smtptest runs a minimal SMTP server on the loopback interface for tests.
package smtptest

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Reply is an SMTP status line.
type Reply struct {
	Code int
	Text string
}

var OK = Reply{Code: 250, Text: "2.0.0 ok"}

// Message is one accepted DATA transaction.
type Message struct {
	From string
	To   []string
	Data string
}

// Server answers RCPT with Rcpt, DATA with Data and, when Username is set,
// advertises AUTH PLAIN.
type Server struct {
	Host string
	Port int

	Rcpt     func(address string) Reply
	Data     func(msg Message) Reply
	Username string
	Password string

	ln       net.Listener
	mu       sync.Mutex
	messages []Message
	rcpts    []string
	wg       sync.WaitGroup
}

// New starts a server. setup runs before the first connection is accepted;
// without it every recipient and message is accepted.
func New(t testing.TB, setup ...func(*Server)) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(port)

	s := &Server{Host: host, Port: p, ln: ln}
	for _, fn := range setup {
		fn(s)
	}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(func() {
		ln.Close()
		s.wg.Wait()
	})
	return s
}

func (s *Server) Addr() string { return s.ln.Addr().String() }

// Messages returns the accepted messages.
func (s *Server) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Recipients returns every RCPT address seen, accepted or not.
func (s *Server) Recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.rcpts...)
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	reply := func(code int, text string) {
		fmt.Fprintf(w, "%d %s\r\n", code, text)
		w.Flush()
	}

	reply(220, "smtptest ESMTP")
	var msg Message
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb, arg, _ := strings.Cut(line, " ")

		switch strings.ToUpper(verb) {
		case "EHLO":
			fmt.Fprintf(w, "250-smtptest\r\n")
			if s.Username != "" {
				fmt.Fprintf(w, "250-AUTH PLAIN\r\n")
			}
			reply(250, "8BITMIME")
		case "HELO":
			reply(250, "smtptest")
		case "AUTH":
			if s.authorized(arg) {
				reply(235, "2.7.0 authenticated")
			} else {
				reply(535, "5.7.8 bad credentials")
			}
		case "MAIL":
			msg = Message{From: address(arg)}
			reply(250, "2.1.0 ok")
		case "RCPT":
			addr := address(arg)
			res := OK
			if s.Rcpt != nil {
				res = s.Rcpt(addr)
			}
			s.mu.Lock()
			s.rcpts = append(s.rcpts, addr)
			s.mu.Unlock()
			if res.Code < 300 {
				msg.To = append(msg.To, addr)
			}
			reply(res.Code, res.Text)
		case "DATA":
			reply(354, "end data with <CR><LF>.<CR><LF>")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" || l == ".\n" {
					break
				}
				b.WriteString(strings.TrimPrefix(l, "."))
			}
			msg.Data = b.String()
			res := OK
			if s.Data != nil {
				res = s.Data(msg)
			}
			if res.Code < 300 {
				s.mu.Lock()
				s.messages = append(s.messages, msg)
				s.mu.Unlock()
			}
			reply(res.Code, res.Text)
		case "RSET", "NOOP":
			msg = Message{}
			reply(250, "2.0.0 ok")
		case "QUIT":
			reply(221, "2.0.0 bye")
			return
		default:
			reply(502, "5.5.2 command not recognized")
		}
	}
}

func (s *Server) authorized(arg string) bool {
	mech, resp, _ := strings.Cut(arg, " ")
	if !strings.EqualFold(mech, "PLAIN") {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(resp)
	if err != nil {
		return false
	}
	parts := strings.Split(string(raw), "\x00")
	return len(parts) == 3 && parts[1] == s.Username && parts[2] == s.Password
}

func address(arg string) string {
	start := strings.IndexByte(arg, '<')
	end := strings.IndexByte(arg, '>')
	if start < 0 || end < start {
		return strings.TrimSpace(arg)
	}
	return arg[start+1 : end]
}
