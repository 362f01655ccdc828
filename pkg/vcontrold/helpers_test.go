package vcontrold

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const testPrompt = DefaultPrompt

// noReply makes the fake daemon swallow a command without answering.
const noReply = "\x00silent"

// replyLine renders a single-line reply.
func replyLine(payload string) string {
	return testPrompt + payload + "\n"
}

// replyBlock renders a block reply terminated by two bare prompts.
func replyBlock(lines ...string) string {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(testPrompt + l + "\n")
	}
	sb.WriteString(testPrompt + "\n" + testPrompt + "\n")
	return sb.String()
}

// fakeDaemon is a scripted vcontrold on a loopback port.
type fakeDaemon struct {
	ln      net.Listener
	replies map[string]string

	mu       sync.Mutex
	received []string
	conns    atomic.Int32
}

func newFakeDaemon(t *testing.T, replies map[string]string) *fakeDaemon {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	d := &fakeDaemon{ln: ln, replies: replies}
	go d.serve()
	t.Cleanup(func() { ln.Close() })
	return d
}

func (d *fakeDaemon) serve() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		d.conns.Add(1)
		go d.handle(conn)
	}
}

func (d *fakeDaemon) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		d.mu.Lock()
		d.received = append(d.received, line)
		reply, ok := d.replies[line]
		d.mu.Unlock()

		if !ok {
			reply = replyLine("ERR: command unknown")
		}
		if reply == noReply {
			continue
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}

func (d *fakeDaemon) port() int { return d.ln.Addr().(*net.TCPAddr).Port }

func (d *fakeDaemon) endpoint() Endpoint {
	return Endpoint{Host: "127.0.0.1", Port: d.port()}
}

func (d *fakeDaemon) lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.received...)
}

// boilerReplies scripts a small heating controller.
func boilerReplies() map[string]string {
	return map[string]string{
		"commands": replyBlock(
			"getTempA: Ermittle die Aussentemperatur",
			"getTempECS: Ermittle die Warmwassertemperatur",
			"setTempECS: Setze die Warmwassertemperatur",
			"getPumpeStatus: Status der Umwaelzpumpe",
			"getBetriebArt: Betriebsart",
			"getDevice: Geraetekennung",
		),
		"detail getTempA":       replyBlock("getTempA: Ermittle die Aussentemperatur", "Einheit: Grad Celsius", "Type: float"),
		"detail getTempECS":     replyBlock("Einheit: Grad Celsius", "Type: float"),
		"detail setTempECS":     replyBlock("Type: float", "Einheit: Grad Celsius", "Type: enum"),
		"detail getPumpeStatus": replyBlock("Type: onoff", "Einheit: (null)"),
		"detail getBetriebArt": replyBlock(
			"Type: enum",
			"Enum Bytes:00 Text:WW",
			"Enum Bytes:01 Text:RED",
			"Enum Bytes:02 Text:NORM",
		),
		"detail getDevice": replyBlock("Einheit: (null)"),
		"getTempA":         replyLine("21.5 Grad Celsius"),
		"getTempECS":       replyLine("45.0 Grad Celsius"),
		"setTempECS 45":    replyLine("OK"),
		"setTempECS 90":    replyLine("ERR: value out of range"),
		"getPumpeStatus":   replyLine("1"),
		"getBetriebArt":    replyLine("RED"),
		"getDevice":        replyLine("V200KW2"),
	}
}

// fakeReply is the scripted answer of a fakeSession.
type fakeReply struct {
	line  string
	block []string
	err   error
}

// fakeSession records writes and answers from a script.
type fakeSession struct {
	replies map[string]fakeReply
	sent    []string
	pending string
	closed  bool
}

func newFakeSession(replies map[string]fakeReply) *fakeSession {
	return &fakeSession{replies: replies}
}

func (s *fakeSession) SendLine(_ context.Context, text string) error {
	s.sent = append(s.sent, text)
	s.pending = text
	return nil
}

func (s *fakeSession) reply() (fakeReply, error) {
	r, ok := s.replies[s.pending]
	if !ok {
		return fakeReply{}, fmt.Errorf("%w: no reply scripted for %q", ErrConnection, s.pending)
	}
	return r, r.err
}

func (s *fakeSession) ReadLine(context.Context) (string, error) {
	r, err := s.reply()
	return r.line, err
}

func (s *fakeSession) ReadBlock(context.Context) ([]string, error) {
	r, err := s.reply()
	return r.block, err
}

func (s *fakeSession) Prompt() string { return testPrompt }

func (s *fakeSession) Close() { s.closed = true }

// testCatalog returns the catalog boilerReplies describes.
func testCatalog() *Catalog {
	return NewCatalog(Endpoint{Host: "boiler", Port: DefaultPort}, []CommandMeta{
		{Name: "getTempA", Getter: "getTempA", Type: TypeNumeric, Unit: "Grad Celsius"},
		{Name: "getTempECS", Getter: "getTempECS", Type: TypeNumeric, Unit: "Grad Celsius"},
		{Name: "setTempECS", Setter: "setTempECS", Type: TypeNumeric, Unit: "Grad Celsius"},
		{Name: "getPumpeStatus", Getter: "getPumpeStatus", Type: TypeSwitch},
		{Name: "setPumpe", Setter: "setPumpe", Type: TypeSwitch},
		{Name: "getBetriebArt", Getter: "getBetriebArt", Type: TypeEnum,
			Enum: []string{"00", "01", "02"}, EnumText: []string{"WW", "RED", "NORM"}},
		{Name: "setBetriebArt", Setter: "setBetriebArt", Type: TypeEnum,
			Enum: []string{"00", "01", "02"}, EnumText: []string{"WW", "RED", "NORM"}},
		{Name: "getDevice", Getter: "getDevice", Type: TypeString},
	})
}
