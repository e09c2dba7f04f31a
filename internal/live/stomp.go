package live

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// STOMP 1.2 commands used by the client.
const (
	CmdConnect     = "CONNECT"
	CmdConnected   = "CONNECTED"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdMessage     = "MESSAGE"
	CmdError       = "ERROR"
	CmdDisconnect  = "DISCONNECT"
	CmdReceipt     = "RECEIPT"
	CmdSend        = "SEND"
)

var knownCommands = map[string]bool{
	CmdConnect: true, CmdConnected: true, CmdSubscribe: true, CmdUnsubscribe: true,
	CmdMessage: true, CmdError: true, CmdDisconnect: true, CmdReceipt: true, CmdSend: true,
}

// Frame is a single STOMP frame.
type Frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

// NewFrame creates a frame from alternating header keys and values.
func NewFrame(command string, kv ...string) *Frame {
	f := &Frame{Command: command, Headers: make(map[string]string, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Headers[kv[i]] = kv[i+1]
	}
	return f
}

// Header returns the named header value or "".
func (f *Frame) Header(name string) string {
	return f.Headers[name]
}

// escapes reports whether header values of this frame are escaped.
// CONNECT and CONNECTED are exempt for 1.0 compatibility.
func (f *Frame) escapes() bool {
	return f.Command != CmdConnect && f.Command != CmdConnected
}

// Encode renders the frame with headers in sorted order, a content-length for non-empty bodies and
// the terminating NUL.
func (f *Frame) Encode() []byte {
	var b bytes.Buffer
	b.WriteString(f.Command)
	b.WriteByte('\n')

	escape := f.escapes()
	for _, k := range slices.Sorted(maps.Keys(f.Headers)) {
		v := f.Headers[k]
		if escape {
			k, v = escapeHeader(k), escapeHeader(v)
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	if _, ok := f.Headers["content-length"]; !ok && len(f.Body) > 0 {
		b.WriteString("content-length:")
		b.WriteString(strconv.Itoa(len(f.Body)))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)
	return b.Bytes()
}

// Decode parses every frame in data. Heart-beat EOLs between frames are skipped, so a data
// containing only heart-beats yields no frames.
func Decode(data []byte) ([]*Frame, error) {
	var frames []*Frame
	for {
		data = bytes.TrimLeft(data, "\r\n")
		if len(data) == 0 {
			return frames, nil
		}

		f, rest, err := decodeOne(data)
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
		data = rest
	}
}

func decodeOne(data []byte) (*Frame, []byte, error) {
	readLine := func() (string, bool) {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			return "", false
		}
		line := strings.TrimSuffix(string(data[:i]), "\r")
		data = data[i+1:]
		return line, true
	}

	command, ok := readLine()
	if !ok {
		return nil, nil, fmt.Errorf("incomplete frame: missing command")
	}
	if !knownCommands[command] {
		return nil, nil, fmt.Errorf("unknown command %q", command)
	}

	f := &Frame{Command: command, Headers: make(map[string]string)}
	escape := f.escapes()
	for {
		line, ok := readLine()
		if !ok {
			return nil, nil, fmt.Errorf("incomplete frame: unterminated headers")
		}
		if line == "" {
			break
		}

		k, v, found := strings.Cut(line, ":")
		if !found {
			return nil, nil, fmt.Errorf("malformed header %q", line)
		}
		if escape {
			var err error
			if k, err = unescapeHeader(k); err != nil {
				return nil, nil, err
			}
			if v, err = unescapeHeader(v); err != nil {
				return nil, nil, err
			}
		}
		// Repeated headers: the first occurrence wins.
		if _, seen := f.Headers[k]; !seen {
			f.Headers[k] = v
		}
	}

	if cl, ok := f.Headers["content-length"]; ok {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return nil, nil, fmt.Errorf("invalid content-length %q", cl)
		}
		if len(data) < n+1 || data[n] != 0 {
			return nil, nil, fmt.Errorf("incomplete frame: body shorter than content-length %d", n)
		}
		f.Body = data[:n]
		return f, data[n+1:], nil
	}

	i := bytes.IndexByte(data, 0)
	if i < 0 {
		return nil, nil, fmt.Errorf("incomplete frame: missing NUL terminator")
	}
	f.Body = data[:i]
	return f, data[i+1:], nil
}

var headerEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`, ":", `\c`)

func escapeHeader(s string) string {
	return headerEscaper.Replace(s)
}

func unescapeHeader(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("invalid escape at end of header %q", s)
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'c':
			b.WriteByte(':')
		case '\\':
			b.WriteByte('\\')
		default:
			return "", fmt.Errorf("invalid escape \\%c in header %q", s[i], s)
		}
	}
	return b.String(), nil
}

func sortedTopics[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
