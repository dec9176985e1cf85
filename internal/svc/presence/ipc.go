package presence

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stepcord/stepcord/internal/instance"
	"github.com/stepcord/stepcord/internal/kind"
	"github.com/stepcord/stepcord/internal/status"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	opHandshake uint32 = iota
	opFrame
	opClose
	opPing
	opPong
)

const maxFrameSize = 1 << 20

type ipcMessage struct {
	Cmd   string              `json:"cmd"`
	Evt   string              `json:"evt,omitempty"`
	Nonce string              `json:"nonce,omitempty"`
	Args  jsoniter.RawMessage `json:"args,omitempty"`
	Data  jsoniter.RawMessage `json:"data,omitempty"`
}

type ipcHandshake struct {
	V        int    `json:"v"`
	ClientID string `json:"client_id"`
}

type ipcErrorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type ipcActivityArgs struct {
	Pid      int          `json:"pid"`
	Activity *ipcActivity `json:"activity,omitempty"`
}

type ipcActivity struct {
	Details    string         `json:"details,omitempty"`
	State      string         `json:"state,omitempty"`
	Timestamps *ipcTimestamps `json:"timestamps,omitempty"`
	Assets     *ipcAssets     `json:"assets,omitempty"`
}

type ipcTimestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

type ipcAssets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
}

type ipcReply struct {
	msg ipcMessage
	err error
}

// ipcSession speaks the Discord local RPC protocol: little endian opcode and
// length headers followed by a JSON body.
type ipcSession struct {
	kind     kind.Kind
	clientID string
	dial     func(ctx context.Context) (net.Conn, error)
	timeout  time.Duration

	state atomic.Int32

	wmtx sync.Mutex
	conn net.Conn

	pmtx    sync.Mutex
	pending map[string]chan ipcReply
}

func newIPCSession(k kind.Kind, clientID string, dial func(ctx context.Context) (net.Conn, error), timeout time.Duration) *ipcSession {
	return &ipcSession{
		kind:     k,
		clientID: clientID,
		dial:     dial,
		timeout:  timeout,
		pending:  make(map[string]chan ipcReply),
	}
}

func (s *ipcSession) Kind() kind.Kind {
	return s.kind
}

func (s *ipcSession) State() instance.SessionState {
	return instance.SessionState(s.state.Load())
}

// Connect opens the socket and sends the handshake. The session turns
// connected once the READY dispatch arrives on the reader goroutine.
func (s *ipcSession) Connect(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}

	s.wmtx.Lock()
	s.conn = conn
	s.wmtx.Unlock()

	if err := s.write(opHandshake, ipcHandshake{V: 1, ClientID: s.clientID}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("ipc handshake: %w", err)
	}

	go s.read(conn)

	return nil
}

func (s *ipcSession) Publish(ctx context.Context, st status.Status) error {
	act := &ipcActivity{
		Details: st.Title,
		State:   st.Subtitle,
	}

	if !st.Start.IsZero() || !st.End.IsZero() {
		act.Timestamps = &ipcTimestamps{}
		if !st.Start.IsZero() {
			act.Timestamps.Start = st.Start.Unix()
		}
		if !st.End.IsZero() {
			act.Timestamps.End = st.End.Unix()
		}
	}

	if st.ImageKey != "" {
		act.Assets = &ipcAssets{
			LargeImage: st.ImageKey,
			LargeText:  st.ImageText,
		}
	}

	return s.command(ctx, "SET_ACTIVITY", ipcActivityArgs{
		Pid:      os.Getpid(),
		Activity: act,
	})
}

func (s *ipcSession) Clear(ctx context.Context) error {
	return s.command(ctx, "SET_ACTIVITY", ipcActivityArgs{Pid: os.Getpid()})
}

func (s *ipcSession) Close() error {
	s.state.Store(int32(instance.SessionDisconnected))

	s.wmtx.Lock()
	conn := s.conn
	s.conn = nil
	s.wmtx.Unlock()

	if conn == nil {
		return nil
	}

	return conn.Close()
}

func (s *ipcSession) command(ctx context.Context, cmd string, args interface{}) error {
	if s.State() != instance.SessionConnected {
		return ErrNotConnected
	}

	b, err := json.Marshal(args)
	if err != nil {
		return err
	}

	nonce := uuid.NewString()
	ch := make(chan ipcReply, 1)

	s.pmtx.Lock()
	s.pending[nonce] = ch
	s.pmtx.Unlock()

	defer func() {
		s.pmtx.Lock()
		delete(s.pending, nonce)
		s.pmtx.Unlock()
	}()

	if err := s.write(opFrame, ipcMessage{Cmd: cmd, Nonce: nonce, Args: b}); err != nil {
		s.state.Store(int32(instance.SessionDisconnected))
		return err
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}

		if r.msg.Evt == "ERROR" {
			data := ipcErrorData{}
			_ = json.Unmarshal(r.msg.Data, &data)

			return &ChannelError{Code: data.Code, Message: data.Message}
		}

		return nil
	case <-timer.C:
		return fmt.Errorf("%s: no reply within %s", cmd, s.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ipcSession) write(op uint32, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return s.writeRaw(op, b)
}

func (s *ipcSession) writeRaw(op uint32, payload []byte) error {
	buf := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], op)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[8:], payload)

	s.wmtx.Lock()
	defer s.wmtx.Unlock()

	if s.conn == nil {
		return ErrClosed
	}

	_, err := s.conn.Write(buf)

	return err
}

func (s *ipcSession) read(conn net.Conn) {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Errorw("panic in ipc reader",
				"kind", s.kind.String(),
				"panic", err,
			)
		}

		s.state.Store(int32(instance.SessionDisconnected))
		s.failPending(ErrClosed)
	}()

	for {
		op, payload, err := readFrame(conn)
		if err != nil {
			zap.S().Debugw("ipc read ended",
				"kind", s.kind.String(),
				"error", err,
			)

			return
		}

		switch op {
		case opPing:
			_ = s.writeRaw(opPong, payload)
		case opClose:
			data := ipcErrorData{}
			_ = json.Unmarshal(payload, &data)

			zap.S().Warnw("presence channel closed by peer",
				"kind", s.kind.String(),
				"code", data.Code,
				"message", data.Message,
			)

			return
		case opFrame:
			msg := ipcMessage{}
			if err := json.Unmarshal(payload, &msg); err != nil {
				continue
			}

			if msg.Cmd == "DISPATCH" && msg.Evt == "READY" {
				s.state.Store(int32(instance.SessionConnected))
				zap.S().Infow("presence channel ready",
					"kind", s.kind.String(),
					"transport", "ipc",
				)

				continue
			}

			if msg.Nonce != "" {
				s.deliver(ipcReply{msg: msg}, msg.Nonce)
			}
		}
	}
}

func (s *ipcSession) deliver(r ipcReply, nonce string) {
	s.pmtx.Lock()
	defer s.pmtx.Unlock()

	if ch, ok := s.pending[nonce]; ok {
		select {
		case ch <- r:
		default:
		}
	}
}

func (s *ipcSession) failPending(err error) {
	s.pmtx.Lock()
	defer s.pmtx.Unlock()

	for _, ch := range s.pending {
		select {
		case ch <- ipcReply{err: err}:
		default:
		}
	}
}

func readFrame(r io.Reader) (uint32, []byte, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}

	op := binary.LittleEndian.Uint32(header[0:4])
	n := binary.LittleEndian.Uint32(header[4:8])

	if n > maxFrameSize {
		return 0, nil, fmt.Errorf("ipc frame of %d bytes exceeds limit", n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}

	return op, payload, nil
}
