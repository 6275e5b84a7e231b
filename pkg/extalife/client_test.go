package extalife

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// fakeController speaks just enough of the EFC-01 wire protocol for the
// client to connect, log in and run commands against it.
type fakeController struct {
	ln net.Listener

	mu     sync.Mutex
	noops  int
	logins []Data
}

func newFakeController(t *testing.T) *fakeController {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fc := &fakeController{ln: ln}
	go fc.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return fc
}

func (fc *fakeController) port() int {
	_, port, _ := net.SplitHostPort(fc.ln.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

func (fc *fakeController) serve() {
	for {
		conn, err := fc.ln.Accept()
		if err != nil {
			return
		}
		go fc.handle(conn)
	}
}

func (fc *fakeController) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		raw, err := r.ReadBytes(etx)
		if err != nil {
			return
		}
		raw = raw[:len(raw)-1]
		if len(raw) == 1 && raw[0] == ' ' {
			fc.mu.Lock()
			fc.noops++
			fc.mu.Unlock()
			continue
		}

		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}

		switch req.Command {
		case CmdLogin:
			fc.mu.Lock()
			fc.logins = append(fc.logins, req.Data)
			fc.mu.Unlock()
			if req.Data["password"] != "secret" {
				fc.send(conn, `{"command":1,"status":"failure","data":{"code":-23}}`)
				continue
			}
			fc.send(conn, `{"command":1,"status":"success","data":{}}`)
		case CmdGetConfigDetails:
			fc.send(conn, `{"command":154,"status":"success","data":{"network":{"name":"Home","mac":"001122AABBCC"}}}`)
		case CmdCheckVersion:
			fc.send(conn, `{"command":151,"status":"success","data":{"installed_version":"1.6.10","web_version":"1.6.29","update_state":0}}`)
		case CmdRestart:
			fc.send(conn, `{"command":150,"status":"success","data":{}}`)
		case CmdDownloadBackup:
			fc.send(conn, `{"command":500,"status":"partial","data_element":1,"payload":"a"}`)
			fc.send(conn, `{"command":500,"status":"partial","data_element":2,"payload":"b"}`)
			fc.send(conn, `{"command":500,"status":"success"}`)
		case CmdUploadBackup:
			fc.send(conn, `{"command":501,"status":"success","data":{}}`)
		case CmdFetchReceivers:
			fc.send(conn, fmt.Sprintf(`{"command":37,"status":"success","data":%s}`, receiversFrame))
		case CmdFetchSensors, CmdFetchTransmitters, CmdFetchExtaFree:
			fc.send(conn, fmt.Sprintf(`{"command":%d,"status":"success","data":{"devices":[]}}`, req.Command))
		}
	}
}

func (fc *fakeController) send(conn net.Conn, frame string) {
	_, _ = conn.Write(append([]byte(frame), etx))
}

func testClient(t *testing.T, fc *fakeController, opts ...ClientOption) *Client {
	t.Helper()
	opts = append([]ClientOption{
		WithHost("127.0.0.1"),
		WithPort(fc.port()),
		WithCredentials("admin", "secret"),
		WithTimeout(2 * time.Second),
		WithLogger(zaptest.NewLogger(t)),
	}, opts...)
	c, err := NewClient(opts...)
	require.NoError(t, err)
	return c
}

func TestClientConnect(t *testing.T) {
	fc := newFakeController(t)
	c := testClient(t, fc)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.Connected())
	assert.Equal(t, "Home", c.Name())
	assert.Equal(t, "00:11:22:aa:bb:cc", c.MAC())

	ver := c.Version()
	assert.Equal(t, "1.6.10", ver.Installed)
	assert.True(t, ver.UpdateAvailable)
}

func TestClientLoginFailure(t *testing.T) {
	fc := newFakeController(t)
	c := testClient(t, fc, WithCredentials("admin", "wrong"))
	defer c.Close()

	err := c.Connect(context.Background())
	require.Error(t, err)
	var cmdErr *CmdError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, CmdLogin, cmdErr.Command)
	assert.False(t, c.Connected())
}

func TestClientRestart(t *testing.T) {
	fc := newFakeController(t)
	c := testClient(t, fc)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	assert.NoError(t, c.Restart(context.Background()))
}

func TestClientDownloadBackup(t *testing.T) {
	fc := newFakeController(t)
	c := testClient(t, fc)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	frames, err := c.DownloadBackup(context.Background())
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "a", frames[0]["payload"])
	assert.Equal(t, "b", frames[1]["payload"])

	assert.NoError(t, c.UploadBackup(context.Background(), frames))
}

func TestClientChannels(t *testing.T) {
	fc := newFakeController(t)
	c := testClient(t, fc)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	channels, err := c.Channels(context.Background())
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "11-1", channels[0].ID)
}

func TestClientKeepalive(t *testing.T) {
	fc := newFakeController(t)
	c := testClient(t, fc, WithKeepalive(1500*time.Millisecond))
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	time.Sleep(3 * time.Second)

	fc.mu.Lock()
	noops := fc.noops
	fc.mu.Unlock()
	assert.Greater(t, noops, 0)
}

func TestClientExecNotConnected(t *testing.T) {
	c, err := NewClient(WithHost("127.0.0.1"), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	_, err = c.Exec(context.Background(), CmdRestart, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClientReconnectGoroutines(t *testing.T) {
	fc := newFakeController(t)
	c := testClient(t, fc)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	before := runtime.NumGoroutine()

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Close())
		require.NoError(t, c.Connect(context.Background()))
	}
	// loops of replaced connections exit within one keep-alive tick
	time.Sleep(3 * time.Second)

	after := runtime.NumGoroutine()
	assert.LessOrEqual(t, after, before+2)
}

func TestClientDiscoveryKeepsConfiguredPort(t *testing.T) {
	c, err := NewClient(WithPort(1234), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	// no controller broadcasts here, discovery times out
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.Error(t, c.Connect(ctx))
	assert.Equal(t, 1234, c.port)
}

func TestClientDispatchFullBuffer(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	c := &Client{logger: zap.New(core), handlers: make(map[int]chan *Frame)}
	ch := make(chan *Frame, 1)
	c.addHandler(ch)

	f := &Frame{Command: CmdDownloadBackup, Status: StatusPartial}
	c.dispatch(f)
	c.dispatch(f)

	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "dropping frame")
}
