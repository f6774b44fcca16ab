package server_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"

	"lobengine/internal/common"
	"lobengine/internal/engine"
	"lobengine/internal/server"
	"lobengine/internal/wire"
)

func startServer(t *testing.T) (addr string, e *engine.Engine, stop func()) {
	t.Helper()
	e = engine.New()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr = listener.Addr().String()
	listener.Close()

	s := server.New(addr, e)
	tb := &tomb.Tomb{}
	tb.Go(func() error { return s.Run(tb) })

	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	return addr, e, func() {
		tb.Kill(nil)
		tb.Wait()
	}
}

func TestNewOrderOverWireBooksOrder(t *testing.T) {
	addr, e, stop := startServer(t)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(wire.EncodeNewOrder(wire.NewOrderMessage{
		Side: common.Buy, Kind: common.GoodTillCancel, Price: 100, Quantity: 10, OrderID: 1,
	}))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return e.Size() == 1 }, time.Second, 10*time.Millisecond)
}

func TestCancelOverWireRemovesOrder(t *testing.T) {
	addr, e, stop := startServer(t)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(wire.EncodeNewOrder(wire.NewOrderMessage{
		Side: common.Buy, Kind: common.GoodTillCancel, Price: 100, Quantity: 10, OrderID: 1,
	}))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return e.Size() == 1 }, time.Second, 10*time.Millisecond)

	_, err = conn.Write(wire.EncodeCancelOrder(wire.CancelOrderMessage{OrderID: 1}))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return e.Size() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSnapshotRequestReceivesSerializedReport(t *testing.T) {
	addr, e, stop := startServer(t)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(wire.EncodeNewOrder(wire.NewOrderMessage{
		Side: common.Buy, Kind: common.GoodTillCancel, Price: 100, Quantity: 10, OrderID: 1,
	}))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return e.Size() == 1 }, time.Second, 10*time.Millisecond)

	_, err = conn.Write(wire.EncodeSnapshotRequest())
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Greater(t, n, 0)
	assert.Equal(t, byte(wire.ReportSnapshot), buf[0])
}

func TestMalformedMessageGetsErrorReport(t *testing.T) {
	addr, _, stop := startServer(t)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0xFF, 0xFF})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, byte(wire.ReportError), buf[0])
	assert.Greater(t, n, 0)
}
