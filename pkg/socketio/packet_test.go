package socketio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOpen(t *testing.T) {
	f, err := Parse([]byte(`0{"sid":"abc","upgrades":[],"pingInterval":25000,"pingTimeout":60000}`))
	require.NoError(t, err)
	assert.Equal(t, EngineOpen, f.Engine)

	h, err := f.Handshake()
	require.NoError(t, err)
	assert.Equal(t, "abc", h.SID)
	assert.Equal(t, 25*time.Second, h.Interval())
	assert.Equal(t, time.Minute, h.Timeout())
}

func TestParseNamespaceEvent(t *testing.T) {
	f, err := Parse([]byte(`42/market,["add_order",{"order_id":"A1","price":"100.5"}]`))
	require.NoError(t, err)
	assert.Equal(t, EngineMessage, f.Engine)
	assert.Equal(t, SocketEvent, f.Socket)
	assert.Equal(t, "/market", f.Namespace)
	assert.Equal(t, -1, f.AckID)

	name, args, err := f.Event()
	require.NoError(t, err)
	assert.Equal(t, "add_order", name)
	require.Len(t, args, 1)
	assert.JSONEq(t, `{"order_id":"A1","price":"100.5"}`, string(args[0]))
}

func TestParseAckIDAndDefaultNamespace(t *testing.T) {
	f, err := Parse([]byte(`4217["ping"]`))
	require.NoError(t, err)
	assert.Equal(t, "/", f.Namespace)
	assert.Equal(t, 17, f.AckID)

	name, args, err := f.Event()
	require.NoError(t, err)
	assert.Equal(t, "ping", name)
	assert.Empty(t, args)
}

func TestParseConnectWithoutComma(t *testing.T) {
	f, err := Parse([]byte(`40/market`))
	require.NoError(t, err)
	assert.Equal(t, SocketConnect, f.Socket)
	assert.Equal(t, "/market", f.Namespace)
}

func TestParseErrors(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":         "",
		"engine type":   "9",
		"no socket":     "4",
		"socket type":   "49",
		"event payload": `42/market,{not json`,
	} {
		t.Run(name, func(t *testing.T) {
			f, err := Parse([]byte(raw))
			if err == nil {
				_, _, err = f.Event()
			}
			assert.Error(t, err)
		})
	}
}

func TestEncode(t *testing.T) {
	assert.Equal(t, "40/market,", string(EncodeConnect("/market")))
	assert.Equal(t, "40", string(EncodeConnect("/")))

	b, err := EncodeEvent("/market", "join")
	require.NoError(t, err)
	assert.Equal(t, `42/market,["join"]`, string(b))

	b, err = EncodeEvent("", "x", map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, `42["x",{"a":1}]`, string(b))

	assert.Equal(t, "2", string(EncodePing()))
	assert.Equal(t, "3", string(EncodePong()))
}

func TestEventOnNonEventFrame(t *testing.T) {
	f, err := Parse([]byte("3"))
	require.NoError(t, err)
	_, _, err = f.Event()
	assert.ErrorIs(t, err, ErrNotEvent)
}
