// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cdc

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice answers commands read from its end of a pipe.
type fakeDevice struct {
	conn      net.Conn
	responses map[string]string
	split     bool

	mu       sync.Mutex
	received []string
}

func newFakeDevice(t *testing.T, responses map[string]string, opts ...ClientOption) (*fakeDevice, *Client) {
	hostConn, devConn := net.Pipe()
	d := &fakeDevice{conn: devConn, responses: responses}
	go d.serve()

	log := logrus.New()
	log.SetOutput(io.Discard)
	opts = append([]ClientOption{WithLogger(log), WithResponseTimeout(time.Second)}, opts...)

	c, err := NewClient(hostConn, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Close()
		devConn.Close()
	})
	return d, c
}

func (d *fakeDevice) serve() {
	r := bufio.NewReader(d.conn)
	for {
		cmd, err := r.ReadString('\r')
		if err != nil {
			return
		}
		d.mu.Lock()
		d.received = append(d.received, cmd)
		resp, ok := d.responses[cmd]
		d.mu.Unlock()
		if !ok {
			continue
		}
		if d.split {
			for i := 0; i < len(resp); i++ {
				if _, err := d.conn.Write([]byte{resp[i]}); err != nil {
					return
				}
			}
			continue
		}
		if _, err := d.conn.Write([]byte(resp)); err != nil {
			return
		}
	}
}

func (d *fakeDevice) push(t *testing.T, frame string) {
	_, err := d.conn.Write([]byte(frame))
	require.NoError(t, err)
}

func TestClient_Commands(t *testing.T) {
	_, c := newFakeDevice(t, map[string]string{
		">\r":                 "<OK\r",
		">R\r":                "<R:OK\r",
		">RT\r":               "<RT:OK\r",
		">I\r":                "<I:CDC IQRF#2.08#00000ABC\r",
		">IT\r":               string(trInfoFrame),
		">B\r":                "<B:OK\r",
		">S\r":                "<S:\x80\r",
		">DS\x02:\x01\x02\r": "<DS:BUSY\r",
		">U\r":                "<U:OK\r",
	})
	ctx := context.Background()

	require.NoError(t, c.Test(ctx))
	require.NoError(t, c.ResetUSBDevice(ctx))
	require.NoError(t, c.ResetTRModule(ctx))
	require.NoError(t, c.IndicateConnectivity(ctx))
	require.NoError(t, c.SwitchToCustom(ctx))

	info, err := c.USBDeviceInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, DeviceInfo{DeviceType: "CDC IQRF", FirmwareVersion: "2.08", SerialNumber: "00000ABC"}, info)

	mi, err := c.TRModuleInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x81563412), mi.ModuleID())

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.DataReady)
	assert.Equal(t, SPIReadyComm, st.Mode())

	ds, err := c.SendData(ctx, []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, DSBusy, ds)

	assert.False(t, c.ReceptionStopped())
	assert.NoError(t, c.LastReceptionError())
}

func TestClient_FragmentedResponse(t *testing.T) {
	d, c := newFakeDevice(t, map[string]string{
		">I\r": "<I:GW-USB-06#2.10#1A2B3C4D\r",
	})
	d.split = true

	info, err := c.USBDeviceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "GW-USB-06", info.DeviceType)
	assert.Equal(t, "1A2B3C4D", info.SerialNumber)
}

func TestClient_UnexpectedResponseType(t *testing.T) {
	_, c := newFakeDevice(t, map[string]string{
		">\r": "<ERR\r",
	})

	err := c.Test(context.Background())
	require.ErrorIs(t, err, ErrUnexpectedResponse)
	assert.True(t, IsKind(err, KindReceive))
	assert.Contains(t, err.Error(), "test")
}

func TestClient_ResponseTimeout(t *testing.T) {
	_, c := newFakeDevice(t, map[string]string{}, WithResponseTimeout(50*time.Millisecond))

	err := c.Test(context.Background())
	require.ErrorIs(t, err, ErrResponseTimeout)
}

func TestClient_ContextCanceled(t *testing.T) {
	_, c := newFakeDevice(t, map[string]string{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Test(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClient_DataTooLarge(t *testing.T) {
	_, c := newFakeDevice(t, map[string]string{})

	_, err := c.SendData(context.Background(), make([]byte, MaxDataSize+1))
	require.ErrorIs(t, err, ErrDataTooLarge)
	assert.True(t, IsKind(err, KindSend))
}

func TestClient_AsyncListener(t *testing.T) {
	d, c := newFakeDevice(t, map[string]string{
		">\r": "<OK\r",
	})

	got := make(chan []byte, 1)
	c.RegisterAsyncListener(func(data []byte) {
		got <- data
	})

	d.push(t, "<DR\x03:\x01\r\x03\r")
	select {
	case data := <-got:
		assert.Equal(t, []byte{0x01, 0x0D, 0x03}, data)
	case <-time.After(time.Second):
		t.Fatal("async message not delivered")
	}

	// async traffic does not disturb a following command
	require.NoError(t, c.Test(context.Background()))

	c.UnregisterAsyncListener()
	d.push(t, "<DR\x01:\xFF\r")
	require.NoError(t, c.Test(context.Background()))
	select {
	case <-got:
		t.Fatal("listener called after unregister")
	default:
	}
}

func TestClient_BadFormatResync(t *testing.T) {
	_, c := newFakeDevice(t, map[string]string{
		">\r": "<XX\r<OK\r",
	})

	require.NoError(t, c.Test(context.Background()))

	err := c.LastReceptionError()
	require.ErrorIs(t, err, ErrBadFormat)
	assert.True(t, IsKind(err, KindParse))
	assert.False(t, c.ReceptionStopped())
}

func TestClient_FrameHandler(t *testing.T) {
	var mu sync.Mutex
	var results []ParseResult
	var raws []string

	_, c := newFakeDevice(t, map[string]string{
		">\r": "<?\r<OK\r",
	}, WithFrameHandler(func(res ParseResult, raw []byte) {
		mu.Lock()
		results = append(results, res)
		raws = append(raws, string(raw))
		mu.Unlock()
	}))

	require.NoError(t, c.Test(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 2)
	assert.Equal(t, ParseBadFormat, results[0].Status)
	assert.Equal(t, "<?\r", raws[0])
	assert.Equal(t, ParseOK, results[1].Status)
	assert.Equal(t, "<OK\r", raws[1])
}

func TestClient_ReceptionStopped(t *testing.T) {
	d, c := newFakeDevice(t, map[string]string{})

	d.conn.Close()
	require.Eventually(t, c.ReceptionStopped, time.Second, 10*time.Millisecond)

	err := c.Test(context.Background())
	require.ErrorIs(t, err, ErrReceptionStopped)
	assert.Error(t, c.LastReceptionError())
}

func TestClient_Close(t *testing.T) {
	_, c := newFakeDevice(t, map[string]string{})

	require.NoError(t, c.Close())
	assert.True(t, c.ReceptionStopped())
	assert.ErrorIs(t, c.LastReceptionError(), ErrClosed)
	assert.NoError(t, c.Close())
}

func TestNewClient_NilTransport(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInit))
}
