package csr_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/csr"
	"github.com/frobware/go-tracefabric/regs"
)

func newRegistry(t *testing.T) (*csr.Registry, *regs.SimBlock) {
	t.Helper()
	r := csr.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	b := regs.NewSimBlock()
	r.Add(csr.New("csr0", 0x10001000, b))
	return r, b
}

func TestAbsentProvider(t *testing.T) {
	var p csr.Provider = csr.Absent{}
	assert.False(t, p.Supported())

	c, err := p.Find("csr0")
	assert.Nil(t, c)
	assert.True(t, errors.As(err, new(tracefabric.ErrUnsupported)))

	// Operations on a missing block are unsupported, not panics.
	for _, op := range []func(*csr.CSR) error{
		csr.EnableUSBBridge, csr.DisableUSBBridge, csr.EnableFlush, csr.DisableFlush,
		func(c *csr.CSR) error { return csr.SetByteCounter(c, 1) },
		func(c *csr.CSR) error { return csr.SetHardwareControl(c, 0, 1) },
	} {
		assert.True(t, errors.As(op(c), new(tracefabric.ErrUnsupported)))
	}
}

func TestRegistryFind(t *testing.T) {
	r, _ := newRegistry(t)
	assert.True(t, r.Supported())
	assert.Equal(t, []string{"csr0"}, r.Names())

	c, err := r.Find("csr0")
	require.NoError(t, err)
	assert.Equal(t, "csr0", c.Name)

	_, err = r.Find("csr9")
	assert.ErrorContains(t, err, "not found")
}

func TestUSBBridgeAndFlush(t *testing.T) {
	r, b := newRegistry(t)
	c, err := r.Find("csr0")
	require.NoError(t, err)

	require.NoError(t, csr.EnableUSBBridge(c))
	assert.Equal(t, uint32(1<<2), b.Get(csr.USBBAMCTRL))
	require.NoError(t, csr.DisableUSBBridge(c))
	assert.Equal(t, uint32(0), b.Get(csr.USBBAMCTRL))

	require.NoError(t, csr.EnableFlush(c))
	assert.Equal(t, uint32(0xffff<<2|1), b.Get(csr.USBFLSHCTRL))
	require.NoError(t, csr.DisableFlush(c))
	assert.Equal(t, uint32(0xffff<<2), b.Get(csr.USBFLSHCTRL))

	assert.True(t, b.Locked())
	assert.Zero(t, b.DroppedWrites())
}

func TestSetByteCounter(t *testing.T) {
	r, b := newRegistry(t)
	c, _ := r.Find("csr0")

	require.NoError(t, csr.SetByteCounter(c, 4096))
	assert.Equal(t, uint32(4096), b.Get(csr.BYTECNTVAL))
}

func TestSetHardwareControl(t *testing.T) {
	r, b := newRegistry(t)
	c, _ := r.Find("csr0")

	require.NoError(t, csr.SetHardwareControl(c, 0x10001040, 0xabc))
	assert.Equal(t, uint32(0xabc), b.Get(0x40))

	assert.Error(t, csr.SetHardwareControl(c, 0x10000ffc, 1), "below base")
	assert.Error(t, csr.SetHardwareControl(c, 0x10002000, 1), "past end")
	assert.Error(t, csr.SetHardwareControl(c, 0x10001042, 1), "unaligned")
}
