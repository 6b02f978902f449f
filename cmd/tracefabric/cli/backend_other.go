//go:build !linux

package cli

import (
	"io"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/regs"
)

func mapBlock(string, uint64) (regs.Block, io.Closer, error) {
	return nil, nil, tracefabric.ErrUnsupported{Feature: "mmio backend"}
}
