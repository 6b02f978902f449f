//go:build linux

package cli

import (
	"io"

	"github.com/frobware/go-tracefabric/regs"
)

func mapBlock(devmem string, base uint64) (regs.Block, io.Closer, error) {
	m, err := regs.Map(devmem, base, regs.BlockSize)
	if err != nil {
		return nil, nil, err
	}
	return m, m, nil
}
