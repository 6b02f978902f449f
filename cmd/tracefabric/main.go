// tracefabric manages trace paths through a CoreSight-style fabric.
package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/frobware/go-tracefabric/cmd/tracefabric/cli"
)

func main() {
	var c cli.CLI
	kctx := kong.Parse(&c, cli.KongOptions()...)
	kctx.BindTo(context.Background(), (*context.Context)(nil))
	kctx.FatalIfErrorf(kctx.Run(&c))
}
