package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/trustedge/signhub/cmd/signhub/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode."`
		Version kong.VersionFlag
		Serve   commands.ServeCmd   `cmd:"" help:"Start the signing service"`
		Migrate commands.MigrateCmd `cmd:"" help:"Run database schema migrations"`
		Keys    commands.KeysCmd    `cmd:"" help:"Key pool operations"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
