package main

import (
	"context"
	"os"

	"dictsync/cmd/dict/commands"
	"dictsync/lib/osutil"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	ctx, stop := osutil.SignalContext(context.Background())
	code := commands.ExecuteContext(ctx)
	stop()
	os.Exit(code)
}
