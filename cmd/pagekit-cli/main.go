package main

import (
	"pagekit/cmd/pagekit-cli/commands"
	"pagekit/lib/osutil"
	"pagekit/lib/telemetry"
)

func main() {
	ctx := osutil.SignalContext()
	telemetry.SetupFromEnv(ctx, "pagekit-cli")
	telemetry.InitSlog(true)
	commands.ExecuteContext(ctx)
}
