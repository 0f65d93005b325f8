package main

import (
	"perfsnapshot-backend/cmd/snapshot-cli/commands"
	"perfsnapshot-backend/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
