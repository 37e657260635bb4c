package main

import (
	"webopac/cmd/libsys-cli/commands"
	"webopac/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
