package main

import (
	"github.com/z3ntu/go-dbus/cmd/dbusutil/cmd"
)

func main() {
	cmd.Execute()
}
