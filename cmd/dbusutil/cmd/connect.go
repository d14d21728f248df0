package cmd

import (
	dbus "github.com/z3ntu/go-dbus"
)

// dial connects to the bus selected by the --session flag.
func dial() (*dbus.Connection, error) {
	if rootSessionFlag {
		return dbus.ConnectSession()
	}
	return dbus.ConnectSystem()
}
