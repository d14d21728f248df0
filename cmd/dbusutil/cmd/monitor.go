package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	dbus "github.com/z3ntu/go-dbus"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "monitor",
		Short: "Print every signal received on the bus until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runMonitorCmd,
	})
}

// runMonitorCmd reads messages off the connection forever, printing each
// signal it sees. There is no match-rule language in this library
// (spec.md §1 Non-goals), so this prints every signal delivered to the
// connection rather than subscribing to a filtered subset.
func runMonitorCmd(_ *cobra.Command, _ []string) error {
	ConfigureVerbosity()

	conn, err := dial()
	if err != nil {
		return err
	}

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msg.Type != dbus.TypeSignal {
			continue
		}

		path, _ := msg.HeaderString(dbus.FieldPath)
		iface, _ := msg.HeaderString(dbus.FieldInterface)
		member, _ := msg.HeaderString(dbus.FieldMember)
		sender, _ := msg.HeaderString(dbus.FieldSender)

		body, err := msg.GetBody()
		if err != nil {
			log.WithError(err).Warn("dbusutil: failed to decode signal body")
			continue
		}

		parts := make([]string, len(body))
		for i, v := range body {
			parts[i] = describeValue(v)
		}
		fmt.Printf("%s: %s %s.%s %v\n", sender, path, iface, member, parts)
	}
}
