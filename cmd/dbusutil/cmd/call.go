package cmd

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	dbus "github.com/z3ntu/go-dbus"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "call <destination> <path> <interface.member> [string-arg ...]",
		Short: "Make a synchronous method call and print the reply body",
		Args:  cobra.MinimumNArgs(3),
		RunE:  runCallCmd,
	})
}

func runCallCmd(_ *cobra.Command, args []string) error {
	ConfigureVerbosity()

	dest, path, qualifiedMember := args[0], args[1], args[2]
	dot := strings.LastIndex(qualifiedMember, ".")
	if dot < 0 {
		return fmt.Errorf("interface.member %q must contain a '.'", qualifiedMember)
	}
	iface, member := qualifiedMember[:dot], qualifiedMember[dot+1:]

	conn, err := dial()
	if err != nil {
		return err
	}

	call := dbus.NewMethodCall(dest, dbus.ObjectPath(path), iface, member)
	// Extra arguments are passed through as strings; callers needing other
	// wire types should use the library directly.
	for _, a := range args[3:] {
		if err := call.AddArg(dbus.NewString(a)); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{"destination": dest, "path": path, "member": qualifiedMember}).Debug("dbusutil: calling")

	body, err := conn.CallSync(call)
	if err != nil {
		return err
	}
	for _, v := range body {
		fmt.Println(describeValue(v))
	}
	return nil
}
