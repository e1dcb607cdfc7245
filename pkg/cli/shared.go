package cli

import "github.com/spf13/cobra"

// commonFabricAddrs is the set of controller-bound listener addresses every
// non-controller subcommand needs to dial, mirroring controllerAddrs.
type commonFabricAddrs struct {
	controller   string
	creditDrop   string
	rawInference string
	records      string
}

// addCommonFabricFlags registers the four addresses buildServiceSpecs
// passes to every spawned service, so each subcommand parses them
// identically regardless of whether it needs all four.
func addCommonFabricFlags(cmd *cobra.Command) {
	cmd.Flags().String("controller-addr", "127.0.0.1:17010", "Controller's event bus address")
	cmd.Flags().String("credit-drop-addr", "127.0.0.1:17011", "Controller's credit drop queue address")
	cmd.Flags().String("raw-inference-addr", "127.0.0.1:17012", "Controller's raw inference queue address")
	cmd.Flags().String("records-addr", "127.0.0.1:17013", "Controller's records queue address")
}

func readCommonFabricFlags(f interface {
	GetString(string) (string, error)
}) commonFabricAddrs {
	controllerAddr, _ := f.GetString("controller-addr")
	creditDrop, _ := f.GetString("credit-drop-addr")
	rawInference, _ := f.GetString("raw-inference-addr")
	records, _ := f.GetString("records-addr")
	return commonFabricAddrs{
		controller:   controllerAddr,
		creditDrop:   creditDrop,
		rawInference: rawInference,
		records:      records,
	}
}
