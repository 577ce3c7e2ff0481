package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soundbench/soundbench/internal/loader"
)

// extractCmd is the parameter-extraction subprocess the rebuild
// pipeline runs against a freshly built artifact. It lives in a
// separate process so a crash in newly built code cannot take down the
// running session. Hidden: it is an internal contract, not a user
// command.
var extractCmd = &cobra.Command{
	Use:    "extract <module>",
	Short:  "Load a module and print its parameter specs as JSON",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE:   runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ld := loader.New(zap.NewNop())
	h, err := ld.Load(args[0])
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	defer h.Instance().Close()

	// Stdout carries exactly the JSON spec list; the parent parses it.
	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(h.Instance().ParamSpecs()); err != nil {
		return fmt.Errorf("extract: encode specs: %w", err)
	}
	return nil
}
