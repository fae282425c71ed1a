package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"portal_automation/internal/llm"
)

var recoverCmd = &cobra.Command{
	Use:   "recover [file]",
	Short: "Recover the JSON payload from raw model output",
	Long: `recover reads raw model output from a file or stdin and prints the JSON it
carries, after fence stripping, block extraction and repair. It fails when
nothing usable remains.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecover,
}

func runRecover(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return errors.Wrap(err, "read model output")
	}

	v, err := llm.ParseJSON(string(data))
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode recovered json")
	}
	_, err = cmd.OutOrStdout().Write(append(out, '\n'))
	return err
}
