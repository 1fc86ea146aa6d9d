package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardshield/cardshield/packs"
	"github.com/cardshield/cardshield/policy"
	"github.com/cardshield/cardshield/report"
)

func newScanCmd() *cobra.Command {
	var packID string
	var forceRedact bool

	cmd := &cobra.Command{
		Use:   "scan <input>",
		Short: "Scan one document or photo and write a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := buildEnv()
			registry := buildRegistry(env)
			pack, err := registry.Get(packID)
			if err != nil {
				return err
			}
			cfg, err := packConfig(packID)
			if err != nil {
				return err
			}
			rep, err := pack.Scan(cmd.Context(), packs.Request{
				Input:       args[0],
				OutputDir:   flagOutputDir,
				Config:      cfg,
				BackendMode: flagBackend,
				ForceRedact: forceRedact,
			})
			if err != nil {
				return err
			}
			if err := printReport(rep); err != nil {
				return err
			}
			exitCode = policy.ExitCode(rep.Decision)
			return nil
		},
	}
	cmd.Flags().StringVarP(&packID, "pack", "p", packs.PCILiteID, "scan pack to run")
	cmd.Flags().BoolVar(&forceRedact, "force-redact", false, "apply suggested visual redactions (decision stays REVIEW)")
	return cmd
}

func printReport(rep report.Report) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
