// Command cardshield scans documents and card photos for payment-card data,
// redacts confirmed findings and emits decision reports.
//
// Exit codes: 0 CONFIRMED, 10 REVIEW, 20 REJECTED, 2 hard failure.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cardshield/cardshield/observability"
	"github.com/cardshield/cardshield/ocr"
	"github.com/cardshield/cardshield/ocr/tesseract"
	"github.com/cardshield/cardshield/packs"
	"github.com/cardshield/cardshield/policy"
	"github.com/cardshield/cardshield/render"
)

var (
	flagVerbose   bool
	flagOutputDir string
	flagBackend   string
	flagPolicy    string

	// exitCode carries the decision exit code out of a scan run.
	exitCode int
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cardshield:", err)
		os.Exit(policy.ExitIOFailure)
	}
	os.Exit(exitCode)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cardshield",
		Short:         "Detect and redact payment-card data in documents and photos",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A missing .env is the normal case outside deployments.
			_ = godotenv.Load()
		},
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log progress to stderr")
	root.PersistentFlags().StringVarP(&flagOutputDir, "out", "o", "out", "artifact output directory")
	root.PersistentFlags().StringVar(&flagBackend, "ocr-backend", "", "OCR backend name (default: $"+ocr.EnvBackendMode+" or auto)")
	root.PersistentFlags().StringVar(&flagPolicy, "policy", "", "YAML policy config file")

	root.AddCommand(newScanCmd(), newServeCmd(), newWatchCmd())
	return root
}

func logger() observability.Logger {
	if flagVerbose {
		return observability.NewStderr()
	}
	return observability.NopLogger{}
}

// buildEnv wires the default collaborators: the Tesseract-backed OCR
// registry and the raster renderer.
func buildEnv() packs.Env {
	log := logger()
	reg := ocr.NewRegistry(nil)
	tesseract.Register(reg)
	return packs.Env{
		OCR:      reg,
		Renderer: render.NewRaster(),
		Log:      log,
	}
}

// packConfig resolves the policy config for a pack: built-in defaults
// overridden by --policy when given.
func packConfig(packID string) (policy.Config, error) {
	defaults := policy.DefaultDocumentConfig()
	switch packID {
	case packs.CardPhotoID:
		defaults = policy.DefaultPhotoConfig()
	case packs.IDPhotoID:
		defaults = policy.DefaultIDPhotoConfig()
	}
	if flagPolicy == "" {
		return defaults, nil
	}
	return policy.LoadConfig(flagPolicy, defaults)
}

func buildRegistry(env packs.Env) *packs.Registry {
	return packs.NewRegistry(packs.NewPCILite(env), packs.NewCardPhoto(env), packs.NewIDPhoto(env))
}
