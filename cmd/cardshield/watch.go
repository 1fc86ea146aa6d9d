package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/cardshield/cardshield/observability"
	"github.com/cardshield/cardshield/packs"
	"github.com/cardshield/cardshield/policy"
)

// settleDelay is how long a new file must sit unchanged before scanning, so
// partially written uploads are not picked up mid-copy.
const settleDelay = 500 * time.Millisecond

func newWatchCmd() *cobra.Command {
	var packID string

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and scan every new document",
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

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()
			if err := watcher.Add(args[0]); err != nil {
				return err
			}
			env.Log.Info("watching", observability.String("dir", args[0]))

			pending := map[string]*time.Timer{}
			scans := make(chan string)
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case path := <-scans:
					delete(pending, path)
					runWatchScan(cmd.Context(), env, pack, cfg, path)
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
						continue
					}
					if !scannable(event.Name) {
						continue
					}
					path := event.Name
					if timer, exists := pending[path]; exists {
						timer.Reset(settleDelay)
						continue
					}
					pending[path] = time.AfterFunc(settleDelay, func() {
						scans <- path
					})
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					env.Log.Warn("watch error", observability.Error("err", err))
				}
			}
		},
	}
	cmd.Flags().StringVarP(&packID, "pack", "p", packs.PCILiteID, "scan pack to run")
	return cmd
}

func scannable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".json":
		return true
	}
	return false
}

func runWatchScan(ctx context.Context, env packs.Env, pack packs.Pack, cfg policy.Config, path string) {
	rep, err := pack.Scan(ctx, packs.Request{
		Input:       path,
		OutputDir:   flagOutputDir,
		Config:      cfg,
		BackendMode: flagBackend,
	})
	if err != nil {
		env.Log.Error("scan failed",
			observability.String("input", path),
			observability.Error("err", err))
		return
	}
	env.Log.Info("scan finished",
		observability.String("input", path),
		observability.String("decision", string(rep.Decision)),
		observability.String("run", rep.RunID))
}
