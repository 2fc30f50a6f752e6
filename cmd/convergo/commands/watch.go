package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// watchDebounce coalesces editor write bursts into one run.
const watchDebounce = 500 * time.Millisecond

func newWatchCommand() *cobra.Command {
	var parallelism int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-converge whenever the manifest changes",
		Long: `Watch monitors the manifest file and applies it after every change.
Runs are strictly sequential; changes arriving during a run trigger one
follow-up run. Watch always applies without confirmation, so it is meant
for development loops, not production hosts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, cleanup, err := buildService(ctx, parallelism)
			if err != nil {
				return err
			}
			defer cleanup()

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer watcher.Close()

			// Watch the directory: editors often replace the file, which
			// would orphan a watch on the path itself.
			dir := filepath.Dir(manifestPath)
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}

			converge := func() {
				prep, err := svc.Prepare(ctx, manifestPath)
				if err != nil {
					fmt.Printf("prepare failed: %v\n", err)
					return
				}
				if prep.Plan.Converged() {
					fmt.Println("Host is converged; nothing to do.")
					return
				}
				report, err := svc.Apply(ctx, prep)
				if err != nil {
					fmt.Printf("apply failed: %v\n", err)
					return
				}
				fmt.Print(report.RenderText())
			}

			fmt.Printf("Watching %s; press Ctrl-C to stop.\n", manifestPath)
			converge()

			target := filepath.Clean(manifestPath)
			var timer *time.Timer
			pending := make(chan struct{}, 1)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-pending:
					converge()
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if filepath.Clean(event.Name) != target {
						continue
					}
					if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
						continue
					}
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(watchDebounce, func() {
						select {
						case pending <- struct{}{}:
						default:
						}
					})
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					fmt.Printf("watch error: %v\n", err)
				}
			}
		},
	}

	cmd.Flags().IntVarP(&parallelism, "parallelism", "p", 0, "override the manifest's parallelism")

	return cmd
}
