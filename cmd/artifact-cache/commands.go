package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vertextoedge/artifact-cache/internal/adapter/device"
	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/port"
	"github.com/vertextoedge/artifact-cache/internal/service/maintenance"
	"github.com/vertextoedge/artifact-cache/internal/service/selector"
	"github.com/vertextoedge/artifact-cache/internal/service/server"
)

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newFetchCmd() *cobra.Command {
	var (
		output string
		fresh  bool
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the artifact, resuming from cached chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireURL(); err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()
			if err := a.openStore(ctx); err != nil {
				return err
			}

			callbacks := &domain.Callbacks{
				OnProgress: func(fraction float64) {
					fmt.Fprintf(os.Stderr, "\r%s: %5.1f%%", a.cfg.Artifact.ID, fraction*100)
				},
			}

			start := time.Now()
			load := a.fetcher.Load
			if fresh {
				load = a.fetcher.DownloadInChunks
			}
			data, err := load(ctx, callbacks)
			fmt.Fprintln(os.Stderr)
			if domain.IsCancelled(err) {
				session := a.fetcher.Session()
				fmt.Printf("cancelled after %d/%d chunks; run fetch again to resume\n",
					session.LoadedChunks, session.TotalChunks)
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Printf("%s ready: %s in %s\n", a.cfg.Artifact.ID,
				humanize.IBytes(uint64(len(data))), time.Since(start).Round(time.Millisecond))

			if output != "" {
				if err := os.WriteFile(output, data, 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", output, err)
				}
				fmt.Printf("written to %s\n", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the assembled artifact to this file")
	cmd.Flags().BoolVar(&fresh, "no-cache-shortcut", false, "Always run the chunked download path, even when fully cached")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cached metadata and store usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.openStore(ctx); err != nil {
				return err
			}

			meta, err := a.fetcher.Metadata(ctx)
			if err != nil {
				return err
			}
			cached := a.fetcher.IsFullyCached(ctx)

			var stats *port.StoreStats
			if reporter, ok := a.store.(port.StatsReporter); ok {
				if stats, err = reporter.Stats(ctx); err != nil {
					a.logger.Warn("failed to read store stats", zap.Error(err))
				}
			}

			if asJSON {
				return printJSON(map[string]any{
					"artifact_id":  a.fetcher.ArtifactID(),
					"fully_cached": cached,
					"metadata":     meta,
					"store":        stats,
				})
			}

			fmt.Printf("artifact:     %s\n", a.fetcher.ArtifactID())
			if meta == nil {
				fmt.Println("metadata:     none")
			} else {
				fmt.Printf("source:       %s\n", meta.SourceURL)
				fmt.Printf("size:         %s\n", humanize.IBytes(uint64(meta.TotalSizeBytes)))
				fmt.Printf("chunks:       %d x %s\n", meta.TotalChunks, humanize.IBytes(uint64(meta.ChunkSizeBytes)))
				fmt.Printf("created:      %s\n", humanize.Time(meta.CreatedAt))
			}
			fmt.Printf("fully cached: %t\n", cached)
			if stats != nil {
				fmt.Printf("store:        %s keys, %s\n",
					humanize.Comma(stats.Keys), humanize.IBytes(uint64(stats.TotalBytes)))
			}
			if space, ok := a.store.(port.SpaceReporter); ok {
				if free, err := space.FreeBytes(ctx); err == nil {
					fmt.Printf("disk free:    %s\n", humanize.IBytes(uint64(free)))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newClearCmd() *cobra.Command {
	var all, orphans bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the cached artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.openStore(ctx); err != nil {
				return err
			}

			if orphans {
				removed, err := a.fetcher.PruneOrphans(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("removed %d orphaned chunk keys\n", removed)
				return nil
			}
			if all {
				if err := a.store.Clear(ctx); err != nil {
					return err
				}
				fmt.Println("store cleared")
				return nil
			}
			if err := a.fetcher.ClearCache(ctx); err != nil {
				return err
			}
			fmt.Printf("cache for %s cleared\n", a.fetcher.ArtifactID())
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every key in the store, not just this artifact")
	cmd.Flags().BoolVar(&orphans, "orphans", false, "Only remove chunk keys the cached metadata does not account for")
	return cmd
}

func newProbeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Report device capabilities and the recommended backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			report := a.probe.GetFullReport(cmd.Context())
			if asJSON {
				return printJSON(report)
			}

			fmt.Printf("cpu:          %s\n", device.CPUBrand())
			fmt.Printf("client:       %s %s (mobile: %t)\n", report.BrowserName, report.BrowserVersion, report.IsMobile)
			fmt.Printf("memory:       %.1f GB\n", report.DeviceMemoryGB)
			fmt.Printf("cores:        %d\n", report.CPUCoreCount)
			fmt.Printf("tier:         %s\n", report.PerformanceTier)
			fmt.Printf("accelerated:  %t %s\n", report.AcceleratedGPUSupported, describe(report.Accelerated.Adapter, report.Accelerated.Reason))
			fallback := report.Fallback.Reason
			if report.FallbackGPUSupported {
				fallback = fmt.Sprintf("version %d", report.Fallback.Version)
			}
			fmt.Printf("fallback:     %t %s\n", report.FallbackGPUSupported, describe("", fallback))
			fmt.Printf("recommended:  %s (%s)\n", report.RecommendedStrategy, report.ExpectedPerformance)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func describe(detail, reason string) string {
	switch {
	case detail != "":
		return "(" + detail + ")"
	case reason != "":
		return "(" + reason + ")"
	}
	return ""
}

func newSelectCmd() *cobra.Command {
	var (
		forced string
		load   bool
		list   bool
	)
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Choose a backend and optionally load the model through it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if list {
				for _, opt := range a.selector.Options() {
					fmt.Printf("%-12s %s\n", opt.ID, opt.Name)
				}
				return nil
			}

			kind := a.cfg.Backend.GetForced()
			if forced != "" {
				var ok bool
				if kind, ok = domain.ParseBackendKind(forced); !ok {
					return fmt.Errorf("%w: %s", domain.ErrUnknownBackend, forced)
				}
			}

			ctx, stop := signalContext()
			defer stop()

			sel, err := a.selector.SelectBackend(ctx, selector.SelectOptions{ForcedBackend: kind})
			if err != nil {
				return err
			}
			how := "probed"
			if sel.Forced {
				how = "forced"
			}
			fmt.Printf("backend: %s (%s, expected performance %s)\n", sel.Kind, how, sel.Kind.ExpectedPerformance())

			if !load {
				return nil
			}
			if sel.Kind != domain.BackendRemote {
				if err := a.requireURL(); err != nil {
					return err
				}
			}
			ok, err := sel.Backend.LoadModel(ctx, &domain.Callbacks{
				OnProgress: func(fraction float64) {
					fmt.Fprintf(os.Stderr, "\rloading: %5.1f%%", fraction*100)
				},
			})
			fmt.Fprintln(os.Stderr)
			if err != nil {
				if errors.Is(err, domain.ErrDownloadCancelled) {
					fmt.Println("load cancelled")
					return nil
				}
				return err
			}
			fmt.Printf("model loaded: %t\n", ok)
			return nil
		},
	}
	cmd.Flags().StringVarP(&forced, "backend", "b", "", "Force a backend (auto, accelerated, fallback, cpu, remote)")
	cmd.Flags().BoolVar(&load, "load", false, "Load the model through the selected backend")
	cmd.Flags().BoolVar(&list, "list", false, "List selectable backends and exit")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireURL(); err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()
			if err := a.openStore(ctx); err != nil {
				return err
			}

			cfg := a.cfg
			httpServer := server.New(&server.Config{
				BindAddr:      cfg.Server.BindAddr,
				AdminUsername: cfg.Server.AdminUsername,
				AdminPassword: cfg.Server.AdminPassword,
				ReadTimeout:   cfg.Server.GetReadTimeout(),
				WriteTimeout:  cfg.Server.GetWriteTimeout(),
				IdleTimeout:   cfg.Server.GetIdleTimeout(),
			}, server.Deps{
				Fetcher:  a.fetcher,
				Selector: a.selector,
				Prober:   a.probe,
				Store:    a.store,
				Metrics:  a.metricsHandler(),
				Forced:   cfg.Backend.GetForced(),
			}, a.logger)

			a.logger.Info("starting artifact-cache",
				zap.String("version", version),
				zap.String("artifact_id", cfg.Artifact.ID),
				zap.String("store", cfg.Store.Driver))

			maintenanceService := maintenance.New(&maintenance.Config{
				PruneInterval: cfg.Maintenance.GetPruneInterval(),
				PruneOnStart:  cfg.Maintenance.PruneOnStart,
			}, a.fetcher, a.logger)

			errCh := make(chan error, 1)
			go func() {
				errCh <- httpServer.Start()
			}()
			go func() {
				if err := maintenanceService.Start(ctx); err != nil {
					a.logger.Error("maintenance service stopped with error", zap.Error(err))
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.logger.Info("shutdown signal received, stopping services...")
			maintenanceService.Stop()
			a.fetcher.Cancel()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := httpServer.Stop(shutdownCtx); err != nil {
				a.logger.Error("failed to stop HTTP server gracefully", zap.Error(err))
			}
			a.logger.Info("application stopped successfully")
			return nil
		},
	}
}
