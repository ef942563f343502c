package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AcousticOdometry/recorder/internal/config"
	"github.com/AcousticOdometry/recorder/internal/listener"
)

var listenCmd = &cobra.Command{
	Use:   "listen [listener-class]",
	Short: "Wait for remote setup, start and stop commands",
	Long: `Serve the recorder to other machines so that several recorders can be
driven together. The localhost listener (default) answers:

  GET /setup?name=<session>   prepare a session, returns its name
  GET /start                  start recording
  GET /stop                   stop recording, returns the session name
  GET /metrics                Prometheus metrics

With --watch the device configuration file is reloaded when it changes and the
next setup uses the new devices.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := "localhost"
		if len(args) == 1 {
			name = args[0]
		}
		class, err := listener.Lookup(name)
		if err != nil {
			return err
		}

		doc, err := loadDocument()
		if err != nil {
			return err
		}
		rec, err := newRecorder(doc, newRegistry())
		if err != nil {
			return err
		}
		defer rec.Close()

		l := class(rec, listener.Options{
			Host:      settings.Listener.Host,
			Port:      settings.Listener.Port,
			RateLimit: settings.Listener.RateLimit,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return l.Listen(ctx)
		})
		if settings.Listener.Watch {
			g.Go(func() error {
				return config.Watch(ctx, settings.Config, func(doc *config.Document) {
					slog.Debug("Next setup uses the reloaded configuration", "devices", doc.Len())
					rec.SetConfig(doc)
				})
			})
		}

		slog.Info("Listener running", "class", name, "config", settings.Config, "output", rec.Root())
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	listenCmd.Flags().String("host", "", "address to bind (default is the address used for outbound traffic)")
	listenCmd.Flags().Int("port", 5000, "port to bind")
	listenCmd.Flags().Int("rate-limit", 0, "requests per minute and client, 0 disables the limit")
	listenCmd.Flags().Bool("watch", false, "reload the device configuration when the file changes")
	_ = v.BindPFlag("listener.host", listenCmd.Flags().Lookup("host"))
	_ = v.BindPFlag("listener.port", listenCmd.Flags().Lookup("port"))
	_ = v.BindPFlag("listener.rate_limit", listenCmd.Flags().Lookup("rate-limit"))
	_ = v.BindPFlag("listener.watch", listenCmd.Flags().Lookup("watch"))
}
