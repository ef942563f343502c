package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AcousticOdometry/recorder/internal/recorder"
)

var (
	recordName string
	recordYes  bool
)

var recordCmd = &cobra.Command{
	Use:   "record [seconds]",
	Short: "Record data from the configured devices",
	Long: `Set up every device of the device configuration in a new session folder,
then record for the given number of seconds, or until Enter is pressed when no
duration is given. Ctrl+C stops the recording early; the data recorded so far
is kept.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var duration time.Duration
		if len(args) == 1 {
			seconds, err := strconv.Atoi(args[0])
			if err != nil || seconds <= 0 {
				return fmt.Errorf("invalid number of seconds %q", args[0])
			}
			duration = time.Duration(seconds) * time.Second
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

		folder, err := rec.Setup(recordName)
		if err != nil {
			return err
		}
		slog.Info("Record command ready", "folder", folder, "duration", duration)

		in := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()
		if !recordYes && !confirm(in, out, "Recording ready, start?", true) {
			fmt.Fprintf(out, "Recording cancelled, session folder %s left empty of data\n", folder)
			return nil
		}

		var waiter recorder.Waiter = recorder.UntilEnter{In: in, Out: out}
		if duration > 0 {
			waiter = recorder.Timed{Duration: duration, Progress: cmd.ErrOrStderr()}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		folder, err = rec.Record(ctx, waiter)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Recording finished, data saved to %s\n", folder)
		return nil
	},
}

func init() {
	recordCmd.Flags().StringVarP(&recordName, "name", "n", "", "session folder name (default is the current date and time)")
	recordCmd.Flags().BoolVarP(&recordYes, "yes", "y", false, "start without asking for confirmation")
}
