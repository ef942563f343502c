package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AcousticOdometry/recorder/internal/config"
	"github.com/AcousticOdometry/recorder/internal/device"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create a device configuration file",
	Long: `Interactively pick, for every device class, the discovered devices to
record from and write them to the device configuration file. The file can be
edited by hand afterwards: the order of classes and devices in it is the order
in which devices are started and stopped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()

		doc, err := configWizard(in, out, newRegistry().Classes())
		if err != nil {
			return err
		}
		if doc.Len() == 0 {
			return errors.New("no devices selected, configuration not written")
		}
		if err := doc.Save(settings.Config); err != nil {
			return err
		}
		fmt.Fprintf(out, "Configuration file written to %s, it can be edited manually.\n", settings.Config)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current device configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadDocument()
		if err != nil {
			return err
		}
		out, err := doc.Marshal()
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", settings.Config, out)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

// configWizard asks, class by class, which discovered devices to add. Devices
// of a class are indexed 0, 1, ... in the order they were picked.
func configWizard(in *bufio.Reader, out io.Writer, classes []device.Class) (*config.Document, error) {
	doc := config.NewDocument()
	for _, class := range classes {
		found, err := class.Find()
		if err != nil {
			fmt.Fprintf(out, "Could not search %s devices: %v\n", class.Name(), err)
			continue
		}
		if len(found) == 0 {
			fmt.Fprintf(out, "Could not find %s devices\n", class.Name())
			continue
		}

		index := 0
		for {
			article := "a"
			if index > 0 {
				article = "another"
			}
			if !confirm(in, out, fmt.Sprintf("Add %s %s device?", article, class.Name()), false) {
				break
			}
			id, err := choose(in, out, fmt.Sprintf("Select the %s to add to the configuration:", class.Name()), found)
			if err != nil {
				return nil, err
			}
			doc.Add(class.Name(), strconv.Itoa(index), found[id])
			index++
		}
	}
	return doc, nil
}

// choose lists the discovered devices and reads an id until a valid one is
// given.
func choose(in *bufio.Reader, out io.Writer, message string, found map[string]device.Settings) (string, error) {
	ids := device.SortIDs(found)
	fmt.Fprintln(out, message)
	for _, id := range ids {
		name, _ := found[id].String("name")
		fmt.Fprintf(out, "  %s %s\n", id, name)
	}
	for {
		fmt.Fprint(out, "> ")
		line, err := in.ReadString('\n')
		id := strings.TrimSpace(line)
		if _, ok := found[id]; ok {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("no device selected: %w", err)
		}
		fmt.Fprintf(out, "Invalid id %q, choose one of %v\n", id, ids)
	}
}
