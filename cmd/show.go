package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AcousticOdometry/recorder/internal/device"
)

var showVerbose bool

var showCmd = &cobra.Command{
	Use:   "show [device-class]",
	Short: "Display the available devices",
	Long: `Display the devices each class can find, keyed by the id used by
'test' and 'config'. Without -V only the device names are shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := newRegistry()
		classes := registry.Classes()
		if len(args) == 1 {
			class, err := registry.Lookup(args[0])
			if err != nil {
				return err
			}
			classes = []device.Class{class}
		}

		for _, class := range classes {
			if err := showClass(cmd.OutOrStdout(), class, showVerbose); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVarP(&showVerbose, "details", "V", false, "show every discovered setting, not only the name")
}

func showClass(w io.Writer, class device.Class, verbose bool) error {
	found, err := class.Find()
	if err != nil {
		slog.Warn("Device discovery failed", "class", class.Name(), "error", err)
	}
	if len(found) == 0 {
		fmt.Fprintf(w, "Could not find %s devices\n", class.Name())
		return nil
	}

	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, id := range device.SortIDs(found) {
		var value any = found[id]
		if !verbose {
			value = found[id]["name"]
		}
		var val yaml.Node
		if err := val.Encode(value); err != nil {
			return fmt.Errorf("error encoding %s device %s: %w", class.Name(), id, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: id}, &val)
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return fmt.Errorf("error marshaling %s devices: %w", class.Name(), err)
	}
	fmt.Fprintf(w, "%s:\n%s", class.Name(), indentLines(string(out)))
	return nil
}

func indentLines(s string) string {
	lines := strings.SplitAfter(s, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			lines[i] = "  " + l
		}
	}
	return strings.Join(lines, "")
}
