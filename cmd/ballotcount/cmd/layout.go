package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/MeKo-Tech/ballotcount/internal/layout"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Inspect form templates",
}

var layoutListCmd = &cobra.Command{
	Use:   "list",
	Short: "List template ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadLayouts(cmd)
		if err != nil {
			return err
		}
		for _, id := range reg.IDs() {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var layoutShowCmd = &cobra.Command{
	Use:   "show <template>",
	Short: "Print the cell rectangles of a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadLayouts(cmd)
		if err != nil {
			return err
		}
		tpl, err := reg.Resolve(args[0])
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(tpl)
		}
		t := table.New().Headers("Row", "Name", "Agree", "Disagree")
		for _, r := range tpl.Rows {
			t.Row(strconv.Itoa(r.Index), r.Name.String(), r.Agree.String(), r.Disagree.String())
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return err
	},
}

var layoutCheckCmd = &cobra.Command{
	Use:   "check [templates...]",
	Short: "Check that templates fit the canonical frame",
	Long: `Check that every cell of the given templates (all when none are named)
lies inside the canonical frame configured under rectify.width and rectify.height.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadLayouts(cmd)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			args = reg.IDs()
		}
		cfg := GetConfig()
		bad := 0
		for _, id := range args {
			tpl, err := reg.Resolve(id)
			if err != nil {
				return err
			}
			status := "ok"
			if !tpl.FitsIn(cfg.Rectify.Width, cfg.Rectify.Height) {
				status = fmt.Sprintf("cells %v exceed %dx%d", tpl.Bounds(), cfg.Rectify.Width, cfg.Rectify.Height)
				bad++
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", id, status)
		}
		if bad > 0 {
			return fmt.Errorf("%d template(s) do not fit the canonical frame", bad)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(layoutCmd)
	layoutCmd.AddCommand(layoutListCmd, layoutShowCmd, layoutCheckCmd)
	layoutCmd.PersistentFlags().String("layout-file", "", "YAML file with additional template calibrations")
	layoutShowCmd.Flags().Bool("json", false, "print the template as JSON")
}

func loadLayouts(cmd *cobra.Command) (*layout.Registry, error) {
	reg := layout.NewRegistry()
	file, _ := cmd.Flags().GetString("layout-file")
	if file == "" {
		file = GetConfig().Layout.File
	}
	if file != "" {
		if err := reg.LoadFile(file); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
