package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/igorgomez/medidascorporais/internal/domain"
	"github.com/igorgomez/medidascorporais/internal/localstore"
)

const displayDate = "02/01/2006 15:04"

func (c *cli) addCmd() *cobra.Command {
	var (
		date   string
		values domain.Values
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a measurement",
		Example: `  medidas add --weight 72.5 --waist 81
  medidas add --date 2025-03-14T08:30 --arm 33`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := c.user()
			if err != nil {
				return err
			}
			at := time.Now()
			if strings.TrimSpace(date) != "" {
				if at, err = domain.ParseDate(date); err != nil {
					return failure(err)
				}
			}
			m, _, err := c.service.Create(cmd.Context(), u.ID, domain.CreateInput{Date: at, Values: values})
			if err != nil {
				return failure(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved measurement %s for %s\n", m.ID, m.Date.Local().Format(displayDate))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "when it was measured, e.g. 2025-03-14T08:30 (default now)")
	for _, f := range domain.Fields {
		cmd.Flags().StringVar(valueField(&values, f), string(f), "", fmt.Sprintf("%s in %s", domain.Labels[f], domain.Units[f]))
	}
	return cmd
}

func valueField(v *domain.Values, f domain.Field) *string {
	switch f {
	case domain.FieldWeight:
		return &v.Weight
	case domain.FieldHeight:
		return &v.Height
	case domain.FieldChest:
		return &v.Chest
	case domain.FieldWaist:
		return &v.Waist
	case domain.FieldHips:
		return &v.Hips
	case domain.FieldArm:
		return &v.Arm
	default:
		return &v.Thigh
	}
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your measurements, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := c.user()
			if err != nil {
				return err
			}
			items, err := c.service.List(cmd.Context(), u.ID)
			if err != nil {
				return failure(err)
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No measurements yet. Add one with `medidas add`.")
			} else {
				writeTable(out, items)
			}
			c.migrationNotice(cmd.Context(), out)
			return nil
		},
	}
}

func writeTable(out io.Writer, items []domain.Measurement) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"ID", "DATE"}
	for _, f := range domain.Fields {
		header = append(header, strings.ToUpper(string(f)))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, m := range items {
		row := []string{m.ID, m.Date.Local().Format(displayDate)}
		for _, f := range domain.Fields {
			cell := m.Get(f)
			if cell == "" {
				cell = "-"
			}
			row = append(row, cell)
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a measurement",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := c.user()
			if err != nil {
				return err
			}
			if err := c.service.Delete(cmd.Context(), u.ID, args[0]); err != nil {
				return failure(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Measurement deleted.")
			return nil
		},
	}
}

func (c *cli) timelineCmd() *cobra.Command {
	var field string
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Show the last 10 values of each measurement, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := c.user()
			if err != nil {
				return err
			}
			fields := domain.Fields
			if field != "" {
				f, err := domain.ParseField(field)
				if err != nil {
					return failure(err)
				}
				fields = []domain.Field{f}
			}
			items, err := c.service.List(cmd.Context(), u.ID)
			if err != nil {
				return failure(err)
			}

			out := cmd.OutOrStdout()
			for i, f := range fields {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "%s (%s)\n", domain.Labels[f], domain.Units[f])
				points := domain.Timeline(items, f)
				if len(points) == 0 {
					fmt.Fprintln(out, "  no data")
					continue
				}
				for _, p := range points {
					fmt.Fprintf(out, "  %s  %s\n", p.At.Local().Format("02/01"), formatNumber(p.Value))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "only this measurement (weight, height, chest, waist, hips, arm, thigh)")
	return cmd
}

func (c *cli) radarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "radar",
		Short: "Show the most recent measurement against its chart scale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := c.user()
			if err != nil {
				return err
			}
			items, err := c.service.List(cmd.Context(), u.ID)
			if err != nil {
				return failure(err)
			}
			axes := domain.Radar(items)
			out := cmd.OutOrStdout()
			if len(axes) == 0 {
				fmt.Fprintln(out, "No measurements yet.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "MEASUREMENT\tVALUE\tSCALE")
			for _, a := range axes {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Label, formatNumber(a.Value), formatNumber(a.FullMark))
			}
			return tw.Flush()
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download your measurements as a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := c.user()
			if err != nil {
				return err
			}
			items, err := c.service.List(cmd.Context(), u.ID)
			if err != nil {
				return failure(err)
			}
			file, err := domain.Export(items, time.Now())
			if err != nil {
				return failure(err)
			}
			path := filepath.Join(dir, file.Name)
			if err := os.WriteFile(path, file.Content, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d measurements to %s\n", len(items), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "out", "o", ".", "directory to write the file to")
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Move measurements saved on this device into your account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := c.user()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			report, err := c.service.Migrate(cmd.Context(), u.ID)
			if err != nil {
				if report.Migrated > 0 {
					fmt.Fprintf(out, "%d measurements were copied before the failure; running migrate again will not duplicate them.\n", report.Migrated)
				}
				return failure(err)
			}
			if len(report.Skipped) > 0 {
				if err := c.local.KeepSkippedLegacy(cmd.Context(), report.Skipped); err != nil {
					c.logger.Warn("keep skipped legacy entries", zap.Error(err))
				}
				fmt.Fprintf(out, "Skipped %d entries that could not be saved (kept on this device under %q):\n", len(report.Skipped), localstore.KeyMigrationSkipped)
				for _, skipped := range report.Skipped {
					fmt.Fprintf(out, "  #%d date %q: %s\n", skipped.Index+1, skipped.Record.Date, skipped.Reason)
				}
			}
			if report.Migrated == 0 && len(report.Skipped) == 0 {
				fmt.Fprintln(out, "Nothing to migrate.")
				return nil
			}
			fmt.Fprintf(out, "Migrated %d measurements.\n", report.Migrated)
			return nil
		},
	}
}

func (c *cli) dismissCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss",
		Short: "Stop reminding about measurements saved on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.local.DismissMigration(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Reminder dismissed. `medidas migrate` still works.")
			return nil
		},
	}
}

func (c *cli) legacyCmd() *cobra.Command {
	legacy := &cobra.Command{
		Use:   "legacy",
		Short: "Manage measurements saved on this device",
	}
	legacy.AddCommand(&cobra.Command{
		Use:   "import <file.json>",
		Short: "Store a JSON array of measurements on this device for migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			n, err := c.local.ImportLegacy(cmd.Context(), data)
			if err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %d measurements on this device.\n", n)
			return nil
		},
	})
	return legacy
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
