package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleettrack/core/fleet"
	"github.com/kilianp07/fleettrack/infra/wialon"
	"github.com/kilianp07/fleettrack/pkg/export"
)

var (
	vehiclesMask   string
	vehiclesOutput string
)

var vehiclesCmd = &cobra.Command{
	Use:   "vehicles",
	Short: "Vehicle related commands",
}

var vehiclesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List units with their last known position",
	Args:  cobra.NoArgs,
	RunE:  runVehiclesLs,
}

func init() {
	vehiclesLsCmd.Flags().StringVar(&vehiclesMask, "mask", "*", "unit name mask")
	vehiclesLsCmd.Flags().StringVarP(&vehiclesOutput, "output", "o", export.FormatTable, "output format: table, csv or json")
	vehiclesLsCmd.Flags().DurationVar(&callTimeout, "timeout", 30*time.Second, "overall deadline")
	vehiclesCmd.AddCommand(vehiclesLsCmd)
	rootCmd.AddCommand(vehiclesCmd)
}

func runVehiclesLs(cmd *cobra.Command, _ []string) error {
	switch vehiclesOutput {
	case export.FormatTable, export.FormatCSV, export.FormatJSON:
	default:
		return fmt.Errorf("unknown output format %q", vehiclesOutput)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	resp, err := newProxy(cfg).Call(ctx, wialon.SearchItemsService, wialon.SearchUnitsParams(vehiclesMask))
	if err != nil {
		return err
	}
	positions, err := wialon.DecodeUnits(resp)
	if err != nil {
		return err
	}
	store := fleet.NewMemoryStore()
	store.Upsert(positions...)
	return export.Write(cmd.OutOrStdout(), vehiclesOutput, store.List(fleet.Filter{}))
}
