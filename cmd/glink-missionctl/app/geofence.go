package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/groundlink-io/groundlink/internal/gcsd/geofence"
)

func newGeofenceCommand() *cobra.Command {
	geofenceCmd := &cobra.Command{
		Use:   "geofence",
		Short: "Show or replace the mission geofence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var def geofence.Definition
			if err := newClient(serverAddr).get("/api/v1/geofence", &def); err != nil {
				return err
			}
			out, err := json.MarshalIndent(def, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	var file string
	apply := &cobra.Command{
		Use:   "apply",
		Short: "Replace the active geofence from a definition file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := viper.New()
			v.SetConfigFile(file)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read geofence file %s: %w", file, err)
			}
			var def geofence.Definition
			if err := v.Unmarshal(&def); err != nil {
				return fmt.Errorf("failed to parse geofence file %s: %w", file, err)
			}
			if err := def.Validate(); err != nil {
				return err
			}

			var out struct {
				Transitions []geofence.Transition `json:"transitions"`
			}
			if err := newClient(serverAddr).put("/api/v1/geofence", &def, &out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "geofence applied, %d vehicle(s) changed status\n", len(out.Transitions))
			for _, tr := range out.Transitions {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s -> %s\n", tr.VehicleID, tr.Old, tr.New)
			}
			return nil
		},
	}
	apply.Flags().StringVarP(&file, "file", "f", "", "Geofence definition file (yaml or json).")
	apply.MarkFlagRequired("file")

	geofenceCmd.AddCommand(apply)
	return geofenceCmd
}
