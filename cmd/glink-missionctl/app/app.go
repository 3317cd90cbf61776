// Package app implements glink-missionctl, the operator CLI for a
// running Groundlink GCS daemon.
package app

import (
	"fmt"
	"sort"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/groundlink-io/groundlink/internal/gcsd/state"
	"github.com/groundlink-io/groundlink/internal/gcsd/telemetry"
)

var serverAddr string

// NewMissionctlCommand builds the root command and its subcommands.
func NewMissionctlCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "glink-missionctl",
		Short:         "Inspect and control a running Groundlink GCS daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&serverAddr, "server", "s", "http://127.0.0.1:8080",
		"Base URL of the gcsd HTTP API.")

	root.AddCommand(
		newSnapshotCommand(),
		newVehicleCommand(),
		newSessionCommand(),
		newGeofenceCommand(),
		newWatchCommand(),
	)
	return root
}

func newSnapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Show every tracked vehicle in one table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var snap map[telemetry.VehicleID]state.VehicleView
			if err := newClient(serverAddr).get("/api/v1/snapshot", &snap); err != nil {
				return err
			}

			ids := make([]telemetry.VehicleID, 0, len(snap))
			for id := range snap {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

			table := uitable.New()
			table.MaxColWidth = 40
			table.AddRow("VEHICLE", "LINK", "BATTERY", "AUTONOMY", "GEOFENCE", "HEALTH", "POSITION", "AGE")
			for _, id := range ids {
				v := snap[id]
				table.AddRow(
					string(id),
					string(v.Connectivity),
					batteryCell(v),
					autonomyCell(v),
					string(v.Geofence),
					string(v.Health.Level),
					positionCell(v),
					ageCell(v),
				)
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func newVehicleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "vehicle <id>",
		Short: "Show the full state of one vehicle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v state.VehicleView
			if err := newClient(serverAddr).get("/api/v1/vehicles/"+args[0], &v); err != nil {
				return err
			}

			table := uitable.New()
			table.AddRow("Vehicle:", string(v.VehicleID))
			table.AddRow("Connectivity:", string(v.Connectivity))
			table.AddRow("Health:", string(v.Health.Level))
			table.AddRow("Battery:", fmt.Sprintf("%.1f%% (%.2f %%/min)", v.Health.BatteryPercent, v.Health.BatteryRate))
			table.AddRow("Geofence:", string(v.Geofence))
			table.AddRow("Last update:", v.LastUpdate.Format(time.RFC3339))
			if s := v.LastSample; s != nil {
				table.AddRow("Mission time:", s.Timestamp.String())
				table.AddRow("Position:", fmt.Sprintf("%.6f, %.6f @ %.1fm", s.Position.Latitude, s.Position.Longitude, s.Position.AltitudeM))
				table.AddRow("Autonomy:", string(s.Autonomy))
				table.AddRow("Link:", linkCell(s.Link))
				table.AddRow("Satellites:", fmt.Sprintf("%d", s.Satellites))
				table.AddRow("Payload:", s.Payload.Status)
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func newSessionCommand() *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Show or change the mission session lifecycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				State    string `json:"state"`
				Vehicles int    `json:"vehicles"`
			}
			if err := newClient(serverAddr).get("/api/v1/session", &out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state: %s\nvehicles: %d\n", out.State, out.Vehicles)
			return nil
		},
	}

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Activate the mission session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return postState(cmd, "/api/v1/session/start")
		},
	}, &cobra.Command{
		Use:   "stop",
		Short: "End the mission session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return postState(cmd, "/api/v1/session/stop")
		},
	})
	return sessionCmd
}

func postState(cmd *cobra.Command, path string) error {
	var out struct {
		State string `json:"state"`
	}
	if err := newClient(serverAddr).post(path, &out); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "state: %s\n", out.State)
	return nil
}

func batteryCell(v state.VehicleView) string {
	if v.LastSample == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", v.LastSample.BatteryPercent)
}

func autonomyCell(v state.VehicleView) string {
	if v.LastSample == nil {
		return "-"
	}
	return string(v.LastSample.Autonomy)
}

func positionCell(v state.VehicleView) string {
	if v.LastSample == nil {
		return "-"
	}
	p := v.LastSample.Position
	return fmt.Sprintf("%.5f,%.5f", p.Latitude, p.Longitude)
}

func ageCell(v state.VehicleView) string {
	if v.LastUpdate.IsZero() {
		return "never"
	}
	return time.Since(v.LastUpdate).Truncate(time.Second).String()
}

func linkCell(l telemetry.LinkQuality) string {
	if l.IsLost() {
		return "LOST"
	}
	return fmt.Sprintf("%d%%", int(l))
}
