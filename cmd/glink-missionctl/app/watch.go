package app

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/groundlink-io/groundlink/internal/gcsd/event"
)

func newWatchCommand() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream mission events to the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wsURL, err := newClient(serverAddr).wsURL(kind)
			if err != nil {
				return err
			}

			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			if err != nil {
				return fmt.Errorf("failed to connect to event feed: %w", err)
			}
			defer conn.Close()

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt)
			go func() {
				<-interrupt
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
			}()

			for {
				var ev event.Event
				if err := conn.ReadJSON(&ev); err != nil {
					if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
						return nil
					}
					return err
				}
				printEvent(cmd, ev)
			}
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Only stream events of this kind.")
	return cmd
}

func printEvent(cmd *cobra.Command, ev event.Event) {
	out := cmd.OutOrStdout()
	stamp := ev.At.Format("15:04:05.000")

	switch ev.Kind {
	case event.KindAlert:
		fmt.Fprintf(out, "%s  ALERT [%s] %s: %s\n", stamp, ev.Alert.Severity, ev.VehicleID, ev.Alert.Detail)
	case event.KindGeofenceTransition:
		fmt.Fprintf(out, "%s  GEOFENCE %s: %s -> %s\n", stamp, ev.VehicleID, ev.Transition.Old, ev.Transition.New)
	case event.KindDetection:
		d := ev.Detection.Detection
		fmt.Fprintf(out, "%s  DETECTION %s: %s (%.0f%%) at %.5f,%.5f\n",
			stamp, ev.VehicleID, d.Type, d.Confidence*100, d.Latitude, d.Longitude)
	case event.KindVehicleRegistered:
		fmt.Fprintf(out, "%s  REGISTERED %s (auto=%v)\n", stamp, ev.VehicleID, ev.Registered.Auto)
	case event.KindSessionStateChanged:
		fmt.Fprintf(out, "%s  SESSION %s -> %s\n", stamp, ev.Session.Old, ev.Session.New)
	default:
		line, _ := json.Marshal(ev)
		fmt.Fprintf(out, "%s  %s\n", stamp, line)
	}
}
