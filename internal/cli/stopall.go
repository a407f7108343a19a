package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var stopAllCmd = &cobra.Command{
	Use:   "stop-all",
	Short: "Cancel every pending or running task",
	RunE:  runStopAll,
}

func init() {
	stopAllCmd.Flags().StringVarP(&flagServer, "server", "s", "http://localhost:8080", "videowhisper server base URL")
	stopAllCmd.Flags().StringVar(&flagAdminToken, "admin-token", "", "admin bearer token, when the server runs with security.production enabled")
}

var flagAdminToken string

func runStopAll(cmd *cobra.Command, args []string) error {
	data, err := apiPostAuth("/api/stop-all-tasks", map[string]string{}, flagAdminToken)
	if err != nil {
		return err
	}
	var resp struct {
		Cancelled int `json:"cancelled"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("decode stop-all response: %w", err)
	}
	fmt.Printf("cancelled %d task(s)\n", resp.Cancelled)
	return nil
}
