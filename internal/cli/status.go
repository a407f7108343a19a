package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Print one task's progress snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&flagServer, "server", "s", "http://localhost:8080", "videowhisper server base URL")
}

func runStatus(cmd *cobra.Command, args []string) error {
	data, err := apiGet("/api/progress/" + args[0])
	if err != nil {
		return err
	}
	var t progressTask
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("decode progress: %w", err)
	}

	fmt.Printf("task:     %s\n", t.ID)
	fmt.Printf("status:   %s\n", t.Status)
	fmt.Printf("progress: %d%%\n", t.Progress)
	if t.Stage != "" {
		fmt.Printf("stage:    %s\n", t.Stage)
	}
	if t.SegmentsTotal > 0 {
		fmt.Printf("segments: %d/%d\n", t.SegmentsDone, t.SegmentsTotal)
	}
	if t.Error != nil {
		fmt.Printf("error:    %s: %s\n", t.Error.Kind, t.Error.Message)
	}
	return nil
}
