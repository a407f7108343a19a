package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagSubmitURL      string
	flagSubmitFile     string
	flagSubmitProvider string
	flagSubmitWatch    bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a video URL or local file for processing",
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&flagServer, "server", "s", "http://localhost:8080", "videowhisper server base URL")
	submitCmd.Flags().StringVarP(&flagSubmitURL, "url", "u", "", "video URL to transcribe")
	submitCmd.Flags().StringVarP(&flagSubmitFile, "file", "f", "", "local audio/video file to upload")
	submitCmd.Flags().StringVarP(&flagSubmitProvider, "llm-provider", "l", "", "llm_provider override (siliconflow, openai, gemini)")
	submitCmd.Flags().BoolVarP(&flagSubmitWatch, "watch", "w", false, "poll progress until the task finishes")
}

type taskIDResponse struct {
	TaskID string `json:"task_id"`
}

func runSubmit(cmd *cobra.Command, args []string) error {
	if flagSubmitURL == "" && flagSubmitFile == "" {
		return fmt.Errorf("either --url or --file is required")
	}

	var taskID string
	switch {
	case flagSubmitURL != "":
		data, err := apiPost("/api/process", map[string]string{
			"video_url":    flagSubmitURL,
			"llm_provider": flagSubmitProvider,
		})
		if err != nil {
			return err
		}
		var resp taskIDResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("decode submit response: %w", err)
		}
		taskID = resp.TaskID
	case flagSubmitFile != "":
		id, err := uploadFile(flagSubmitFile)
		if err != nil {
			return err
		}
		data, err := apiPost("/api/process-upload", map[string]string{
			"task_id":      id,
			"llm_provider": flagSubmitProvider,
		})
		if err != nil {
			return err
		}
		var resp taskIDResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("decode process-upload response: %w", err)
		}
		taskID = resp.TaskID
	}

	fmt.Println(taskID)
	if !flagSubmitWatch {
		return nil
	}
	return watchTask(taskID)
}

func watchTask(taskID string) error {
	renderer := newProgressRenderer()
	defer renderer.Finish()

	for {
		data, err := apiGet("/api/progress/" + taskID)
		if err != nil {
			return err
		}
		var t progressTask
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("decode progress: %w", err)
		}
		renderer.Handle(t)
		if t.Status == "completed" || t.Status == "failed" || t.Status == "cancelled" {
			if t.Status == "failed" && t.Error != nil {
				return fmt.Errorf("task failed: %s: %s", t.Error.Kind, t.Error.Message)
			}
			return nil
		}
		time.Sleep(2 * time.Second)
	}
}
