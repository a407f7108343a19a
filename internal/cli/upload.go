package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

// uploadFile streams path to /api/upload and returns the resulting task_id,
// ready for /api/process-upload.
func uploadFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close upload form: %w", err)
	}

	resp, err := apiClient().Post(flagServer+"/api/upload", writer.FormDataContentType(), &body)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := decodeEnvelope(resp)
	if err != nil {
		return "", err
	}
	var res taskIDResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return res.TaskID, nil
}
