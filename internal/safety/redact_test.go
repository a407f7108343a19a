package safety

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedact_MasksSecretKeys(t *testing.T) {
	in := map[string]any{
		"api_key":       "sk-abcdef",
		"Authorization": "Bearer xyz",
		"cookie":        "session=1",
		"model":         "gpt-4o-mini",
		"nested": map[string]any{
			"youtube_cookies": "raw-cookie-data",
			"base_url":        "https://api.openai.com",
		},
	}

	out := Redact(in).(map[string]any)
	require.Equal(t, "***", out["api_key"])
	require.Equal(t, "***", out["Authorization"])
	require.Equal(t, "***", out["cookie"])
	require.Equal(t, "gpt-4o-mini", out["model"])

	nested := out["nested"].(map[string]any)
	require.Equal(t, "***", nested["youtube_cookies"])
	require.Equal(t, "https://api.openai.com", nested["base_url"])
}

func TestRedact_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"secret_token": "leak-me"}
	_ = Redact(in)
	require.Equal(t, "leak-me", in["secret_token"])
}

func TestRedact_MasksStructFields(t *testing.T) {
	type vendor struct {
		APIKey  string `json:"api_key"`
		BaseURL string `json:"base_url"`
	}
	type cfg struct {
		Vendor     vendor `json:"vendor"`
		AdminToken string `json:"admin_token"`
	}

	out := Redact(&cfg{
		Vendor:     vendor{APIKey: "sk-secret", BaseURL: "https://api.example.com"},
		AdminToken: "tok-123",
	}).(map[string]any)

	require.Equal(t, "***", out["admin_token"])
	v := out["vendor"].(map[string]any)
	require.Equal(t, "***", v["api_key"])
	require.Equal(t, "https://api.example.com", v["base_url"])
}

func TestRedact_HandlesSlices(t *testing.T) {
	in := []any{
		map[string]any{"api_key": "leak"},
		"plain string",
	}
	out := Redact(in).([]any)
	require.Equal(t, "***", out[0].(map[string]any)["api_key"])
	require.Equal(t, "plain string", out[1])
}
