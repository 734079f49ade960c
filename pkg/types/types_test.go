package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected OutputFormat
		wantErr  bool
	}{
		{"", OutputFormatMarkdown, false},
		{"markdown", OutputFormatMarkdown, false},
		{"MARKDOWN", OutputFormatMarkdown, false},
		{" html ", OutputFormatHTML, false},
		{"Html", OutputFormatHTML, false},
		{"pdf", "", true},
		{"text", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestScrapeRequest_UnmarshalJSON(t *testing.T) {
	var req ScrapeRequest
	require.NoError(t, json.Unmarshal([]byte(`{"url":"https://example.com","output_format":"HTML"}`), &req))
	assert.Equal(t, "https://example.com", req.URL)
	assert.Equal(t, OutputFormatHTML, req.OutputFormat)

	req = ScrapeRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"url":"https://example.com"}`), &req))
	assert.Equal(t, OutputFormat(""), req.OutputFormat)

	err := json.Unmarshal([]byte(`{"url":"https://example.com","output_format":"pdf"}`), &req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output_format")

	err = json.Unmarshal([]byte(`{"url":"https://example.com","output_format":1}`), &req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output_format must be a string")
}

func TestScrapeResponse_Envelope(t *testing.T) {
	success := NewScrapeSuccess(ScrapeData{
		Metadata: PageMetadata{Title: "T", OGTags: map[string]string{"og:type": "article"}},
		Content:  "# T",
	})
	data, err := json.Marshal(success)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"success": true,
		"data": {"metadata": {"title": "T", "og_tags": {"og:type": "article"}}, "content": "# T"},
		"error": null
	}`, string(data))

	failure := NewScrapeError(ErrorCodeTimeout, "Timeout exceeded: too slow")
	data, err = json.Marshal(failure)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"success": false,
		"data": null,
		"error": {"code": "TIMEOUT_EXCEEDED", "message": "Timeout exceeded: too slow"}
	}`, string(data))
}

func TestDuration_YAML(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		expected time.Duration
		wantErr  bool
	}{
		{"milliseconds", "duration: 250ms", 250 * time.Millisecond, false},
		{"seconds", "duration: 30s", 30 * time.Second, false},
		{"combined", "duration: 1m30s", 90 * time.Second, false},
		{"zero", "duration: 0s", 0, false},
		{"missing unit", "duration: 30", 0, true},
		{"garbage", "duration: soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Duration Duration `yaml:"duration"`
			}
			err := yaml.Unmarshal([]byte(tt.yaml), &out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out.Duration.Std())
		})
	}

	data, err := yaml.Marshal(struct {
		Duration Duration `yaml:"duration"`
	}{Duration(90 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, "duration: 1m30s\n", string(data))
}

func TestDuration_JSON(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		expected time.Duration
		wantErr  bool
	}{
		{"string", `"15s"`, 15 * time.Second, false},
		{"nanoseconds", `1000000000`, time.Second, false},
		{"invalid string", `"15 seconds"`, 0, true},
		{"bool", `true`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.json), &d)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d.Std())
		})
	}

	data, err := json.Marshal(Duration(2 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, `"2m0s"`, string(data))
}
