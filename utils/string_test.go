package utils

import (
	"strings"
	"testing"
)

func TestCompressAndDecompressString(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{
			name: "Short string",
			text: "Hello, world!",
		},
		{
			name: "Track record JSON",
			text: `{"title":"Hello","artist":"Adele","duration_seconds":367,"cover_url":"https://i.ytimg.com/vi/abc/maxresdefault.jpg"}`,
		},
		{
			name: "Empty string",
			text: "",
		},
		{
			name: "LRC content",
			text: "[ti:Hello]\n[ar:Adele]\n[00:00.00]Hello\n[00:03.00]Downloading full track...\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compressed, err := CompressString(tt.text)
			if err != nil {
				t.Fatalf("CompressString error: %v", err)
			}

			decompressed, err := DecompressString(compressed)
			if err != nil {
				t.Fatalf("DecompressString error: %v", err)
			}

			if decompressed != tt.text {
				t.Errorf("round trip = %q, want %q", decompressed, tt.text)
			}
		})
	}
}

func TestCompressionRatio(t *testing.T) {
	// Repetitive lyric lines should compress well
	content := strings.Repeat("[00:03.00]Downloading full track, placeholder playing...\n", 100)

	compressed, err := CompressString(content)
	if err != nil {
		t.Fatalf("CompressString error: %v", err)
	}

	ratio := float64(len(compressed)) / float64(len(content))
	t.Logf("Original: %d bytes, Compressed: %d bytes, Ratio: %.2f", len(content), len(compressed), ratio)

	if ratio > 0.1 {
		t.Errorf("compression ratio %.2f for repetitive content, want < 0.1", ratio)
	}
}

func TestInvalidBase64Decompression(t *testing.T) {
	if _, err := DecompressString("invalid_base64_string"); err == nil {
		t.Error("no error when decompressing invalid base64 input")
	}
}
