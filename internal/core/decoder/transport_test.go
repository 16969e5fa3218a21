package decoder

import (
	"testing"
)

func TestTrailerLen(t *testing.T) {
	tests := []struct {
		name       string
		headerLen  int
		segmentLen int
		totalLen   uint16
		expected   int
	}{
		{"exact", 20, 30, 50, 0},
		{"ethernet padding", 20, 26, 40, 6},
		{"truncated capture", 20, 10, 1500, 0},
		{"ip options", 24, 40, 60, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trailerLen(tt.headerLen, tt.segmentLen, tt.totalLen); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestTrimTrailer(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}

	got, n := trimTrailer(payload, 2)
	if n != 2 || len(got) != 3 || got[2] != 3 {
		t.Errorf("Expected [1 2 3] with 2 trimmed, got %v with %d", got, n)
	}

	got, n = trimTrailer(payload, 0)
	if n != 0 || len(got) != 5 {
		t.Errorf("Expected payload untouched, got %v with %d", got, n)
	}

	// Trailer longer than the payload cannot reach into the headers
	got, n = trimTrailer(payload, 9)
	if n != 5 || len(got) != 0 {
		t.Errorf("Expected empty payload with 5 trimmed, got %v with %d", got, n)
	}
}
