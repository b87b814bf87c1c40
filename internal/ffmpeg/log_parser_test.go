package ffmpeg

import "testing"

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		line      string
		wantLevel string
		wantMsg   string
	}{
		{"[error] Invalid data found", "error", "Invalid data found"},
		{"[warning] Past duration too large", "warning", "Past duration too large"},
		{"[panic] aborting", "fatal", "aborting"},
		{"[verbose] probing input", "debug", "probing input"},
		{"[h264 @ 0x55d0] [error] decode_slice failed", "error", "[h264 @ 0x55d0] decode_slice failed"},
		{"[h264 @ 0x55d0] no level here", "info", "[h264 @ 0x55d0] no level here"},
		{"frame=  100 fps= 30", "info", "frame=  100 fps= 30"},
		{"[unterminated", "info", "[unterminated"},
		{"", "info", ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			level, msg := ParseLogLevel(tt.line)
			if level != tt.wantLevel {
				t.Errorf("level = %q, want %q", level, tt.wantLevel)
			}
			if msg != tt.wantMsg {
				t.Errorf("msg = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}
