package probe

import "testing"

func TestFirstToken(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"comma list", "mov,mp4,m4a,3gp", "mov"},
		{"slash list", "flac/ogg", "flac"},
		{"single token", "wav", "wav"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstToken(tt.in); got != tt.want {
				t.Errorf("firstToken(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseInt(t *testing.T) {
	if got := parseInt("44100"); got != 44100 {
		t.Errorf("parseInt = %d, want 44100", got)
	}
	if got := parseInt(""); got != 0 {
		t.Errorf("parseInt(\"\") = %d, want 0", got)
	}
}

func TestParseInt64(t *testing.T) {
	if got := parseInt64("320000"); got != 320000 {
		t.Errorf("parseInt64 = %d, want 320000", got)
	}
	if got := parseInt64("not a number"); got != 0 {
		t.Errorf("parseInt64(garbage) = %d, want 0", got)
	}
}
