package document

import "testing"

func TestDeriveHints(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		endsMid  bool
		startsCt bool
	}{
		{"plain prose", "Some paragraph.\n\nAnother one.", false, false},
		{"ends in table", "Intro text.\n\n| a | b |\n| --- | --- |\n| 1 | 2 |", true, false},
		{"starts with rows", "| 3 | 4 |\n| 5 | 6 |\n\nClosing text.", false, true},
		{"all table", "| a | b |\n| --- | --- |\n| 1 | 2 |", true, true},
		{"empty", "", false, false},
		{"trailing blank lines after table", "| a | b |\n| 1 | 2 |\n\n\n", true, true},
	}
	for _, tt := range tests {
		h := DeriveHints(tt.fragment)
		if h.EndsMidTable != tt.endsMid {
			t.Errorf("%s: EndsMidTable = %v, want %v", tt.name, h.EndsMidTable, tt.endsMid)
		}
		if h.StartsContinuation != tt.startsCt {
			t.Errorf("%s: StartsContinuation = %v, want %v", tt.name, h.StartsContinuation, tt.startsCt)
		}
	}
}

func TestRawFallback(t *testing.T) {
	u := Unit{Text: "  extracted text  ", Raw: []byte("<p>raw</p>")}
	if got := u.RawFallback(); got != "extracted text" {
		t.Errorf("text layer should win, got %q", got)
	}

	u = Unit{Raw: []byte("<p>raw</p>")}
	if got := u.RawFallback(); got != "<p>raw</p>" {
		t.Errorf("raw bytes fallback, got %q", got)
	}

	u = Unit{Raw: []byte{0xff, 0xfe, 0x00}}
	if got := u.RawFallback(); got != "" {
		t.Errorf("invalid utf8 should yield empty, got %q", got)
	}

	u = Unit{Image: []byte{1, 2, 3}}
	if got := u.RawFallback(); got != "" {
		t.Errorf("image-only unit should yield empty, got %q", got)
	}
}

func TestNewSuccessDerivesHints(t *testing.T) {
	res := NewSuccess(4, "| a |\n| 1 |")
	if res.Status != StatusSuccess || res.UnitIndex != 4 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !res.Hints.EndsMidTable || !res.Hints.StartsContinuation {
		t.Errorf("hints not derived: %+v", res.Hints)
	}
}
