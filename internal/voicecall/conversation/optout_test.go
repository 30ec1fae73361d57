package conversation

import "testing"

func TestPhraseDetector_IsOptOut(t *testing.T) {
	detector := NewPhraseDetector()

	tests := []struct {
		name string
		text string
		want bool
	}{
		{
			name: "exact phrase",
			text: "do not call",
			want: true,
		},
		{
			name: "phrase embedded in sentence",
			text: "please do not call me again",
			want: true,
		},
		{
			name: "mixed case",
			text: "STOP CALLING me",
			want: true,
		},
		{
			name: "interested homeowner",
			text: "Yes, please schedule the inspection.",
			want: false,
		},
		{
			name: "empty text",
			text: "",
			want: false,
		},
		{
			name: "negation is still a match",
			text: "I said don't call here",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detector.IsOptOut(tt.text); got != tt.want {
				t.Errorf("IsOptOut(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestPhraseDetector_CustomPhrases(t *testing.T) {
	detector := NewPhraseDetector("no more calls")

	if !detector.IsOptOut("No More Calls please") {
		t.Error("expected custom phrase to match case-insensitively")
	}
	if detector.IsOptOut("do not call") {
		t.Error("default phrases should not match when custom phrases are set")
	}
}
