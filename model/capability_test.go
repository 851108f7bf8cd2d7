package model

import "testing"

func TestCapabilityForStage(t *testing.T) {
	tests := []struct {
		stage string
		want  Capability
	}{
		{"generate_candidates", CapabilityPlanning},
		{"research", CapabilityResearch},
		{"rank", CapabilityPlanning},
		{"draft", CapabilityWriting},
		{"polish", CapabilityWriting},
		{"unknown", CapabilityWriting},
	}
	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			if got := CapabilityForStage(tt.stage); got != tt.want {
				t.Errorf("CapabilityForStage(%q) = %q, want %q", tt.stage, got, tt.want)
			}
		})
	}
}

func TestParseCapability(t *testing.T) {
	tests := []struct {
		in   string
		want Capability
	}{
		{"planning", CapabilityPlanning},
		{"research", CapabilityResearch},
		{"writing", CapabilityWriting},
		{"fast", CapabilityFast},
		{"coding", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ParseCapability(tt.in); got != tt.want {
			t.Errorf("ParseCapability(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
