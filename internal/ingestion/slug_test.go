package ingestion

import "testing"

func TestSlugger(t *testing.T) {
	s := NewSlugger()
	tests := []struct {
		title string
		want  string
	}{
		{"How to Configure Automations in Hiver", "how-to-configure-automations-in-hiver"},
		{"  SLAs & Response Targets!  ", "slas-response-targets"},
		{"How to Configure Automations in Hiver", "how-to-configure-automations-in-hiver-2"},
		{"!!!", "article"},
		{"Über Tags", "über-tags"},
	}
	for _, tt := range tests {
		if got := s.Slug(tt.title); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}
