package articles

import (
	"errors"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestLoadAssignsIDsInOrder(t *testing.T) {
	records := []Record{
		NewRecord("How to Configure Automations in Hiver", "Automation", []string{"automation", " workflow "}, "Automations run workflow rules."),
		NewRecord("Setting up SLAs", "SLA", nil, "Define response targets."),
	}

	got, err := Load(records)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for i, a := range got {
		if a.ID != i {
			t.Errorf("article %d has ID %d", i, a.ID)
		}
	}
	if got[0].Tags[1] != "workflow" {
		t.Errorf("tags not trimmed: %q", got[0].Tags)
	}
	if len(got[1].Tags) != 0 || got[1].Tags == nil {
		t.Errorf("empty tag list should load as empty, got %#v", got[1].Tags)
	}
	if got[0].EmbeddingText() != "How to Configure Automations in Hiver\n\nAutomations run workflow rules." {
		t.Errorf("EmbeddingText() = %q", got[0].EmbeddingText())
	}
}

func TestLoadRejectsMalformedRecords(t *testing.T) {
	valid := NewRecord("Title", "General", []string{}, "Body")

	tests := []struct {
		name  string
		edit  func(r *Record)
		field string
	}{
		{"missing title", func(r *Record) { r.Title = nil }, "title"},
		{"missing category", func(r *Record) { r.Category = nil }, "category"},
		{"missing tags", func(r *Record) { r.Tags = nil }, "tags"},
		{"missing content", func(r *Record) { r.Content = nil }, "content"},
		{"blank title", func(r *Record) { r.Title = strPtr("  ") }, "title"},
		{"blank content", func(r *Record) { r.Content = strPtr("\n") }, "content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := valid
			bad.Source = "broken.json"
			tt.edit(&bad)

			_, err := Load([]Record{valid, bad})
			if !errors.Is(err, ErrMalformedArticle) {
				t.Fatalf("Load() = %v, want ErrMalformedArticle", err)
			}
			var me *MalformedArticleError
			if !errors.As(err, &me) {
				t.Fatalf("error %T is not *MalformedArticleError", err)
			}
			if me.Index != 1 || me.Field != tt.field || me.Source != "broken.json" {
				t.Errorf("got index=%d field=%q source=%q, want 1/%q/broken.json", me.Index, me.Field, me.Source, tt.field)
			}
		})
	}
}

func TestStore(t *testing.T) {
	arts, err := Load([]Record{
		NewRecord("A", "c", nil, "alpha"),
		NewRecord("B", "c", nil, "beta"),
	})
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	s := NewStore(arts)
	arts[0].Title = "mutated"

	if s.Len() != 2 {
		t.Errorf("Len() = %d", s.Len())
	}
	a, ok := s.Get(0)
	if !ok || a.Title != "A" {
		t.Errorf("Get(0) = %+v, %v; store must not alias the caller's slice", a, ok)
	}
	if _, ok := s.Get(2); ok {
		t.Error("Get(2) should miss")
	}
	texts := s.Texts()
	if texts[1] != "B\n\nbeta" {
		t.Errorf("Texts()[1] = %q", texts[1])
	}
}
