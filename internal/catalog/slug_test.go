package catalog

import (
	"errors"
	"strings"
	"testing"

	"newscurator/internal/model"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "simple", in: "Sailing", want: "sailing"},
		{name: "punctuation collapses", in: "Sailing & Boating (RYA)", want: "sailing_boating_rya"},
		{name: "trims edges", in: "  --Golf--  ", want: "golf"},
		{name: "digits kept", in: "Formula 1 News", want: "formula_1_news"},
		{name: "non-ascii dropped", in: "Café Société", want: "caf_soci_t"},
		{name: "only symbols", in: "!!! ???", wantErr: true},
		{name: "empty", in: "", wantErr: true},
		{name: "long names are cut", in: strings.Repeat("ab ", 40), want: strings.TrimRight(strings.Repeat("ab_", 22)[:64], "_")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Slugify(tt.in)
			if tt.wantErr {
				if !errors.Is(err, model.ErrValidation) {
					t.Fatalf("Slugify(%q) error = %v, want ErrValidation", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Slugify(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
