package company

import (
	"reflect"
	"testing"
)

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Acme", want: "acme"},
		{in: "ACME, Inc.", want: "acme"},
		{in: "  acme inc ", want: "acme"},
		{in: "Acme Robotics Ltd", want: "acme robotics"},
		{in: "@acme", want: "acme"},
		{in: "Smith & Sons Co.", want: "smith and sons"},
		{in: "Inc", want: ""},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		if got := CanonicalKey(tt.in); got != tt.want {
			t.Fatalf("CanonicalKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVariants(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "Tactful AI", want: []string{"Tactful AI", "Tactful"}},
		{in: "Tactfulai", want: []string{"Tactfulai", "Tactful", "Tactful AI"}},
		{in: "Acme, Inc.", want: []string{"Acme, Inc.", "Acme"}},
		{in: "Acme", want: []string{"Acme"}},
		{in: "", want: nil},
	}

	for _, tt := range tests {
		if got := Variants(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("Variants(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSlugs(t *testing.T) {
	got := Slugs("Acme Robotics")
	want := []string{"acmerobotics", "acme-robotics"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		authorCompany string
		want          Mention
	}{
		{
			name: "role at company",
			text: "Hiring ML engineer at Acme, remote",
			want: Mention{Name: "Acme", Role: "ML Engineer"},
		},
		{
			name: "handle is hiring",
			text: "@deepgrid is hiring an AI Engineer! DM me",
			want: Mention{Name: "deepgrid", Role: "AI Engineer"},
		},
		{
			name: "funding headline",
			text: "Acme Robotics raises $20M Series A to build LLM agents",
			want: Mention{Name: "Acme Robotics"},
		},
		{
			name: "join us",
			text: "Come join Nimbus Labs as a Data Scientist, apply at https://careers.nimbuslabs.io/jobs",
			want: Mention{Name: "Nimbus Labs", Role: "Data Scientist", DomainHint: "careers.nimbuslabs.io"},
		},
		{
			name:          "author company wins",
			text:          "We are hiring an ML Engineer at Foo, reach out",
			authorCompany: "Bar Corp",
			want:          Mention{Name: "Bar Corp", Role: "ML Engineer"},
		},
		{
			name: "name from domain",
			text: "we need pytorch people https://quantum-leaf.ai/careers",
			want: Mention{Name: "Quantum Leaf", DomainHint: "quantum-leaf.ai"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.text, tt.authorCompany, nil)
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDomainHintSkipsAggregators(t *testing.T) {
	text := "see https://www.linkedin.com/jobs/1 and https://jobs.lever.co/acme or https://www.acme.io."
	if got := DomainHint(text); got != "acme.io" {
		t.Fatalf("got %q", got)
	}
	if got := DomainHint("no links here"); got != "" {
		t.Fatalf("got %q", got)
	}
}
