package providers

import (
	"errors"
	"testing"
)

func TestParseFindings(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr error
	}{
		{
			name: "plain JSON array",
			raw:  `[{"label":"erythema","description":"diffuse redness","confidence":0.8,"region":"left ear"}]`,
			want: 1,
		},
		{
			name: "fenced JSON",
			raw: "Here is my analysis:\n```json\n[{\"label\":\"alopecia\",\"confidence\":0.6},{\"label\":\"crusting\",\"confidence\":0.4}]\n```\nLet me know.",
			want: 2,
		},
		{
			name: "confidence clamped",
			raw:  `[{"label":"swelling","confidence":1.7}]`,
			want: 1,
		},
		{
			name:    "prose only",
			raw:     "The image shows a dog with red skin.",
			wantErr: ErrMalformedResponse,
		},
		{
			name:    "invalid JSON",
			raw:     `[{"label": }]`,
			wantErr: ErrMalformedResponse,
		},
		{
			name:    "array of empty labels",
			raw:     `[{"label":"","confidence":0.9}]`,
			wantErr: ErrEmptyResponse,
		},
		{
			name:    "empty array",
			raw:     `[]`,
			wantErr: ErrEmptyResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings, err := ParseFindings(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFindings failed: %v", err)
			}
			if len(findings) != tt.want {
				t.Errorf("Expected %d findings, got %d", tt.want, len(findings))
			}
			for _, f := range findings {
				if f.Confidence < 0 || f.Confidence > 1 {
					t.Errorf("Confidence out of range: %f", f.Confidence)
				}
			}
		})
	}
}

func TestParseDiagnosisCandidates(t *testing.T) {
	raw := "```json\n" + `[
		{"condition":"atopic dermatitis","rationale":"pruritus plus erythema","confidence":0.7,"passages":["merck-vet-manual"]},
		{"condition":"flea allergy","rationale":"seasonal pattern","confidence":0.5}
	]` + "\n```"

	candidates, err := ParseDiagnosisCandidates(raw)
	if err != nil {
		t.Fatalf("ParseDiagnosisCandidates failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Condition != "atopic dermatitis" {
		t.Errorf("Unexpected first condition: %s", candidates[0].Condition)
	}
	if len(candidates[0].Passages) != 1 || candidates[0].Passages[0] != "merck-vet-manual" {
		t.Errorf("Unexpected passage refs: %v", candidates[0].Passages)
	}
}

func TestParseDiagnosisCandidates_Unparsable(t *testing.T) {
	_, err := ParseDiagnosisCandidates("I am sorry, I cannot help with that.")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("Expected ErrMalformedResponse, got %v", err)
	}
}
