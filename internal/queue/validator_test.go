package queue

import (
	"errors"
	"testing"

	"github.com/franz/bibcluster/internal/model"
	"github.com/franz/bibcluster/internal/util"
)

func TestValidator_Decode(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{
			name:    "minimal",
			payload: `{"source_id":"ht-1","source":"hathitrust","title":"Walden"}`,
		},
		{
			name: "full",
			payload: `{"source_id":"ht-2","source":"hathitrust","frbr_status":"complete",
				"title":"Walden","authors":["Thoreau, Henry David|12345||true"],
				"identifiers":["9780000000001|isbn"],"has_part":["1|https://example.org/a.pdf|hathitrust|application/pdf|{}"]}`,
		},
		{name: "empty", payload: `  `, wantErr: true},
		{name: "not json", payload: `{"source_id":`, wantErr: true},
		{name: "trailing content", payload: `{"source_id":"a","source":"b"} {}`, wantErr: true},
		{name: "missing source_id", payload: `{"source":"hathitrust"}`, wantErr: true},
		{name: "empty source", payload: `{"source_id":"x","source":""}`, wantErr: true},
		{name: "bad status", payload: `{"source_id":"x","source":"y","frbr_status":"done"}`, wantErr: true},
		{name: "wrong type", payload: `{"source_id":"x","source":"y","identifiers":"123|isbn"}`, wantErr: true},
		{name: "bad uuid", payload: `{"source_id":"x","source":"y","uuid":"nope"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := v.Decode([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, util.ErrInvalidRecord) {
					t.Fatalf("expected ErrInvalidRecord, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if rec.SourceID == "" || rec.Title != "Walden" {
				t.Errorf("unexpected record %+v", rec)
			}
		})
	}
}

func TestValidator_DecodeFields(t *testing.T) {
	v, _ := NewValidator()
	rec, err := v.Decode([]byte(`{"source_id":"gut-9","source":"gutenberg","frbr_status":"complete",
		"title":"Moby Dick","identifiers":["2701|gutenberg","123|oclc"],"spatial":"New York"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if rec.FRBRStatus != model.FRBRComplete {
		t.Errorf("FRBRStatus = %q", rec.FRBRStatus)
	}
	if len(rec.Identifiers) != 2 || rec.Identifiers[1].Key() != "123|oclc" {
		t.Errorf("identifiers = %+v", rec.Identifiers)
	}
	if rec.PublicationPlace != "New York" {
		t.Errorf("PublicationPlace = %q", rec.PublicationPlace)
	}
}
