package chart

import (
	"encoding/json"
	"testing"
)

func TestSessionJSON(t *testing.T) {
	rawJSON := "{\"id\":\"d4kdisifn76c73dkrju0\",\"Session\":{\"Name\":\"stentor-run-12\",\"Date\":\"2026-08-29T16:06:26.504207-07:00\",\"StartTime\":\"0001-01-01T00:00:00Z\",\"Probes\":null,\"Stages\":null,\"Events\":null,\"Data\":null},\"UploadedAt\":\"2026-08-29T23:06:26.60698014Z\"}"
	var s session
	err := json.Unmarshal([]byte(rawJSON), &s)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if s.Session.Name != "stentor-run-12" {
		t.Errorf("unexpected session name: %q", s.Session.Name)
	}
	if s.GetID() != "d4kdisifn76c73dkrju0" {
		t.Errorf("unexpected session id: %q", s.GetID())
	}
}
