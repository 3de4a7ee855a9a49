package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimestamp_ServiceFormat(t *testing.T) {
	// The service emits microsecond precision with a numeric UTC offset.
	raw := `"2021-02-03T21:21:57.713584+00:00"`

	var ts Timestamp
	if err := json.Unmarshal([]byte(raw), &ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2021, 2, 3, 21, 21, 57, 713584000, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("parsed %v, want %v", ts.Time, want)
	}

	out, err := json.Marshal(ts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != raw {
		t.Errorf("marshalled %s, want %s", out, raw)
	}
}

func TestTimestamp_RFC3339Fallback(t *testing.T) {
	// PostgREST drops trailing fractional zeros, leaving fewer than six
	// digits; those parse through the RFC 3339 fallback.
	for _, raw := range []string{
		`"2021-02-03T21:21:57.7Z"`,
		`"2021-02-03T21:21:57Z"`,
		`"2021-02-03T21:21:57.71358+00:00"`,
	} {
		var ts Timestamp
		if err := json.Unmarshal([]byte(raw), &ts); err != nil {
			t.Errorf("%s: unexpected error: %v", raw, err)
		}
	}
}

func TestTimestamp_Invalid(t *testing.T) {
	for _, raw := range []string{`"yesterday"`, `42`, `""`} {
		var ts Timestamp
		if err := json.Unmarshal([]byte(raw), &ts); err == nil {
			t.Errorf("%s: expected an error", raw)
		}
	}
}

func TestDataset_EmbeddedFiles(t *testing.T) {
	raw := `{
		"dataset_id": "7b0f0366-56ff-4f91-a73f-17acc1d8e278",
		"system_id": "robot-7",
		"created_date": "2021-02-03T21:21:57.713584+00:00",
		"metadata": {"site": "warehouse-3"},
		"files": [
			{
				"file_id": "3cbc2a43-2fa9-4f7b-a173-e96f93f74e4c",
				"dataset_id": "7b0f0366-56ff-4f91-a73f-17acc1d8e278",
				"created_date": "2021-02-03T21:22:10.000001+00:00",
				"url": "https://b.s3.us-west-1.amazonaws.com/u/d/logs/run1.bin",
				"filesize": 1048576,
				"version": "abc123"
			}
		]
	}`

	var ds Dataset
	if err := json.Unmarshal([]byte(raw), &ds); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ds.SystemID != "robot-7" {
		t.Errorf("system id = %q", ds.SystemID)
	}
	if len(ds.Files) != 1 {
		t.Fatalf("expected 1 embedded file, got %d", len(ds.Files))
	}
	f := ds.Files[0]
	if f.Filesize != 1048576 || f.Version != "abc123" {
		t.Errorf("unexpected file row: %+v", f)
	}
	if f.DatasetID != ds.ID {
		t.Error("file's dataset id does not match the dataset")
	}
}
