package parser

import "testing"

const header = "event_id,trip_id,tr_unit,site,asset,event_type,phase,state,ts,activity_id,reason_tag,actor,note"

func TestParseCSVBasicRow(t *testing.T) {
	raw := header + "\n" +
		"EV-001,TRIP-01,TR-07,MINA,SPMT-A,STATE_CHANGE,LOADOUT,START,2026-01-26T08:00:00+04:00,ACT-001,,j.smith,first lift\n"

	items := ParseCSV([]byte(raw))
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	ev := items[0]
	if ev.EventID != "EV-001" || ev.ActivityID != "ACT-001" {
		t.Errorf("unexpected ids: %+v", ev)
	}
	if ev.State != "START" || ev.Phase != "LOADOUT" {
		t.Errorf("unexpected state/phase: %+v", ev)
	}
	if ev.ReasonTag != "" {
		t.Errorf("expected empty reason_tag, got %q", ev.ReasonTag)
	}
	if ev.Note != "first lift" {
		t.Errorf("unexpected note: %q", ev.Note)
	}
}

func TestParseCSVQuotedFields(t *testing.T) {
	raw := header + "\n" +
		`EV-002,TRIP-01,,MINA,,STATE_CHANGE,LOADOUT,HOLD,2026-01-26T10:00:00+04:00,ACT-001,WEATHER,,"wind 14 m/s, gusting ""18"""` + "\n"

	items := ParseCSV([]byte(raw))
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	want := `wind 14 m/s, gusting "18"`
	if items[0].Note != want {
		t.Errorf("note = %q, want %q", items[0].Note, want)
	}
}

func TestParseCSVNewlineInsideQuotes(t *testing.T) {
	raw := header + "\n" +
		"EV-003,TRIP-01,,MINA,,STATE_CHANGE,LOADOUT,HOLD,2026-01-26T10:00:00+04:00,ACT-001,PTW,,\"line one\nline two\"\n"

	items := ParseCSV([]byte(raw))
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Note != "line one\nline two" {
		t.Errorf("note = %q", items[0].Note)
	}
}

func TestParseCSVStripsBOM(t *testing.T) {
	raw := "\xEF\xBB\xBF" + header + "\n" +
		"EV-004,TRIP-01,,MINA,,MILESTONE,BERTHING,ARRIVE,2026-01-26T06:00:00+04:00,ACT-002,,,\n"

	items := ParseCSV([]byte(raw))
	if len(items) != 1 {
		t.Fatalf("expected 1 item with BOM header, got %d", len(items))
	}
	if items[0].EventID != "EV-004" {
		t.Errorf("event_id = %q", items[0].EventID)
	}
}

func TestParseCSVSkipsEmptyLinesAndPadsShortRows(t *testing.T) {
	raw := header + "\n" +
		"\n" +
		"EV-005,TRIP-01,,MINA,,STATE_CHANGE,LOADOUT,END,2026-01-26T18:00:00+04:00,ACT-001\n" +
		"\n"

	items := ParseCSV([]byte(raw))
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].ReasonTag != "" || items[0].Actor != "" || items[0].Note != "" {
		t.Errorf("short row was not zero-padded: %+v", items[0])
	}
}

func TestParseCSVMalformedHeaderYieldsZeroRows(t *testing.T) {
	raw := "event_id,trip_id\nEV-006,TRIP-01\n"
	if items := ParseCSV([]byte(raw)); len(items) != 0 {
		t.Errorf("expected zero rows for malformed header, got %d", len(items))
	}
}

func TestParseCSVForwardsMalformedDataRows(t *testing.T) {
	// Bad timestamp and unknown state survive parsing; the validation
	// gates attribute the problems later.
	raw := header + "\n" +
		"EV-007,TRIP-01,,MINA,,STATE_CHANGE,LOADOUT,START,not-a-date,ACT-001,,,\n"

	items := ParseCSV([]byte(raw))
	if len(items) != 1 {
		t.Fatalf("malformed row was dropped")
	}
	if items[0].TS != "not-a-date" {
		t.Errorf("ts = %q", items[0].TS)
	}
}

func TestParseCSVLeavesTimestampsUntouched(t *testing.T) {
	// An offset-less ts is invalid input; it must reach the timestamp
	// gate as written, never be coerced to UTC.
	raw := header + "\n" +
		"EV-010,TRIP-01,,MINA,,STATE_CHANGE,LOADOUT,START,2026-01-26T08:00:00,ACT-001,,,\n"

	items := ParseCSV([]byte(raw))
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].TS != "2026-01-26T08:00:00" {
		t.Errorf("ts = %q, want the original text", items[0].TS)
	}
}

func TestParseCSVColumnOrderIsFree(t *testing.T) {
	raw := "ts,state,event_type,event_id,trip_id,tr_unit,site,asset,phase,activity_id,reason_tag,actor,note\n" +
		"2026-01-26T08:00:00+04:00,START,STATE_CHANGE,EV-008,TRIP-02,TR-01,RUWAIS,SPMT-B,LOADIN,ACT-009,,,\n"

	items := ParseCSV([]byte(raw))
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].EventID != "EV-008" || items[0].TS != "2026-01-26T08:00:00+04:00" {
		t.Errorf("column remap failed: %+v", items[0])
	}
}
