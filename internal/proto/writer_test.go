package proto

import (
	"strings"
	"testing"
)

func TestFieldFmtPretty(t *testing.T) {
	f := NewField(nil, "CardId", "int32", nil, 1, nil)
	got := f.FmtPretty(2, false)
	want := "  int32 card_id = 1;\n"
	if got != want {
		t.Errorf("FmtPretty() = %q, want %q", got, want)
	}

	repeated := CardinalityRepeated
	rf := NewField(nil, "Tags", "string", nil, 2, &repeated)
	got = rf.FmtPretty(0, false)
	want = "repeated string tags = 2;\n"
	if got != want {
		t.Errorf("FmtPretty() repeated = %q, want %q", got, want)
	}
}

func TestEnumFmtPrettySortsByTag(t *testing.T) {
	e := NewEnum("Rarity", 1)
	e.AddVariant("RARE", 2)
	e.AddVariant("COMMON", 1)

	got := e.FmtPretty(0)
	commonIdx := strings.Index(got, "RARITY_COMMON")
	rareIdx := strings.Index(got, "RARITY_RARE")
	if commonIdx == -1 || rareIdx == -1 {
		t.Fatalf("FmtPretty() missing expected variants: %q", got)
	}
	if commonIdx > rareIdx {
		t.Errorf("expected COMMON (tag 1) before RARE (tag 2), got %q", got)
	}
}

func TestMessageFmtPrettyIncludesNestedAndFields(t *testing.T) {
	msg := NewMessage("Card", 1)
	msg.AddField(NewField(nil, "id", "int32", nil, 1, nil))
	nested := NewMessage("Stats", 2)
	nested.AddField(NewField(nil, "power", "int32", nil, 1, nil))
	msg.NestedMessages = append(msg.NestedMessages, nested)

	got := msg.FmtPretty(0, "Takasho.Schema.Cards")
	if !strings.Contains(got, "message Card {") {
		t.Errorf("missing outer message header: %q", got)
	}
	if !strings.Contains(got, "message Stats {") {
		t.Errorf("missing nested message header: %q", got)
	}
	if !strings.Contains(got, "int32 id = 1;") {
		t.Errorf("missing field: %q", got)
	}
}

func TestServiceMethodFmtPrettyStreaming(t *testing.T) {
	m := NewServiceMethod("GetCard", nil, "GetCardRequest", nil, nil, "GetCardResponse", nil, false, true)
	got := m.FmtPretty(0)
	want := "rpc GetCard (GetCardRequest) returns (stream GetCardResponse);\n"
	if got != want {
		t.Errorf("FmtPretty() = %q, want %q", got, want)
	}
}

func TestFormatPackageFilename(t *testing.T) {
	got := formatPackageFilename("Takasho.Schema.Cards.Card")
	want := "Takasho.Schema.Cards.proto"
	if got != want {
		t.Errorf("formatPackageFilename() = %q, want %q", got, want)
	}
}
