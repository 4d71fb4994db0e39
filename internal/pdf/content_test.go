package pdf

import (
	"bytes"
	"testing"
)

func TestParseContentOps(t *testing.T) {
	ops, err := ParseContent([]byte("q 1 0 0 1 10 20 cm BT /F1 12 Tf (Hi) Tj ET Q"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want := []string{"q", "cm", "BT", "Tf", "Tj", "ET", "Q"}
	if len(ops) != len(want) {
		t.Fatalf("expected %d ops, got %d", len(want), len(ops))
	}
	for i, op := range ops {
		if op.Operator != want[i] {
			t.Fatalf("op %d: expected %s, got %s", i, want[i], op.Operator)
		}
	}
	if len(ops[1].Operands) != 6 {
		t.Fatalf("cm operands: %v", ops[1].Operands)
	}
	if s, _ := ops[4].Operands[0].(String); string(s) != "Hi" {
		t.Fatalf("Tj operand: %q", s)
	}
}

func TestParseContentTJArray(t *testing.T) {
	ops, err := ParseContent([]byte("[(AB) -500 (C)] TJ"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(ops) != 1 || ops[0].Operator != "TJ" {
		t.Fatalf("unexpected ops: %+v", ops)
	}
	arr, ok := ops[0].Operands[0].(Array)
	if !ok || len(arr) != 3 {
		t.Fatalf("TJ operand not a 3 element array: %v", ops[0].Operands)
	}
	if arr[1] != int64(-500) {
		t.Fatalf("expected -500 shift, got %v", arr[1])
	}
}

func TestInlineImageRoundtrip(t *testing.T) {
	src := []byte("q BI /W 1 /H 1 /BPC 8 /CS /G ID \xfe EI Q")
	ops, err := ParseContent(src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(ops) != 3 || ops[1].Operator != "BI" {
		t.Fatalf("inline image not isolated: %+v", ops)
	}
	if w, _ := ToInt(ops[1].InlineDict["W"]); w != 1 {
		t.Fatalf("inline dict wrong: %v", ops[1].InlineDict)
	}
	if !bytes.Equal(ops[1].InlineData, []byte{0xfe}) {
		t.Fatalf("payload wrong: %v", ops[1].InlineData)
	}

	again, err := ParseContent(SerializeContent(ops))
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	if len(again) != 3 || !bytes.Equal(again[1].InlineData, []byte{0xfe}) {
		t.Fatalf("serialize did not round trip: %+v", again)
	}
}

func TestSerializeContentEscapes(t *testing.T) {
	ops := []Op{{Operands: []Object{String("a(b)\\c")}, Operator: "Tj"}}
	out := SerializeContent(ops)
	if !bytes.Equal(out, []byte("(a\\(b\\)\\\\c) Tj\n")) {
		t.Fatalf("unexpected serialization: %q", out)
	}
	again, err := ParseContent(out)
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	if s, _ := again[0].Operands[0].(String); string(s) != "a(b)\\c" {
		t.Fatalf("escape round trip broken: %q", s)
	}
}
