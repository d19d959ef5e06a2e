package core

import "testing"

func TestEnvelopeRoundTrip(t *testing.T) {
	type payload struct {
		Name   string
		Height uint64
	}
	in := payload{Name: "wonderland", Height: 42}

	data := EncodeEnvelope(in)

	var out payload
	if err := DecodeEnvelope(data, &out); err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if out != in {
		t.Fatalf("DecodeEnvelope(EncodeEnvelope(in)) = %+v, want %+v", out, in)
	}
}

func TestDecodeEnvelopeRejectsWrongVersion(t *testing.T) {
	data := EncodeWire(Envelope{Version: WireVersion + 1, Payload: EncodeWire("x")})
	var out string
	err := DecodeEnvelope(data, &out)
	if err == nil {
		t.Fatalf("expected an error decoding an envelope with an unsupported version")
	}
	if kind, ok := KindOf(err); !ok || kind != KindType {
		t.Fatalf("expected KindType, got %v (ok=%v)", kind, ok)
	}
}

func TestDecodeWireRejectsMalformedJSON(t *testing.T) {
	var out int
	err := DecodeWire([]byte("not json"), &out)
	if err == nil {
		t.Fatalf("expected an error decoding malformed JSON")
	}
	if kind, ok := KindOf(err); !ok || kind != KindType {
		t.Fatalf("expected KindType, got %v (ok=%v)", kind, ok)
	}
}
