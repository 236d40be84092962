package media

import (
	"math"
	"testing"
)

func TestPCM16RoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.999, -1}
	out := DecodePCM16(EncodePCM16(in))
	if len(out) != len(in) {
		t.Fatalf("length changed: %d -> %d", len(in), len(out))
	}
	for i := range in {
		if diff := math.Abs(float64(out[i] - in[i])); diff > 1.0/32768 {
			t.Fatalf("sample %d drifted: %v -> %v", i, in[i], out[i])
		}
	}
}

func TestEncodePCM16Clamps(t *testing.T) {
	out := EncodePCM16([]float32{2, -2})
	hi := int16(out[0]) | int16(out[1])<<8
	lo := int16(out[2]) | int16(out[3])<<8
	if hi != 32767 || lo != -32768 {
		t.Fatalf("clamping failed: hi=%d lo=%d", hi, lo)
	}
}

func TestDownmixStereo(t *testing.T) {
	out := DownmixStereo([]float32{1, 0, 0.5, 0.5, -1, 1})
	want := []float32{0.5, 0.5, 0}
	if len(out) != len(want) {
		t.Fatalf("length = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("sample %d = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestResampleLength(t *testing.T) {
	in := make([]float32, 22050)
	out := Resample(in, 22050, 16000)
	if len(out) != 16000 {
		t.Fatalf("resampled length = %d, want 16000", len(out))
	}

	same := Resample(in, 16000, 16000)
	if len(same) != len(in) {
		t.Fatalf("no-op resample changed length: %d", len(same))
	}
}

func TestFrameTypeCodes(t *testing.T) {
	cases := []struct {
		typ  FrameType
		code int
	}{
		{Inference(), 0},
		{SilenceFrame(), 1},
		{Custom(2), 2},
		{Custom(7), 7},
	}
	for _, c := range cases {
		if got := c.typ.Code(); got != c.code {
			t.Fatalf("%v.Code() = %d, want %d", c.typ, got, c.code)
		}
		if got := FrameTypeFromCode(c.code); got != c.typ {
			t.Fatalf("FrameTypeFromCode(%d) = %v, want %v", c.code, got, c.typ)
		}
	}
	if Custom(3).String() != "custom(3)" {
		t.Fatalf("unexpected label: %s", Custom(3).String())
	}
}
