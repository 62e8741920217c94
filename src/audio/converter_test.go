package audio

import "testing"

func TestMulawRoundTrip(t *testing.T) {
	// Mulaw is lossy; a decode/encode/decode cycle must be stable and the
	// first round must stay close to the source
	samples := []int16{0, 100, -100, 1000, -1000, 8000, -8000, 30000, -30000}

	encoded := PCMToMulaw(samples)
	decoded := MulawToPCM(encoded)
	if len(decoded) != len(samples) {
		t.Fatalf("len(decoded) = %d, want %d", len(decoded), len(samples))
	}
	for i, want := range samples {
		got := decoded[i]
		diff := int(got) - int(want)
		if diff < 0 {
			diff = -diff
		}
		// Quantization error grows with magnitude, roughly 3% of full scale
		if diff > 1100 {
			t.Fatalf("sample %d: decoded %d from %d, error %d too large", i, got, want, diff)
		}
	}

	// Second round through the same codec must be exact
	again := MulawToPCM(PCMToMulaw(decoded))
	for i := range decoded {
		if again[i] != decoded[i] {
			t.Fatalf("sample %d: re-encode unstable, %d then %d", i, decoded[i], again[i])
		}
	}
}

func TestPCMBytesRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 12345}

	data := PCMToBytes(samples)
	if len(data) != len(samples)*2 {
		t.Fatalf("len(data) = %d, want %d", len(data), len(samples)*2)
	}
	back, err := BytesToPCM(data)
	if err != nil {
		t.Fatalf("BytesToPCM() error = %v", err)
	}
	for i, want := range samples {
		if back[i] != want {
			t.Fatalf("sample %d = %d, want %d", i, back[i], want)
		}
	}
}

func TestBytesToPCMRejectsOddLength(t *testing.T) {
	if _, err := BytesToPCM([]byte{1, 2, 3}); err == nil {
		t.Fatal("odd-length PCM data did not error")
	}
}

func TestResampleScalesLength(t *testing.T) {
	input := make([]int16, 160) // 20ms at 8kHz
	for i := range input {
		input[i] = int16(i * 100)
	}

	up := Resample(input, 8000, 16000)
	if len(up) != 320 {
		t.Fatalf("len(8k->16k) = %d, want 320", len(up))
	}
	down := Resample(input, 8000, 4000)
	if len(down) != 80 {
		t.Fatalf("len(8k->4k) = %d, want 80", len(down))
	}

	// Linear interpolation keeps a monotonic ramp monotonic
	for i := 1; i < len(up)-1; i++ {
		if up[i] < up[i-1] {
			t.Fatalf("upsampled ramp not monotonic at %d: %d < %d", i, up[i], up[i-1])
		}
	}
}

func TestResampleSameRateIsNoOp(t *testing.T) {
	input := []int16{1, 2, 3}
	out := Resample(input, 8000, 8000)
	if len(out) != 3 || out[0] != 1 || out[2] != 3 {
		t.Fatalf("out = %v, want input unchanged", out)
	}
}

func TestConverterIdentity(t *testing.T) {
	c := NewConverter(MulawTelephony, MulawTelephony)
	if !c.Identity() {
		t.Fatal("Identity() = false for matching formats")
	}
	data := []byte{0x7f, 0x80, 0x00}
	out, err := c.Convert(data)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if len(out) != 3 || out[0] != 0x7f {
		t.Fatalf("out = %v, want input unchanged", out)
	}
}

func TestConverterMulawToPCM16k(t *testing.T) {
	c := NewConverter(MulawTelephony, PCM16k)
	if c.Identity() {
		t.Fatal("Identity() = true for distinct formats")
	}

	in := make([]byte, 160) // 20ms of 8kHz mulaw
	for i := range in {
		in[i] = 0xFF // mulaw silence
	}
	out, err := c.Convert(in)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	// 160 samples upsampled to 320, 2 bytes each
	if len(out) != 640 {
		t.Fatalf("len(out) = %d, want 640", len(out))
	}
}

func TestConverterPCM24kToMulaw(t *testing.T) {
	c := NewConverter(PCM24k, MulawTelephony)

	samples := make([]int16, 480) // 20ms at 24kHz
	in := PCMToBytes(samples)
	out, err := c.Convert(in)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	// Downsampled 3:1 to 160 mulaw bytes
	if len(out) != 160 {
		t.Fatalf("len(out) = %d, want 160", len(out))
	}
}

func TestConverterRejectsUnknownCodec(t *testing.T) {
	c := NewConverter(Format{Codec: "opus", SampleRate: 48000}, PCM16k)
	if _, err := c.Convert([]byte{1, 2}); err == nil {
		t.Fatal("unknown input codec did not error")
	}
}
