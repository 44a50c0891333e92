package audioio

import "testing"

func TestResample(t *testing.T) {
	t.Run("same rate is identity", func(t *testing.T) {
		in := []int16{1, 2, 3, 4}
		out := Resample(in, 16000, 16000)
		if len(out) != len(in) {
			t.Fatalf("expected %d samples, got %d", len(in), len(out))
		}
	})

	t.Run("downsample halves length", func(t *testing.T) {
		in := make([]int16, 480)
		out := Resample(in, 48000, 24000)
		if len(out) != 240 {
			t.Errorf("expected 240 samples, got %d", len(out))
		}
	})

	t.Run("upsample triples length", func(t *testing.T) {
		in := make([]int16, 160)
		out := Resample(in, 16000, 48000)
		if len(out) != 480 {
			t.Errorf("expected 480 samples, got %d", len(out))
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if out := Resample(nil, 48000, 16000); len(out) != 0 {
			t.Errorf("expected empty output, got %d samples", len(out))
		}
	})
}

func TestByteConversion(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	round := BytesToSamples(SamplesToBytes(samples))

	if len(round) != len(samples) {
		t.Fatalf("length mismatch: %d vs %d", len(round), len(samples))
	}
	for i := range samples {
		if round[i] != samples[i] {
			t.Errorf("sample %d: expected %d, got %d", i, samples[i], round[i])
		}
	}
}

func TestRMS(t *testing.T) {
	t.Run("silence is zero", func(t *testing.T) {
		if rms := RMS(make([]int16, 320)); rms != 0 {
			t.Errorf("expected 0, got %f", rms)
		}
	})

	t.Run("full scale approaches one", func(t *testing.T) {
		full := make([]int16, 320)
		for i := range full {
			full[i] = 32767
		}
		if rms := RMS(full); rms < 0.99 {
			t.Errorf("expected ~1.0, got %f", rms)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if rms := RMS(nil); rms != 0 {
			t.Errorf("expected 0, got %f", rms)
		}
	})
}

func TestStereoToMono(t *testing.T) {
	stereo := []int16{100, 200, -100, -200}
	mono := StereoToMono(stereo)

	if len(mono) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(mono))
	}
	if mono[0] != 150 || mono[1] != -150 {
		t.Errorf("unexpected averages: %v", mono)
	}
}
