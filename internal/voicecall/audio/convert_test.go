package audio

import "testing"

func TestBase64RoundTrip(t *testing.T) {
	payload := []byte{0x00, 0x7f, 0xff, 0x10}
	encoded := BytesToBase64(payload)
	decoded, err := Base64ToBytes(encoded)
	if err != nil {
		t.Fatalf("Base64ToBytes() error = %v", err)
	}
	if len(decoded) != len(payload) {
		t.Fatalf("decoded length = %d, want %d", len(decoded), len(payload))
	}
	for i, b := range payload {
		if decoded[i] != b {
			t.Errorf("decoded[%d] = %#x, want %#x", i, decoded[i], b)
		}
	}
}

func TestMuLawConversionSizes(t *testing.T) {
	mulaw := make([]byte, 160) // one 20ms frame at 8kHz
	pcm := ConvertMuLawToPCM16kHz(mulaw)
	// 160 mulaw samples -> 320 PCM16 samples after 2x upsampling -> 640 bytes
	if len(pcm) != 640 {
		t.Errorf("ConvertMuLawToPCM16kHz() length = %d, want 640", len(pcm))
	}
}

func TestMuLawSilenceRoundTrip(t *testing.T) {
	// mu-law 0xFF encodes a near-zero sample; conversion should stay near zero.
	mulaw := []byte{0xff, 0xff, 0xff, 0xff}
	pcm := ConvertMuLawToPCM16kHz(mulaw)
	for i := 0; i < len(pcm)-1; i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		if sample > 64 || sample < -64 {
			t.Fatalf("silence sample %d = %d, want near zero", i/2, sample)
		}
	}
}
