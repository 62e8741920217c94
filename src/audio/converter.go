package audio

import (
	"encoding/binary"
	"fmt"
)

// Format describes a fixed audio encoding used by one side of a conversion
type Format struct {
	Codec      string // "mulaw" or "linear16"
	SampleRate int    // e.g. 8000, 16000, 24000
}

// Telephony carriers deliver G.711 mulaw at 8kHz
var (
	MulawTelephony = Format{Codec: "mulaw", SampleRate: 8000}
	PCM16k         = Format{Codec: "linear16", SampleRate: 16000}
	PCM24k         = Format{Codec: "linear16", SampleRate: 24000}
)

// Converter performs a fixed, statically-known conversion between two audio
// formats. Conversions are decided at wiring time, never negotiated per call.
type Converter struct {
	From Format
	To   Format
}

// NewConverter creates a converter for a fixed format pair
func NewConverter(from, to Format) *Converter {
	return &Converter{From: from, To: to}
}

// Identity reports whether the conversion is a no-op
func (c *Converter) Identity() bool {
	return c.From == c.To
}

// Convert re-encodes a chunk of audio from the source to the target format
func (c *Converter) Convert(data []byte) ([]byte, error) {
	if c.Identity() {
		return data, nil
	}

	var pcm []int16
	var err error

	switch c.From.Codec {
	case "mulaw", "ulaw", "PCMU":
		pcm = MulawToPCM(data)
	case "linear16", "pcm":
		pcm, err = BytesToPCM(data)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported input codec: %s", c.From.Codec)
	}

	if c.From.SampleRate != c.To.SampleRate {
		pcm = Resample(pcm, c.From.SampleRate, c.To.SampleRate)
	}

	switch c.To.Codec {
	case "linear16", "pcm":
		return PCMToBytes(pcm), nil
	case "mulaw", "ulaw", "PCMU":
		return PCMToMulaw(pcm), nil
	default:
		return nil, fmt.Errorf("unsupported output codec: %s", c.To.Codec)
	}
}

// MulawToPCM converts mulaw audio to linear PCM int16
func MulawToPCM(mulaw []byte) []int16 {
	pcm := make([]int16, len(mulaw))
	for i, val := range mulaw {
		pcm[i] = mulawDecodeTable[val]
	}
	return pcm
}

// PCMToMulaw converts linear PCM int16 to mulaw
func PCMToMulaw(pcm []int16) []byte {
	mulaw := make([]byte, len(pcm))
	for i, val := range pcm {
		mulaw[i] = mulawEncode(val)
	}
	return mulaw
}

// BytesToPCM converts byte array to int16 PCM (little-endian)
func BytesToPCM(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("invalid PCM data length: %d", len(data))
	}
	pcm := make([]int16, len(data)/2)
	for i := 0; i < len(pcm); i++ {
		pcm[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return pcm, nil
}

// PCMToBytes converts int16 PCM to byte array (little-endian)
func PCMToBytes(pcm []int16) []byte {
	data := make([]byte, len(pcm)*2)
	for i, val := range pcm {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(val))
	}
	return data
}

// Resample performs simple linear interpolation resampling
func Resample(input []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate {
		return input
	}

	ratio := float64(inputRate) / float64(outputRate)
	outputLen := int(float64(len(input)) / ratio)
	output := make([]int16, outputLen)

	for i := 0; i < outputLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		if srcIdx+1 < len(input) {
			sample1 := float64(input[srcIdx])
			sample2 := float64(input[srcIdx+1])
			output[i] = int16(sample1 + (sample2-sample1)*frac)
		} else if srcIdx < len(input) {
			output[i] = input[srcIdx]
		}
	}

	return output
}

// Mulaw encoding/decoding tables and functions
const (
	mulawBias = 0x84
	mulawClip = 32635
)

var mulawDecodeTable = [256]int16{
	-32124, -31100, -30076, -29052, -28028, -27004, -25980, -24956,
	-23932, -22908, -21884, -20860, -19836, -18812, -17788, -16764,
	-15996, -15484, -14972, -14460, -13948, -13436, -12924, -12412,
	-11900, -11388, -10876, -10364, -9852, -9340, -8828, -8316,
	-7932, -7676, -7420, -7164, -6908, -6652, -6396, -6140,
	-5884, -5628, -5372, -5116, -4860, -4604, -4348, -4092,
	-3900, -3772, -3644, -3516, -3388, -3260, -3132, -3004,
	-2876, -2748, -2620, -2492, -2364, -2236, -2108, -1980,
	-1884, -1820, -1756, -1692, -1628, -1564, -1500, -1436,
	-1372, -1308, -1244, -1180, -1116, -1052, -988, -924,
	-876, -844, -812, -780, -748, -716, -684, -652,
	-620, -588, -556, -524, -492, -460, -428, -396,
	-372, -356, -340, -324, -308, -292, -276, -260,
	-244, -228, -212, -196, -180, -164, -148, -132,
	-120, -112, -104, -96, -88, -80, -72, -64,
	-56, -48, -40, -32, -24, -16, -8, 0,
	32124, 31100, 30076, 29052, 28028, 27004, 25980, 24956,
	23932, 22908, 21884, 20860, 19836, 18812, 17788, 16764,
	15996, 15484, 14972, 14460, 13948, 13436, 12924, 12412,
	11900, 11388, 10876, 10364, 9852, 9340, 8828, 8316,
	7932, 7676, 7420, 7164, 6908, 6652, 6396, 6140,
	5884, 5628, 5372, 5116, 4860, 4604, 4348, 4092,
	3900, 3772, 3644, 3516, 3388, 3260, 3132, 3004,
	2876, 2748, 2620, 2492, 2364, 2236, 2108, 1980,
	1884, 1820, 1756, 1692, 1628, 1564, 1500, 1436,
	1372, 1308, 1244, 1180, 1116, 1052, 988, 924,
	876, 844, 812, 780, 748, 716, 684, 652,
	620, 588, 556, 524, 492, 460, 428, 396,
	372, 356, 340, 324, 308, 292, 276, 260,
	244, 228, 212, 196, 180, 164, 148, 132,
	120, 112, 104, 96, 88, 80, 72, 64,
	56, 48, 40, 32, 24, 16, 8, 0,
}

func mulawEncode(pcm int16) byte {
	// Widen before negating so -32768 keeps its magnitude
	sample := int32(pcm)
	sign := uint8(0)
	if sample < 0 {
		sign = 0x80
		sample = -sample
	}

	// Clip the magnitude
	if sample > mulawClip {
		sample = mulawClip
	}

	// Add bias
	biased := sample + mulawBias

	// Find the G.711 segment of the biased magnitude
	var exponent uint8
	switch {
	case biased >= 0x4000:
		exponent = 7
	case biased >= 0x2000:
		exponent = 6
	case biased >= 0x1000:
		exponent = 5
	case biased >= 0x800:
		exponent = 4
	case biased >= 0x400:
		exponent = 3
	case biased >= 0x200:
		exponent = 2
	case biased >= 0x100:
		exponent = 1
	default:
		exponent = 0
	}
	mantissa := uint8((biased >> (exponent + 3)) & 0x0F)

	// Combine sign, exponent, and mantissa; invert all bits for mulaw
	return ^(sign | (exponent << 4) | mantissa)
}
