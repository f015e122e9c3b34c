// Package channelmap converts between 802.11 channel numbers and the
// frequencies radios and radiotap headers speak.
package channelmap

// Band tags used throughout the event/config model.
const (
	Band24      = "2.4"
	Band5       = "5"
	Band6       = "6"
	BandUnknown = "?"
)

// FromFrequency derives (band, channel) from a frequency in MHz. Frequencies
// outside all three known ranges yield (BandUnknown, 0).
func FromFrequency(freqMHz int) (band string, chan_ int) {
	switch {
	case freqMHz >= 2412 && freqMHz <= 2484:
		return Band24, round(freqMHz-2407, 5)
	case freqMHz >= 5000 && freqMHz <= 5900:
		return Band5, round(freqMHz-5000, 5)
	case freqMHz >= 5955 && freqMHz <= 7115:
		return Band6, round(freqMHz-5955, 5) + 1
	default:
		return BandUnknown, 0
	}
}

// FromDSChannel infers (band, channel) from a DS Parameter Set byte.
// DS-derived channels in [1,14] are always 2.4 GHz (never interpreted as
// 6 GHz channels of the same number). Channel numbers above 14 are
// otherwise ambiguous between 5 GHz and 6 GHz
// (both bands can produce the same index); this implementation resolves
// that remaining ambiguity by treating the conventional 5 GHz channel
// range (36-177) as 5 GHz and anything higher as 6 GHz.
func FromDSChannel(ch int) (band string, chan_ int) {
	switch {
	case ch >= 1 && ch <= 14:
		return Band24, ch
	case ch >= 36 && ch <= 177:
		return Band5, ch
	case ch > 177:
		return Band6, ch
	default:
		return BandUnknown, ch
	}
}

// ToFrequency maps a (band, channel) pair back to a center frequency in
// MHz, inverting FromFrequency. The one exception is 2.4 GHz channel 14,
// which maps to 2484 MHz; FromFrequency reads 2484 MHz back as channel 15.
// Returns 0 if the band is unrecognized.
func ToFrequency(band string, ch int) int {
	switch band {
	case Band24:
		if ch == 14 {
			return 2484
		}
		return 2407 + ch*5
	case Band5:
		return 5000 + ch*5
	case Band6:
		return 5955 + (ch-1)*5
	default:
		return 0
	}
}

func round(num, div int) int {
	// Integer round-to-nearest for the (f-offset)/5 channel derivation.
	if div == 0 {
		return 0
	}
	half := div / 2
	if num >= 0 {
		return (num + half) / div
	}
	return -((-num + half) / div)
}
