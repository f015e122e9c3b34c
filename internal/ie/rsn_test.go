package ie

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selector(oui [3]byte, suite byte) []byte {
	return []byte{oui[0], oui[1], oui[2], suite}
}

func buildRSN(group []byte, pairwise [][]byte, akms [][]byte) []byte {
	buf := []byte{0x01, 0x00} // version
	buf = append(buf, group...)
	buf = append(buf, byte(len(pairwise)), 0x00)
	for _, p := range pairwise {
		buf = append(buf, p...)
	}
	buf = append(buf, byte(len(akms)), 0x00)
	for _, a := range akms {
		buf = append(buf, a...)
	}
	return buf
}

func TestParseRSN_FullElement(t *testing.T) {
	oui := [3]byte{0x00, 0x0f, 0xac}
	data := buildRSN(
		selector(oui, 4),
		[][]byte{selector(oui, 4)},
		[][]byte{selector(oui, 2), selector(oui, 8)},
	)

	rsn := ParseRSN(data)
	assert.Equal(t, Selectors{"00:0f:ac:4": {}}, rsn.Ciphers)
	assert.Equal(t, Selectors{"00:0f:ac:2": {}, "00:0f:ac:8": {}}, rsn.AKMs)
}

func TestParseRSN_TruncatedAfterGroupCipher(t *testing.T) {
	oui := [3]byte{0x00, 0x0f, 0xac}
	data := []byte{0x01, 0x00}
	data = append(data, selector(oui, 4)...)
	// No pairwise count, no AKM count.

	rsn := ParseRSN(data)
	assert.Equal(t, Selectors{"00:0f:ac:4": {}}, rsn.Ciphers)
	assert.Empty(t, rsn.AKMs)
}

func TestParseRSN_TruncatedMidPairwiseList(t *testing.T) {
	oui := [3]byte{0x00, 0x0f, 0xac}
	buf := []byte{0x01, 0x00}
	buf = append(buf, selector(oui, 4)...)
	buf = append(buf, 0x02, 0x00) // claims 2 pairwise ciphers
	buf = append(buf, selector(oui, 4)...)
	// second pairwise cipher missing entirely

	rsn := ParseRSN(buf)
	assert.Equal(t, Selectors{"00:0f:ac:4": {}}, rsn.Ciphers)
	assert.Empty(t, rsn.AKMs)
}

func TestParseRSN_TooShort(t *testing.T) {
	rsn := ParseRSN([]byte{0x01})
	assert.Empty(t, rsn.Ciphers)
	assert.Empty(t, rsn.AKMs)
}

func TestEncodeDecodeSorted_RoundTrip(t *testing.T) {
	set := Selectors{"00:0f:ac:8": {}, "00:0f:ac:2": {}, "00:0f:ac:4": {}}
	encoded := EncodeSorted(set)
	require.Equal(t, "00:0f:ac:2,00:0f:ac:4,00:0f:ac:8", encoded)

	decoded := DecodeSorted(encoded)
	assert.Equal(t, set, decoded)
}

func TestEncodeDecodeSorted_Empty(t *testing.T) {
	assert.Equal(t, "", EncodeSorted(Selectors{}))
	assert.Equal(t, Selectors{}, DecodeSorted(""))
}
