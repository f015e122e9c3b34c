package replay

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mardigiorgio/piguard/internal/store"
)

func minimalRadiotap() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[2:4], 8)
	return buf
}

func dot11Deauth(src, dst, bssid [6]byte) []byte {
	buf := make([]byte, 24)
	buf[0] = 12 << 4 // mgmt, subtype deauth
	copy(buf[4:10], dst[:])
	copy(buf[10:16], src[:])
	copy(buf[16:22], bssid[:])
	return buf
}

// writePCAP writes raw radiotap-prefixed frames to a pcap file at path,
// mirroring how a capture tool like tcpdump would record them.
func writePCAP(t *testing.T, path string, frames [][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(2048, layers.LinkTypeIEEE80211Radio))

	for _, frame := range frames {
		err := w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     time.Now(),
			CaptureLength: len(frame),
			Length:        len(frame),
		}, frame)
		require.NoError(t, err)
	}
}

func TestDecodeFromPCAP_EmitsOnlyInterestingFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.pcap")

	src := [6]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	dst := [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x02}
	bssid := [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01}

	deauth := append(minimalRadiotap(), dot11Deauth(src, dst, bssid)...)

	// A bare data frame (type=data, subtype 0): not management, so the
	// decoder should skip it without error.
	notInteresting := append(minimalRadiotap(), make([]byte, 24)...)
	notInteresting[8] = 0x08

	writePCAP(t, path, [][]byte{deauth, notInteresting})

	var events []store.Event
	err := DecodeFromPCAP(path, func(ev store.Event) { events = append(events, ev) })
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "mgmt.deauth", events[0].Type)
	require.NotNil(t, events[0].Src)
	assert.Equal(t, "de:ad:be:ef:00:01", *events[0].Src)
}

func TestDecodeFromPCAP_MissingFile(t *testing.T) {
	err := DecodeFromPCAP("/nonexistent/path.pcap", func(store.Event) {})
	require.Error(t, err)
}
