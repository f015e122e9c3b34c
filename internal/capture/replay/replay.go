// Package replay feeds frames recorded to a pcap file through the same
// decode path a live capture uses, for offline testing without a radio.
package replay

import (
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"

	"github.com/mardigiorgio/piguard/internal/capture/decode"
	"github.com/mardigiorgio/piguard/internal/store"
)

// DecodeFromPCAP reads every packet in path and invokes emit for each one
// decode.Frame recognizes as an interesting management frame.
func DecodeFromPCAP(path string, emit func(store.Event)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("replay: open %s: %w", path, err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return fmt.Errorf("replay: read header of %s: %w", path, err)
	}

	src := gopacket.NewPacketSource(r, r.LinkType())
	for packet := range src.Packets() {
		ev, ok := decode.Frame(packet)
		if !ok {
			continue
		}
		emit(ev)
	}
	return nil
}
