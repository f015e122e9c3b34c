package capture

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// frameSource is the minimal surface a Sniffer needs from a packet capture
// handle. *pcap.Handle satisfies it directly; tests substitute a fake.
type frameSource interface {
	ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error)
	Close()
}

const (
	snaplen     = 2048
	readTimeout = 5 * time.Second
)

// mgmtFilter restricts capture to the management subtypes the decoder
// cares about, at the lowest layer libpcap supports for this.
const mgmtFilter = "type mgt subtype beacon or type mgt subtype deauth or type mgt subtype disassoc"

// openLive opens iface in monitor mode and installs the management-frame
// filter, with promiscuous mode and a bounded read timeout so the read
// loop can periodically check for shutdown and flush deadlines.
func openLive(iface string) (frameSource, error) {
	handle, err := pcap.OpenLive(iface, snaplen, true, readTimeout)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", iface, err)
	}
	if err := handle.SetBPFFilter(mgmtFilter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("capture: filter on %s: %w", iface, err)
	}
	return handle, nil
}
