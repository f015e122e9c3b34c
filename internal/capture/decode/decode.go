// Package decode turns a radiotap-prefixed 802.11 frame into a store.Event,
// or reports that the frame is not one of the management subtypes PiGuard
// cares about.
package decode

import (
	"net"
	"strings"
	"unicode/utf8"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/mardigiorgio/piguard/internal/capture/channelmap"
	"github.com/mardigiorgio/piguard/internal/ie"
	"github.com/mardigiorgio/piguard/internal/store"
)

const (
	ieIDSSID = 0
	ieIDDS   = 3
	ieIDRSN  = 48
)

// Frame decodes a single captured packet. ok is false for anything that is
// not a beacon, deauth or disassoc management frame.
func Frame(packet gopacket.Packet) (store.Event, bool) {
	dot11Layer := packet.Layer(layers.LayerTypeDot11)
	if dot11Layer == nil {
		return store.Event{}, false
	}
	dot11, ok := dot11Layer.(*layers.Dot11)
	if !ok {
		return store.Event{}, false
	}

	var ev store.Event
	switch dot11.Type {
	case layers.Dot11TypeMgmtBeacon:
		ev.Type = "mgmt.beacon"
	case layers.Dot11TypeMgmtDeauthentication:
		ev.Type = "mgmt.deauth"
	case layers.Dot11TypeMgmtDisassociation:
		ev.Type = "mgmt.disassoc"
	default:
		return store.Event{}, false
	}

	ev.Src = macString(dot11.Address2)
	ev.Dst = macString(dot11.Address1)
	ev.BSSID = macString(dot11.Address3)

	band, chanNum := deriveChannel(packet)
	ev.Band = band
	ev.Chan = chanNum

	if rssi, ok := radiotapRSSI(packet); ok {
		ev.RSSI = &rssi
	}

	if ev.Type == "mgmt.beacon" {
		ieData := beaconIEs(packet)
		if ssid, found := findIE(ieData, ieIDSSID); found {
			s := sanitizeUTF8(ssid)
			ev.SSID = &s
		}
		if rsnData, found := findIE(ieData, ieIDRSN); found {
			rsn := ie.ParseRSN(rsnData)
			akms := ie.EncodeSorted(rsn.AKMs)
			ciphers := ie.EncodeSorted(rsn.Ciphers)
			ev.RSNAKMs = &akms
			ev.RSNCiphers = &ciphers
		}
	}

	return ev, true
}

func macString(addr net.HardwareAddr) *string {
	if len(addr) == 0 {
		return nil
	}
	s := strings.ToLower(addr.String())
	return &s
}

func deriveChannel(packet gopacket.Packet) (band string, chanNum int) {
	if beaconIEData := beaconIEs(packet); len(beaconIEData) > 0 {
		if dsData, found := findIE(beaconIEData, ieIDDS); found && len(dsData) >= 1 {
			return channelmap.FromDSChannel(int(dsData[0]))
		}
	}

	if radiotapLayer := packet.Layer(layers.LayerTypeRadioTap); radiotapLayer != nil {
		if rt, ok := radiotapLayer.(*layers.RadioTap); ok {
			return channelmap.FromFrequency(int(rt.ChannelFrequency))
		}
	}

	return channelmap.BandUnknown, 0
}

func radiotapRSSI(packet gopacket.Packet) (int, bool) {
	radiotapLayer := packet.Layer(layers.LayerTypeRadioTap)
	if radiotapLayer == nil {
		return 0, false
	}
	rt, ok := radiotapLayer.(*layers.RadioTap)
	if !ok {
		return 0, false
	}
	if rt.Present.DBMAntennaSignal() {
		return int(rt.DBMAntennaSignal), true
	}
	return 0, false
}

// beaconIEs returns the information-element payload following a beacon's
// fixed fields, falling back to reassembling individually-decoded IE
// layers when gopacket split them out instead of leaving them as payload.
func beaconIEs(packet gopacket.Packet) []byte {
	if beacon := packet.Layer(layers.LayerTypeDot11MgmtBeacon); beacon != nil {
		if payload := beacon.LayerPayload(); len(payload) > 0 {
			return payload
		}
	}

	var ieData []byte
	for _, layer := range packet.Layers() {
		if layer.LayerType() != layers.LayerTypeDot11InformationElement {
			continue
		}
		if elem, ok := layer.(*layers.Dot11InformationElement); ok {
			ieData = append(ieData, byte(elem.ID), byte(len(elem.Info)))
			ieData = append(ieData, elem.Info...)
		}
	}
	return ieData
}

// findIE walks a raw IE blob looking for the first element with the given
// id, stopping (and returning what it has) at the first malformed element.
func findIE(data []byte, id int) ([]byte, bool) {
	offset := 0
	for offset+2 <= len(data) {
		elemID := int(data[offset])
		length := int(data[offset+1])
		offset += 2
		if offset+length > len(data) {
			return nil, false
		}
		if elemID == id {
			return data[offset : offset+length], true
		}
		offset += length
	}
	return nil, false
}

// sanitizeUTF8 replaces undecodable bytes with the Unicode replacement
// character instead of erroring.
func sanitizeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			sb.WriteRune(utf8.RuneError)
			i++
			continue
		}
		sb.WriteRune(r)
		i += size
	}
	return sb.String()
}
