// Package store persists the events, alerts and operational logs that
// the capture and detection stages produce.
package store

import "time"

// Event is one observed 802.11 management frame.
type Event struct {
	ID   int64     `gorm:"primaryKey;autoIncrement"`
	Ts   time.Time `gorm:"index:idx_event_ts;index:idx_event_type_ts,priority:2"`
	Type string    `gorm:"index:idx_event_type_ts,priority:1"` // mgmt.beacon | mgmt.deauth | mgmt.disassoc

	Band string // "2.4" | "5" | "6" | "?"
	Chan int

	Src   *string
	Dst   *string
	BSSID *string

	SSID       *string `gorm:"column:ssid"`
	RSNAKMs    *string `gorm:"column:rsn_akms"`
	RSNCiphers *string `gorm:"column:rsn_ciphers"`

	RSSI *int
}

func (Event) TableName() string { return "event" }

// Severity levels an Alert can carry.
const (
	SeverityInfo     = "info"
	SeverityWarn     = "warn"
	SeverityCritical = "critical"
)

// Alert kinds produced by the detectors.
const (
	KindDeauthFlood = "deauth_flood"
	KindRogueAP     = "rogue_ap"
	KindTest        = "test"
)

// Alert is a detector finding. Alerts are append-only; acknowledgement
// mutates only the Acknowledged flag.
type Alert struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Ts           time.Time `gorm:"index"`
	Severity     string
	Kind         string
	Summary      string
	Acknowledged bool
}

func (Alert) TableName() string { return "alert" }

// Log is an operational trace line produced by capture, detection or any
// other part of the sensor.
type Log struct {
	ID      int64     `gorm:"primaryKey;autoIncrement"`
	Ts      time.Time `gorm:"index"`
	Source  string
	Level   string
	Message string
}

func (Log) TableName() string { return "log" }
