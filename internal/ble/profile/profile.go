// Package profile describes the GATT layout of each supported peripheral
// family and maps advertised names onto those layouts.
package profile

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role is the part a discovered characteristic plays for the active profile.
type Role int

const (
	// RoleUnclassified marks a characteristic the profile does not use.
	RoleUnclassified Role = iota
	// RoleWrite marks the characteristic outgoing payloads are written to.
	RoleWrite
	// RoleReadNotify marks the characteristic subscribed to for incoming data.
	RoleReadNotify
)

func (r Role) String() string {
	switch r {
	case RoleWrite:
		return "write"
	case RoleReadNotify:
		return "read/notify"
	default:
		return "unclassified"
	}
}

// bluetoothBase is the Bluetooth SIG base UUID that 16- and 32-bit UUIDs expand into.
const bluetoothBase = "-0000-1000-8000-00805f9b34fb"

// Profile is the GATT layout of one peripheral family. Profiles are values and
// are never mutated once a session has picked one.
type Profile struct {
	Family        string
	ServiceUUID   string
	WriteCharUUID string
	ReadCharUUID  string   // empty when the family has no read/notify role
	OtherChars    []string // known characteristics left unclassified
}

// HasRead reports whether the profile declares a read/notify characteristic.
func (p Profile) HasRead() bool {
	return p.ReadCharUUID != ""
}

// Classify returns the role of a characteristic discovered under serviceUUID.
// Characteristics outside the profile's service are always unclassified.
func (p Profile) Classify(serviceUUID, charUUID string) Role {
	if !EqualUUID(serviceUUID, p.ServiceUUID) {
		return RoleUnclassified
	}
	switch {
	case EqualUUID(charUUID, p.WriteCharUUID):
		return RoleWrite
	case p.HasRead() && EqualUUID(charUUID, p.ReadCharUUID):
		return RoleReadNotify
	default:
		return RoleUnclassified
	}
}

// Validate checks that every UUID in the profile parses.
func (p Profile) Validate() error {
	if p.Family == "" {
		return fmt.Errorf("profile: family must not be empty")
	}
	check := map[string]string{
		"service": p.ServiceUUID,
		"write":   p.WriteCharUUID,
	}
	if p.HasRead() {
		check["read"] = p.ReadCharUUID
	}
	for field, value := range check {
		if _, err := parseUUID(value); err != nil {
			return fmt.Errorf("profile %s: %s uuid %q: %w", p.Family, field, value, err)
		}
	}
	return nil
}

// NormalizeUUID returns the canonical lowercase 128-bit form of a BLE UUID.
// 16- and 32-bit short forms are expanded against the Bluetooth base UUID.
// Strings that do not parse are returned lowercased so they still compare
// case-insensitively.
func NormalizeUUID(s string) string {
	u, err := parseUUID(s)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return u.String()
}

// ValidUUID reports whether s parses as a 16-, 32- or 128-bit BLE UUID.
func ValidUUID(s string) bool {
	_, err := parseUUID(s)
	return err == nil
}

// EqualUUID compares two BLE UUID strings case-insensitively.
func EqualUUID(a, b string) bool {
	return NormalizeUUID(a) == NormalizeUUID(b)
}

func parseUUID(s string) (uuid.UUID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	switch len(s) {
	case 4:
		s = "0000" + s + bluetoothBase
	case 8:
		s = s + bluetoothBase
	}
	return uuid.Parse(s)
}
