// Package silkconfig replaces the original library's mutable process
// globals (silk_icmp_nochange, silk_clobber) with an explicit config
// value threaded through stream construction.
package silkconfig

import "os"

// ICMPSportHandler selects the read-side ICMP sport/dport repair policy.
type ICMPSportHandler uint8

const (
	// ICMPSportRepair moves ICMP type/code from sport to dport on read (default).
	ICMPSportRepair ICMPSportHandler = iota
	// ICMPSportNone disables the repair entirely.
	ICMPSportNone
)

// Config holds the runtime toggles that the original implementation kept
// as mutable global state.
type Config struct {
	// ICMPSportHandler controls whether read_record repairs legacy
	// ICMP records that encoded type/code in the source port.
	ICMPSportHandler ICMPSportHandler

	// Clobber allows writers to overwrite an existing regular file.
	Clobber bool
}

// Default returns the library's built-in defaults: ICMP repair enabled,
// clobber disabled.
func Default() Config {
	return Config{ICMPSportHandler: ICMPSportRepair, Clobber: false}
}

// FromEnviron builds a Config by reading SILK_ICMP_SPORT_HANDLER and
// SILK_CLOBBER from the process environment. This is the only place in
// the module that calls os.Getenv; everything downstream takes Config
// as an explicit value so it stays unit-testable.
func FromEnviron() Config {
	cfg := Default()

	if v := os.Getenv("SILK_ICMP_SPORT_HANDLER"); v == "none" {
		cfg.ICMPSportHandler = ICMPSportNone
	}

	if v := os.Getenv("SILK_CLOBBER"); v != "" && v != "0" {
		cfg.Clobber = true
	}

	return cfg
}
