package s7

import (
	"regexp"
	"strconv"
	"strings"
)

// Regular expressions for the supported address grammars, grounded on the
// teacher's address parser but restructured to return a Location rather
// than a combined Location+DataType, since this package treats the two as
// independent fields of a Tag.
var (
	// DB1.DBX0.0, DB1.DBB0, DB1.DBW0, DB1.DBD0
	reDB = regexp.MustCompile(`^DB(\d+)\.DB([XBWD])(\d+)(?:\.(\d+))?$`)
	// M0.0, MB0, MW0, MD0 (and I/Q equivalents)
	reIQM = regexp.MustCompile(`^([IQM])([XBWD])?(\d+)(?:\.(\d+))?$`)
	// T0, C0
	reTC = regexp.MustCompile(`^([TC])(\d+)$`)
)

// ParseAddress parses a tag address string into a Location. It covers:
//
//	DB<n>.DBX<byte>.<bit>   bit access in a data block
//	DB<n>.DBB<byte>         byte access in a data block
//	DB<n>.DBW<byte>         word access in a data block
//	DB<n>.DBD<byte>         dword access in a data block
//	I/Q/M<byte>.<bit>       bit access (X is implicit and may be omitted)
//	I/Q/M B/W/D<byte>       byte/word/dword access
//	T<n>, C<n>              timer/counter access (always 16 bits)
func ParseAddress(addr string) (Location, error) {
	a := strings.ToUpper(strings.TrimSpace(addr))
	if a == "" {
		return Location{}, newErr(ErrMalformedAddress, "empty address")
	}

	if m := reDB.FindStringSubmatch(a); m != nil {
		return parseDBAddress(m)
	}
	if m := reIQM.FindStringSubmatch(a); m != nil {
		return parseIQMAddress(m)
	}
	if m := reTC.FindStringSubmatch(a); m != nil {
		return parseTCAddress(m)
	}
	return Location{}, newErr(ErrMalformedAddress, "invalid S7 address format: %s", addr)
}

func parseDBAddress(m []string) (Location, error) {
	dbNum, _ := strconv.Atoi(m[1])
	if dbNum < 1 {
		return Location{}, newErr(ErrMalformedAddress, "DB number must be >= 1, got DB%d", dbNum)
	}
	letter := m[2]
	offset, _ := strconv.Atoi(m[3])

	loc := Location{Area: AreaDataBlock, DBNumber: dbNum, StartByte: offset, BitOffset: -1}

	switch letter {
	case "X":
		if m[4] == "" {
			return Location{}, newErr(ErrMalformedAddress, "DBX requires a bit number, e.g. DB1.DBX0.0")
		}
		bit, _ := strconv.Atoi(m[4])
		if bit < 0 || bit > 7 {
			return Location{}, newErr(ErrMalformedAddress, "bit number must be 0-7, got %d", bit)
		}
		loc.BitOffset = bit
		loc.WidthBits = 1
	case "B":
		loc.WidthBits = 8
	case "W":
		loc.WidthBits = 16
	case "D":
		loc.WidthBits = 32
	}
	return loc, nil
}

func parseIQMAddress(m []string) (Location, error) {
	var area Area
	switch m[1] {
	case "I":
		area = AreaInput
	case "Q":
		area = AreaOutput
	case "M":
		area = AreaMarker
	}

	letter := m[2]
	if letter == "" {
		letter = "X"
	}
	offset, _ := strconv.Atoi(m[3])

	loc := Location{Area: area, StartByte: offset, BitOffset: -1}

	switch letter {
	case "X":
		if m[4] != "" {
			bit, _ := strconv.Atoi(m[4])
			if bit < 0 || bit > 7 {
				return Location{}, newErr(ErrMalformedAddress, "bit number must be 0-7, got %d", bit)
			}
			loc.BitOffset = bit
		} else {
			loc.BitOffset = 0
		}
		loc.WidthBits = 1
	case "B":
		loc.WidthBits = 8
	case "W":
		loc.WidthBits = 16
	case "D":
		loc.WidthBits = 32
	}
	return loc, nil
}

func parseTCAddress(m []string) (Location, error) {
	var area Area
	switch m[1] {
	case "T":
		area = AreaTimer
	case "C":
		area = AreaCounter
	}
	num, _ := strconv.Atoi(m[2])
	return Location{Area: area, StartByte: num, BitOffset: -1, WidthBits: 16}, nil
}

// ValidateAddress reports whether addr is a syntactically valid address.
func ValidateAddress(addr string) error {
	_, err := ParseAddress(addr)
	return err
}

// ValidateWatchdogAddress parses addr and additionally requires it to be a
// word-aligned DB address, as required for a watchdog tag.
func ValidateWatchdogAddress(addr string) (Location, error) {
	loc, err := ParseAddress(addr)
	if err != nil {
		return Location{}, err
	}
	if loc.Area != AreaDataBlock {
		return Location{}, newErr(ErrMalformedAddress, "watchdog address must be a data block word address, got %s", loc)
	}
	if loc.WidthBits != 16 {
		return Location{}, newErr(ErrMalformedAddress, "watchdog address must be a word (DBW) address, got %s", loc)
	}
	if loc.StartByte%2 != 0 {
		return Location{}, newErr(ErrMalformedAddress, "watchdog address %s is not word-aligned", loc)
	}
	return loc, nil
}
