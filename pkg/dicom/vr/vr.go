// Package vr defines DICOM Value Representations and the byte-level
// rules (padding, length-field width, fixed sizes) the codec needs to
// decode and encode them.
package vr

// VR is a DICOM Value Representation, the two-letter code carried
// alongside a tag that tells the codec how to interpret an element's
// bytes. The zero value "" is the pseudo-VR used for item and
// delimiter tags (FFFE,E000 / FFFE,E00D / FFFE,E0DD), which carry no
// VR field on the wire at all.
type VR string

// Standard DICOM Value Representations.
const (
	AE VR = "AE" // Application Entity
	AS VR = "AS" // Age String
	AT VR = "AT" // Attribute Tag
	CS VR = "CS" // Code String
	DA VR = "DA" // Date
	DS VR = "DS" // Decimal String
	DT VR = "DT" // DateTime
	FL VR = "FL" // Floating Point Single
	FD VR = "FD" // Floating Point Double
	IS VR = "IS" // Integer String
	LO VR = "LO" // Long String
	LT VR = "LT" // Long Text
	OB VR = "OB" // Other Byte
	OD VR = "OD" // Other Double
	OF VR = "OF" // Other Float
	OL VR = "OL" // Other Long
	OW VR = "OW" // Other Word
	PN VR = "PN" // Person Name
	SH VR = "SH" // Short String
	SL VR = "SL" // Signed Long
	SQ VR = "SQ" // Sequence of Items
	SS VR = "SS" // Signed Short
	ST VR = "ST" // Short Text
	TM VR = "TM" // Time
	UC VR = "UC" // Unlimited Characters
	UI VR = "UI" // Unique Identifier
	UL VR = "UL" // Unsigned Long
	UN VR = "UN" // Unknown
	UR VR = "UR" // Universal Resource Identifier
	US VR = "US" // Unsigned Short
	UT VR = "UT" // Unlimited Text

	// Item is the pseudo-VR for FFFE,E000 / FFFE,E00D / FFFE,E0DD.
	// These tags carry a bare 4-byte length and no VR or reserved
	// field, under every transfer syntax.
	Item VR = ""
)

// longForm is the set of VRs that use the 4-byte-length-plus-2-reserved-
// bytes encoding under Explicit VR, per PS3.5 Table 7.1-1.
var longForm = map[VR]bool{
	OB: true, OD: true, OF: true, OL: true, OW: true,
	SQ: true, UC: true, UN: true, UR: true, UT: true,
}

// IsExplicitLength reports whether v uses the short 2-byte length
// field under Explicit VR. The long-form VRs use a 4-byte length
// field preceded by 2 reserved bytes instead.
func (v VR) IsExplicitLength() bool {
	return !longForm[v]
}

// textual is the set of VRs whose value is a character string,
// potentially multi-valued via a backslash separator, and padded to
// even length with a trailing pad byte rather than a binary fill.
var textual = map[VR]bool{
	AE: true, AS: true, CS: true, DA: true, DS: true, DT: true,
	IS: true, LO: true, LT: true, PN: true, SH: true, ST: true,
	TM: true, UC: true, UI: true, UR: true, UT: true,
}

// IsTextual reports whether v's value is character data.
func (v VR) IsTextual() bool {
	return textual[v]
}

// numericFixed is the set of VRs with a fixed per-element binary
// width, decoded as a (possibly repeated) scalar rather than split on
// a delimiter byte.
var numericFixed = map[VR]bool{
	UL: true, SL: true, US: true, SS: true, FL: true, FD: true,
}

// IsNumericFixed reports whether v is a fixed-width binary numeric VR.
func (v VR) IsNumericFixed() bool {
	return numericFixed[v]
}

// IsLongOpaque reports whether v is one of the long-form, content-
// opaque-to-the-codec VRs (OB, OW, OF, OL, UN) whose bytes are carried
// through uninterpreted. SQ is related (also long-form) but is
// structural, not opaque — it has no value bytes of its own.
func (v VR) IsLongOpaque() bool {
	switch v {
	case OB, OW, OF, OL, UN:
		return true
	default:
		return false
	}
}

// IsSequence reports whether v introduces a nested item hierarchy.
func (v VR) IsSequence() bool {
	return v == SQ
}

// IsItem reports whether v is the pseudo-VR used by item/delimiter tags.
func (v VR) IsItem() bool {
	return v == Item
}

// ValueSize returns the fixed per-value width in bytes for a
// fixed-width numeric VR (including AT, which is two uint16s), or 0
// for every variable-width VR.
func (v VR) ValueSize() int {
	switch v {
	case AT:
		return 4
	case FL, SL, UL:
		return 4
	case FD:
		return 8
	case SS, US:
		return 2
	default:
		return 0
	}
}

// PadByte returns the byte used to pad this VR's value to an even
// length. UI is NUL-padded (PS3.5 §6.2); every other textual VR is
// space-padded. Non-textual VRs are NUL-padded when they need padding
// at all (OB/OW/UN opaque streams).
func (v VR) PadByte() byte {
	if v == UI {
		return 0x00
	}
	if v.IsTextual() {
		return 0x20
	}
	return 0x00
}

// String renders the canonical two-letter code, or "()" for the item
// pseudo-VR, matching how item/delimiter tags are conventionally
// displayed since they carry no real VR on the wire.
func (v VR) String() string {
	if v == Item {
		return "()"
	}
	return string(v)
}
