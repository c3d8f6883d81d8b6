package ep0

import "github.com/sztsian/tomu-bootloader/pkg"

// MaxDescriptorEntries is the capacity of the descriptor table.
// The bootloader serves a handful of descriptors; the table is a fixed-size
// array scanned linearly, never a map.
const MaxDescriptorEntries = 16

// DescriptorEntry maps a GET_DESCRIPTOR wValue to pre-encoded descriptor
// bytes. Data is stored by reference (not copied).
type DescriptorEntry struct {
	Value  uint16 // wValue this entry answers (type in high byte, index in low)
	Data   []byte // Pre-encoded descriptor bytes
	Length int    // Declared reply length; may be shorter than len(Data)
}

// DescriptorTable maps (descriptor type, index) pairs to descriptor data for
// GET_DESCRIPTOR, and carries the Microsoft OS descriptor configuration for
// the vendor request.
type DescriptorTable struct {
	entries [MaxDescriptorEntries]DescriptorEntry
	count   int

	// VendorCode is the bRequest value of the Microsoft OS descriptor
	// query, as advertised in the OS string descriptor. Zero disables
	// the vendor request entirely.
	VendorCode uint8

	// CompatID is the pre-encoded extended compatible ID descriptor
	// returned for the vendor request with wIndex == 4.
	CompatID []byte
}

// Add appends an entry answering the given wValue. The declared length is
// len(data). Data is stored by reference.
func (t *DescriptorTable) Add(value uint16, data []byte) error {
	return t.AddWithLength(value, data, len(data))
}

// AddWithLength appends an entry with an explicit declared length, for
// descriptors whose reply length differs from the backing slice (such as a
// configuration descriptor that embeds trailing interface descriptors).
func (t *DescriptorTable) AddWithLength(value uint16, data []byte, length int) error {
	if t.count >= MaxDescriptorEntries {
		return pkg.ErrNoMemory
	}
	if length > len(data) {
		return pkg.ErrBufferTooSmall
	}
	t.entries[t.count] = DescriptorEntry{Value: value, Data: data, Length: length}
	t.count++
	return nil
}

// Lookup scans the table for the entry answering wValue and returns the
// reply bytes, already sized per the descriptor rules: string descriptors
// report their own embedded length byte as the reply length, all others use
// the declared table length.
func (t *DescriptorTable) Lookup(value uint16) ([]byte, bool) {
	for i := 0; i < t.count; i++ {
		e := &t.entries[i]
		if e.Value != value {
			continue
		}
		n := e.Length
		if uint8(value>>8) == DescriptorTypeString && len(e.Data) > 0 {
			n = int(e.Data[0])
			if n > len(e.Data) {
				n = len(e.Data)
			}
		}
		return e.Data[:n], true
	}
	return nil, false
}

// Len returns the number of entries in the table.
func (t *DescriptorTable) Len() int {
	return t.count
}
