package fat32

// Long filename handling. Names are carried as raw bytes, one byte per UCS-2
// code unit, which keeps arbitrary byte names round-trippable through the
// directory entries.

// maxNameLength is the longest name a long filename sequence can carry.
const maxNameLength = 255

// lfnUnitsPerEntry is the number of UCS-2 code units per long filename entry,
// split over the three fixed fields (5+6+2).
const lfnUnitsPerEntry = 13

// lfnAccumulator collects the code units of a long filename sequence while
// scanning directory entries. The entries of a sequence may appear in any
// order; each one knows its own position.
type lfnAccumulator struct {
	active bool
	length int
	buffer [maxNameLength + 1]byte
}

// reset drops any partially collected name, for example when the sequence is
// interrupted by an unused slot.
func (a *lfnAccumulator) reset() {
	a.active = false
	a.length = 0
}

// add places the 13 code units of one long filename entry at the position
// given by its sequence number. Units after the first 0x0000 or 0xFFFF are
// padding and end the entry. The name length only grows by units actually
// stored, so an entry of pure padding cannot inflate the name.
func (a *lfnAccumulator) add(entry *LongFilenameEntry) {
	a.active = true

	offset := (int(entry.Sequence&^lfnLastSequence) - 1) * lfnUnitsPerEntry
	if offset < 0 || offset >= len(a.buffer) {
		return
	}

	for _, unit := range entry.units() {
		if unit == 0x0000 || unit == 0xFFFF {
			break
		}

		if offset >= len(a.buffer) {
			break
		}

		a.buffer[offset] = byte(unit)
		offset++

		if offset > a.length {
			a.length = offset
		}
	}
}

// take returns the collected name and resets the accumulator.
func (a *lfnAccumulator) take() string {
	name := string(a.buffer[:a.length])
	a.reset()
	return name
}

// lfnLastSequence flags the entry with the highest sequence number of a long
// filename sequence, which this driver writes directly before the short
// entry.
const lfnLastSequence = 0x40

// units returns the 26 name bytes of the entry as a single run of 13 code
// units.
func (e *LongFilenameEntry) units() []uint16 {
	units := make([]uint16, 0, lfnUnitsPerEntry)
	units = append(units, e.First[:]...)
	units = append(units, e.Second[:]...)
	units = append(units, e.Third[:]...)
	return units
}

// setUnits distributes 13 code units over the three name fields of the entry.
func (e *LongFilenameEntry) setUnits(units []uint16) {
	copy(e.First[:], units[:5])
	copy(e.Second[:], units[5:11])
	copy(e.Third[:], units[11:13])
}

// numberOfEntries returns the number of directory entry slots reserved for a
// name: one per 11 name bytes plus the short entry itself. The reservation
// may exceed the encoded sequence by a few slots; initEntry releases the
// surplus.
func numberOfEntries(name string) int {
	return (len(name)-1)/11 + 2
}

// aliasChecksum computes the 8-bit rotate-and-add checksum over the 11-byte
// short name form stored in the sequence's short entry.
func aliasChecksum(name string) byte {
	var sum byte

	for i := 0; i < 11; i++ {
		c := byte(' ')
		if i < len(name) {
			c = name[i]
		}

		// Rotate the running sum right by one bit, then add the byte.
		sum = ((sum&1)<<7 | sum>>1) + c
	}

	return sum
}

// encodeLongEntries writes the long filename sequence for name into the
// directory cluster starting at slot: one entry per 13 code units, no pure
// padding entries. The sequence with the highest number is flagged as the
// last one and lies directly before the short entry.
// It returns the slot of the short entry.
func encodeLongEntries(raw []byte, slot int, name string) int {
	sequences := (len(name) + lfnUnitsPerEntry - 1) / lfnUnitsPerEntry
	checksum := aliasChecksum(name)

	next := 0
	for sequence := 0; sequence < sequences; sequence++ {
		entry := LongFilenameEntry{
			Sequence:  byte(sequence + 1),
			Attribute: attrLongName,
			Checksum:  checksum,
		}
		if sequence == sequences-1 {
			entry.Sequence |= lfnLastSequence
		}

		units := make([]uint16, lfnUnitsPerEntry)
		for j := range units {
			if next < len(name) {
				units[j] = uint16(name[next])
				next++
			} else {
				units[j] = 0xFFFF
			}
		}
		entry.setUnits(units)

		setLongEntryAt(raw, slot+sequence, &entry)
	}

	return slot + sequences
}
