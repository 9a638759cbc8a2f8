package walletcrypto

import "encoding/binary"

// Note is one shielded note: a diversified recipient plus a balance.
// Real notes also carry protocol randomness and a Pedersen commitment;
// this reference implementation keeps only what the rest of the system
// actually branches on.
type Note struct {
	Diversifier [10]byte
	PD          PD
	B           uint64 // balance / amount, field element in the real protocol
}

// Encode serialises a Note to its fixed-width wire form: 10 + 32 + 8
// bytes.
func (n Note) Encode() []byte {
	out := make([]byte, 10+32+8)
	copy(out[0:10], n.Diversifier[:])
	copy(out[10:42], n.PD[:])
	binary.BigEndian.PutUint64(out[42:50], n.B)
	return out
}

// NoteSize is the fixed encoded width of a Note.
const NoteSize = 10 + 32 + 8

// DecodeNote parses a fixed-width note record.
func DecodeNote(raw []byte) (Note, bool) {
	if len(raw) != NoteSize {
		return Note{}, false
	}
	var n Note
	copy(n.Diversifier[:], raw[0:10])
	copy(n.PD[:], raw[10:42])
	n.B = binary.BigEndian.Uint64(raw[42:50])
	return n, true
}

// MatchesPD reports whether this note was derived for eta: its stored
// PD must equal DerivePD(eta, n.Diversifier).
func (n Note) MatchesPD(eta Eta) bool {
	return n.PD == DerivePD(eta, n.Diversifier)
}
