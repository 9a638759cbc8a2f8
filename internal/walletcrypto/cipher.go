package walletcrypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// keystream generates n bytes of HMAC-SHA256 counter-mode keystream
// under key, the symmetric primitive both directions of the cipher
// below build on.
func keystream(key []byte, label string, n int) []byte {
	out := make([]byte, 0, n+sha256.Size)
	var counter uint32
	for len(out) < n {
		mac := hmac.New(sha256.New, key)
		mac.Write([]byte(label))
		var ctr [4]byte
		binary.BigEndian.PutUint32(ctr[:], counter)
		mac.Write(ctr[:])
		out = append(out, mac.Sum(nil)...)
		counter++
	}
	return out[:n]
}

func xor(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i%len(b)]
	}
	return out
}

// EncryptOut builds an "outgoing" memo ciphertext only the sender's own
// eta can later decrypt: a keyed XOR of (accountState || spentIndices ||
// notes) plus an HMAC tag that authenticates the correct eta was used.
// spentIndices records the tree indices of the notes consumed as this
// transaction's witness inputs, so the sender's own sync can retire
// them from the usable set.
func EncryptOut(eta Eta, accountState []byte, spentIndices []uint64, notes []Note) []byte {
	plain := append([]byte(nil), accountState...)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(spentIndices)))
	plain = append(plain, countBuf[:]...)
	for _, idx := range spentIndices {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], idx)
		plain = append(plain, b[:]...)
	}
	for _, n := range notes {
		plain = append(plain, n.Encode()...)
	}
	stream := keystream(eta[:], "out", len(plain))
	cipher := xor(plain, stream)

	mac := hmac.New(sha256.New, eta[:])
	mac.Write(cipher)
	tag := mac.Sum(nil)

	out := make([]byte, 0, len(tag)+len(cipher))
	out = append(out, tag...)
	out = append(out, cipher...)
	return out
}

// DecryptOut attempts to decrypt memo as an outgoing memo under eta,
// recovering accountState, the indices it spent, and its notes. Fails
// (ok=false) when memo was not produced for this eta — this is the
// "decrypt as sender" attempt the transaction parser tries first.
func DecryptOut(memo []byte, eta Eta, accountStateLen int) (accountState []byte, spentIndices []uint64, notes []Note, ok bool) {
	if len(memo) < sha256.Size {
		return nil, nil, nil, false
	}
	tag, cipher := memo[:sha256.Size], memo[sha256.Size:]
	mac := hmac.New(sha256.New, eta[:])
	mac.Write(cipher)
	if !hmac.Equal(tag, mac.Sum(nil)) {
		return nil, nil, nil, false
	}
	stream := keystream(eta[:], "out", len(cipher))
	plain := xor(cipher, stream)
	if len(plain) < accountStateLen+4 {
		return nil, nil, nil, false
	}
	accountState = plain[:accountStateLen]
	rest := plain[accountStateLen:]
	count := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	need := int(count) * 8
	if len(rest) < need {
		return nil, nil, nil, false
	}
	for i := 0; i < int(count); i++ {
		spentIndices = append(spentIndices, binary.BigEndian.Uint64(rest[i*8:i*8+8]))
	}
	rest = rest[need:]
	if len(rest)%NoteSize != 0 {
		return nil, nil, nil, false
	}
	for i := 0; i < len(rest); i += NoteSize {
		n, ok := DecodeNote(rest[i : i+NoteSize])
		if !ok {
			return nil, nil, nil, false
		}
		notes = append(notes, n)
	}
	return accountState, spentIndices, notes, true
}

// EncryptIn builds a single incoming-note ciphertext. Unlike EncryptOut,
// any holder can parse it (DecodeNote); it is the caller's job to test
// Note.MatchesPD(eta) to decide whether the note is actually theirs —
// this mirrors the real protocol's diversified-address scheme, where
// note ciphertexts are universally parseable and ownership is proven by
// key derivation, not by decryption success.
func EncryptIn(n Note) []byte { return n.Encode() }

// DecryptIn parses a single incoming-note ciphertext.
func DecryptIn(raw []byte) (Note, bool) { return DecodeNote(raw) }
