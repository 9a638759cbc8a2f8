package walletcrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	eta := DeriveEta([]byte("secret-key-bytes"))
	var div [10]byte
	copy(div[:], []byte("diversify!"))

	addr := GenerateAddress(eta, div)
	gotDiv, gotPD, err := ParseAddress(addr)
	require.NoError(t, err)
	assert.Equal(t, div, gotDiv)
	assert.Equal(t, DerivePD(eta, div), gotPD)
}

func TestEncryptOutDecryptOutRoundTrip(t *testing.T) {
	eta := DeriveEta([]byte("sk-a"))
	other := DeriveEta([]byte("sk-b"))
	state := []byte("12345678901234567890123456789012")
	spent := []uint64{3, 7}
	notes := []Note{{B: 10}, {B: 20}}

	memo := EncryptOut(eta, state, spent, notes)

	gotState, gotSpent, gotNotes, ok := DecryptOut(memo, eta, len(state))
	require.True(t, ok)
	assert.Equal(t, state, gotState)
	assert.Equal(t, spent, gotSpent)
	assert.Equal(t, notes, gotNotes)

	_, _, _, ok = DecryptOut(memo, other, len(state))
	assert.False(t, ok, "decrypting with the wrong eta must fail")
}

func TestNoteMatchesPD(t *testing.T) {
	eta := DeriveEta([]byte("sk"))
	var div [10]byte
	copy(div[:], []byte("d"))
	note := Note{Diversifier: div, PD: DerivePD(eta, div), B: 7}

	raw := EncryptIn(note)
	got, ok := DecryptIn(raw)
	require.True(t, ok)
	assert.True(t, got.MatchesPD(eta))

	wrongEta := DeriveEta([]byte("other"))
	assert.False(t, got.MatchesPD(wrongEta))
}

func TestTreeAppendAdvancesNextIndex(t *testing.T) {
	tree := NewTree()
	assert.Equal(t, uint64(0), tree.NextIndex())

	next := tree.Append([][32]byte{HashNote(Note{B: 1}), HashNote(Note{B: 2})})
	assert.Equal(t, uint64(2), next)
	assert.Equal(t, uint64(2), tree.NextIndex())
}

func TestProveTxPanicsOnOversizedWitness(t *testing.T) {
	params := &Params{}
	secret := SecretInputs{Notes: make([]Note, 4)}
	assert.Panics(t, func() {
		_, _, _ = ProveTx(params, PublicInputs{}, secret)
	})
}

func TestProveTxComputesDelta(t *testing.T) {
	params := &Params{}
	secret := SecretInputs{Notes: []Note{{B: 100}}}
	public := PublicInputs{Outputs: []TransferOutput{{Amount: 50}}, Fee: 10}

	inputs, proof, err := ProveTx(params, public, secret)
	require.NoError(t, err)
	assert.Equal(t, int64(40), inputs.Delta)
	assert.NotEmpty(t, proof)
}
