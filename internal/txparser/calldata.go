package txparser

import (
	"encoding/binary"

	"github.com/synnergy-network/zkbob-cloud/internal/apperr"
	"github.com/synnergy-network/zkbob-cloud/internal/domain"
)

// Pool contract method selectors this decoder recognizes. No real pool
// ABI ships in this module, so these stand in for the contract's
// actual 4-byte selectors the same way internal/walletcrypto stands in
// for the real proving system: a deterministic, internally-consistent
// encoding this system both writes and reads.
var (
	transactSelector           = [4]byte{0x1f, 0xe5, 0x9f, 0x15}
	appendDirectDepositSelector = [4]byte{0x41, 0xa7, 0x1a, 0xc4}
)

// CalldataDecoder implements chaincache.CalldataDecoder. Transact
// calldata is laid out selector(4) | txType(4, BE) | fee(8, BE) |
// tokenAmount(8, BE signed); direct-deposit calldata carries only the
// selector, its fee coming from the direct-deposit contract instead.
type CalldataDecoder struct{}

func (CalldataDecoder) Decode(calldata []byte) (domain.ChainTxKind, *uint64, *int64, error) {
	if len(calldata) < 4 {
		return 0, nil, nil, apperr.New(apperr.CodeWeb3Error, "txparser: calldata shorter than selector")
	}
	var selector [4]byte
	copy(selector[:], calldata[:4])

	switch selector {
	case appendDirectDepositSelector:
		return domain.ChainKindDirectDeposit, nil, nil, nil
	case transactSelector:
		body := calldata[4:]
		if len(body) < 20 {
			return 0, nil, nil, apperr.New(apperr.CodeWeb3Error, "txparser: transact calldata too short")
		}
		txType := binary.BigEndian.Uint32(body[0:4])
		fee := binary.BigEndian.Uint64(body[4:12])
		tokenAmount := int64(binary.BigEndian.Uint64(body[12:20]))

		var kind domain.ChainTxKind
		switch txType {
		case 0:
			kind = domain.ChainKindDeposit
		case 1:
			kind = domain.ChainKindTransfer
		case 2:
			kind = domain.ChainKindWithdrawal
		case 3:
			kind = domain.ChainKindDepositPermittable
		default:
			return 0, nil, nil, apperr.New(apperr.CodeWeb3Error, "txparser: unknown tx type")
		}
		return kind, &fee, &tokenAmount, nil
	default:
		return 0, nil, nil, apperr.New(apperr.CodeWeb3Error, "txparser: unknown calldata selector")
	}
}
