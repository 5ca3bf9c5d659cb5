// sign.go implements L1 action signing for the exchange endpoint.
//
// Every mutating request carries an EIP-712 signature over a "phantom agent":
// the action is msgpack-serialized, extended with the nonce and vault flag,
// keccak-hashed, and that hash becomes the agent's connectionId. The agent
// source selects the chain ("a" mainnet, "b" testnet).
package hyperliquid

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vmihailenco/msgpack/v5"
)

// Signature is the r/s/v wire form the exchange endpoint expects.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V uint8  `json:"v"`
}

// Signer signs exchange actions with a wallet private key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address string
	testnet bool
}

// NewSigner parses a hex private key (with or without 0x prefix).
func NewSigner(privateKeyHex string, testnet bool) (*Signer, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		testnet: testnet,
	}, nil
}

// Address returns the checksummed address derived from the signing key.
func (s *Signer) Address() string { return s.address }

// actionHash computes keccak(msgpack(action) || nonce_be64 || vault_flag).
func actionHash(action any, nonce uint64) ([32]byte, error) {
	data, err := msgpack.Marshal(action)
	if err != nil {
		return [32]byte{}, fmt.Errorf("msgpack action: %w", err)
	}
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	data = append(data, nonceBytes[:]...)
	data = append(data, 0x00) // no vault address

	var h [32]byte
	copy(h[:], crypto.Keccak256(data))
	return h, nil
}

// SignAction produces the phantom-agent EIP-712 signature for an action.
func (s *Signer) SignAction(action any, nonce uint64) (Signature, error) {
	connectionID, err := actionHash(action, nonce)
	if err != nil {
		return Signature{}, err
	}

	source := "a"
	if s.testnet {
		source = "b"
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": {
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:              "Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(1337),
			VerifyingContract: "0x0000000000000000000000000000000000000000",
		},
		Message: apitypes.TypedDataMessage{
			"source":       source,
			"connectionId": connectionID[:],
		},
	}

	domainSep, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return Signature{}, fmt.Errorf("hash domain: %w", err)
	}
	msgHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return Signature{}, fmt.Errorf("hash message: %w", err)
	}

	digest := crypto.Keccak256(append(append([]byte{0x19, 0x01}, domainSep...), msgHash...))
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return Signature{}, fmt.Errorf("sign digest: %w", err)
	}

	return Signature{
		R: hexutil.Encode(sig[:32]),
		S: hexutil.Encode(sig[32:64]),
		V: sig[64] + 27,
	}, nil
}
