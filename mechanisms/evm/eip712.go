package evm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// HashTypedData hashes typed data as defined by EIP-712
//
// This function creates the EIP-712 hash that should be signed or verified.
// The hash is computed as: keccak256("\x19\x01" + domainSeparator + structHash)
//
// Args:
//
//	domain: The EIP-712 domain separator parameters
//	types: The type definitions for the structured data
//	primaryType: The name of the primary type being hashed
//	message: The message data to hash
//
// Returns:
//
//	32-byte hash suitable for signing or verification
//	error if hashing fails
func HashTypedData(
	domain TypedDataDomain,
	types map[string][]TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	if domain.ChainID.Int == nil {
		return nil, fmt.Errorf("domain chainId is required")
	}

	typedData := apitypes.TypedData{
		Types:       make(apitypes.Types),
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID.Int),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: message,
	}

	for typeName, fields := range types {
		typedFields := make([]apitypes.Type, len(fields))
		for i, field := range fields {
			typedFields[i] = apitypes.Type{
				Name: field.Name,
				Type: field.Type,
			}
		}
		typedData.Types[typeName] = typedFields
	}

	dataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash struct: %w", err)
	}

	domainSeparator, err := typedData.HashStruct(TypeEIP712Domain, typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	// 0x19 0x01 <domainSeparator> <dataHash>
	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, dataHash...)
	return crypto.Keccak256(rawData), nil
}

// HashTypedDataDocument hashes a TransferWithAuthorization document as
// produced by BuildTypedData.
func HashTypedDataDocument(doc *TypedDataDocument) ([]byte, error) {
	msg := doc.Message

	value, ok := new(big.Int).SetString(msg.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid authorization value: %s", msg.Value)
	}
	if msg.ValidAfter.Int == nil || msg.ValidBefore.Int == nil {
		return nil, fmt.Errorf("validity window is required")
	}
	nonceBytes, err := HexToBytes(msg.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}
	if len(nonceBytes) != NonceLength {
		return nil, fmt.Errorf("invalid nonce length: %d", len(nonceBytes))
	}
	if !common.IsHexAddress(msg.From) || !common.IsHexAddress(msg.To) {
		return nil, fmt.Errorf("invalid authorization address")
	}

	message := map[string]interface{}{
		"from":        common.HexToAddress(msg.From).Hex(),
		"to":          common.HexToAddress(msg.To).Hex(),
		"value":       value,
		"validAfter":  new(big.Int).Set(msg.ValidAfter.Int),
		"validBefore": new(big.Int).Set(msg.ValidBefore.Int),
		"nonce":       nonceBytes,
	}

	types := doc.Types
	if len(types) == 0 {
		types = GetEIP3009Types()
	}
	return HashTypedData(doc.Domain, types, TypeTransferWithAuthorization, message)
}

// HashTypedDataString parses and hashes a serialized document.
func HashTypedDataString(typedData string) ([]byte, error) {
	doc, err := ParseTypedDataDocument(typedData)
	if err != nil {
		return nil, err
	}
	return HashTypedDataDocument(doc)
}

// RecoverSigner returns the address that produced signature over digest.
// Both 0/1 and 27/28 recovery ids are accepted.
func RecoverSigner(digest []byte, signature string) (common.Address, error) {
	sig, err := HexToBytes(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
