// Package kms implements an EVM approver identity backed by an AWS KMS
// secp256k1 key. The private key never leaves KMS; signing requests
// carry only the 32-byte digest. The recovery id is not computed here,
// chain adapters that need full 65-byte signatures derive it against
// the known address.
package kms

import (
	"context"
	"encoding/asn1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/config"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/sha3"

	"github.com/mesmerverse/walletbridge/session"
)

// Config holds the KMS signer settings. The key must be an
// ECC_SECG_P256K1 sign/verify key.
type Config struct {
	KeyARN string `yaml:"key_arn"`
	Region string `yaml:"region"`
}

// Signer signs with a secp256k1 key held in AWS KMS.
type Signer struct {
	client  *awskms.Client
	keyARN  string
	address string
}

// New connects to KMS and derives the EVM address from the key's
// public half.
func New(ctx context.Context, cfg Config) (*Signer, error) {
	if cfg.KeyARN == "" {
		return nil, fmt.Errorf("KMS key ARN not configured")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s := &Signer{
		client: awskms.NewFromConfig(awsCfg),
		keyARN: cfg.KeyARN,
	}

	out, err := s.client.GetPublicKey(ctx, &awskms.GetPublicKeyInput{
		KeyId: &s.keyARN,
	})
	if err != nil {
		return nil, fmt.Errorf("KMS get public key failed: %w", err)
	}
	if out.KeySpec != types.KeySpecEccSecgP256k1 {
		return nil, fmt.Errorf("key %s is %s, expected %s", cfg.KeyARN, out.KeySpec, types.KeySpecEccSecgP256k1)
	}

	addr, err := addressFromSPKI(out.PublicKey)
	if err != nil {
		return nil, err
	}
	s.address = addr

	log.Info().Str("address", addr).Msg("KMS signer ready")
	return s, nil
}

// Address returns the 0x-prefixed EVM address.
func (s *Signer) Address() string {
	return s.address
}

// ChainType identifies the signature scheme.
func (s *Signer) ChainType() session.ChainType {
	return session.ChainEVM
}

// SignMessage signs an arbitrary message under the EIP-191
// personal-message convention.
func (s *Signer) SignMessage(ctx context.Context, message []byte) (string, error) {
	return s.signDigest(ctx, eip191Digest(message))
}

// SignTransaction signs the keccak digest of the canonical transaction
// bytes. The payload is treated as opaque; chain adapters own the
// encoding.
func (s *Signer) SignTransaction(ctx context.Context, tx json.RawMessage) (string, error) {
	return s.signDigest(ctx, keccak256(tx))
}

func (s *Signer) signDigest(ctx context.Context, digest []byte) (string, error) {
	out, err := s.client.Sign(ctx, &awskms.SignInput{
		KeyId:            &s.keyARN,
		Message:          digest,
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
	})
	if err != nil {
		return "", fmt.Errorf("KMS sign failed: %w", err)
	}

	sig, err := normalizeSignature(out.Signature)
	if err != nil {
		return "", err
	}

	log.Debug().
		Int("digest_len", len(digest)).
		Int("signature_len", len(sig)).
		Msg("KMS sign successful")

	return "0x" + hex.EncodeToString(sig), nil
}

// subjectPublicKeyInfo is the outer SPKI structure KMS returns from
// GetPublicKey.
type subjectPublicKeyInfo struct {
	Algorithm asn1.RawValue
	PublicKey asn1.BitString
}

// addressFromSPKI extracts the uncompressed curve point from the DER
// public key and derives the EVM address: keccak256 of the 64
// coordinate bytes, last 20 bytes, hex with 0x prefix.
func addressFromSPKI(der []byte) (string, error) {
	var spki subjectPublicKeyInfo
	if _, err := asn1.Unmarshal(der, &spki); err != nil {
		return "", fmt.Errorf("failed to parse public key: %w", err)
	}

	point := spki.PublicKey.Bytes
	if len(point) != 65 || point[0] != 0x04 {
		return "", fmt.Errorf("unexpected public key format: %d bytes", len(point))
	}

	sum := keccak256(point[1:])
	return "0x" + hex.EncodeToString(sum[12:]), nil
}

// eip191Digest hashes a message under the personal-message prefix. The
// length is part of the preimage, so distinct messages can never share
// a digest through prefix ambiguity.
func eip191Digest(message []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("\x19Ethereum Signed Message:\n"))
	h.Write([]byte(strconv.Itoa(len(message))))
	h.Write(message)
	return h.Sum(nil)
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// secp256k1N is the curve group order; signatures with s above N/2 are
// malleable and rejected by EVM chains.
var (
	secp256k1N, _  = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

type ecdsaSignature struct {
	R, S *big.Int
}

// normalizeSignature converts the DER ECDSA signature KMS returns to
// the fixed 64-byte r||s form with low-s enforced.
func normalizeSignature(der []byte) ([]byte, error) {
	var sig ecdsaSignature
	if _, err := asn1.Unmarshal(der, &sig); err != nil {
		return nil, fmt.Errorf("failed to parse signature: %w", err)
	}

	s := sig.S
	if s.Cmp(secp256k1HalfN) > 0 {
		s = new(big.Int).Sub(secp256k1N, s)
	}

	out := make([]byte, 64)
	sig.R.FillBytes(out[:32])
	s.FillBytes(out[32:])
	return out, nil
}
