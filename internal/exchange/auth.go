package exchange

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"perpquoter/internal/config"
	"perpquoter/pkg/types"
)

// Credentials holds the L2 session credential triplet returned by
// POST /auth/session (Client.Login). These authenticate trading requests (L2 HMAC).
type Credentials struct {
	ApiKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// Auth handles the venue's two authentication layers:
//
//   - L1 (EIP-712): used once to derive L2 session credentials, signing a
//     typed-data message with the trading wallet's private key.
//   - L2 (HMAC-SHA256): used for all order placement/cancellation,
//     signing "timestamp + method + path [+ body]" with the derived
//     session secret.
//
// Order signing (place requests) also goes through SignTypedData with the
// venue's order schema, since this venue settles on-chain.
type Auth struct {
	privateKey    *ecdsa.PrivateKey
	address       common.Address
	funderAddress common.Address
	chainID       *big.Int
	sigType       types.SignatureType
	creds         Credentials
}

// NewAuth builds an Auth from config.
func NewAuth(cfg config.Config) (*Auth, error) {
	keyHex := cfg.Wallet.PrivateKey
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}

	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	funder := address
	if cfg.Wallet.FunderAddress != "" {
		funder = common.HexToAddress(cfg.Wallet.FunderAddress)
	}

	return &Auth{
		privateKey:    privateKey,
		address:       address,
		funderAddress: funder,
		chainID:       big.NewInt(int64(cfg.Wallet.ChainID)),
		sigType:       types.SignatureType(cfg.Wallet.SignatureType),
		creds: Credentials{
			ApiKey:     cfg.API.ApiKey,
			Secret:     cfg.API.Secret,
			Passphrase: cfg.API.Passphrase,
		},
	}, nil
}

func (a *Auth) Address() common.Address       { return a.address }
func (a *Auth) ChainID() *big.Int             { return a.chainID }
func (a *Auth) FunderAddress() common.Address { return a.funderAddress }

func (a *Auth) HasL2Credentials() bool {
	return a.creds.ApiKey != "" && a.creds.Secret != "" && a.creds.Passphrase != ""
}

func (a *Auth) SetCredentials(creds Credentials) { a.creds = creds }

// L1Headers authenticates key-derivation requests.
func (a *Auth) L1Headers(nonce int) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	sig, err := a.signClobAuth(timestamp, nonce)
	if err != nil {
		return nil, fmt.Errorf("sign auth: %w", err)
	}

	return map[string]string{
		"MM-ADDRESS":   a.address.Hex(),
		"MM-SIGNATURE": sig,
		"MM-TIMESTAMP": timestamp,
		"MM-NONCE":     strconv.Itoa(nonce),
	}, nil
}

// L2Headers authenticates trading requests.
func (a *Auth) L2Headers(method, path, body string) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	sig, err := a.buildHMAC(timestamp, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("build hmac: %w", err)
	}

	return map[string]string{
		"MM-ADDRESS":    a.address.Hex(),
		"MM-SIGNATURE":  sig,
		"MM-TIMESTAMP":  timestamp,
		"MM-API-KEY":    a.creds.ApiKey,
		"MM-PASSPHRASE": a.creds.Passphrase,
	}, nil
}

// WSAuthPayload returns the credentials used to authenticate the venue's
// user WebSocket channel.
func (a *Auth) WSAuthPayload() *types.WSAuth {
	return &types.WSAuth{ApiKey: a.creds.ApiKey, Secret: a.creds.Secret, Passphrase: a.creds.Passphrase}
}

func (a *Auth) signClobAuth(timestamp string, nonce int) (string, error) {
	sig, err := a.SignTypedData(
		&apitypes.TypedDataDomain{
			Name:    "QuoterAuthDomain",
			Version: "1",
			ChainId: (*ethmath.HexOrDecimal256)(new(big.Int).Set(a.chainID)),
		},
		apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"QuoterAuth": {
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		apitypes.TypedDataMessage{
			"address":   a.address.Hex(),
			"timestamp": timestamp,
			"nonce":     fmt.Sprintf("%d", nonce),
			"message":   "This message attests that I control the given wallet",
		},
		"QuoterAuth",
	)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

// SignOrder signs a generic perp order {price, size, side, leverage,
// symbol} with EIP-712, matching §4.E's signed-order contract for an
// on-chain-settled venue.
func (a *Auth) SignOrder(symbol string, side types.Side, price, size string, leverage int, salt, expiration string) ([]byte, error) {
	return a.SignTypedData(
		&apitypes.TypedDataDomain{
			Name:    "PerpExchange",
			Version: "1",
			ChainId: (*ethmath.HexOrDecimal256)(new(big.Int).Set(a.chainID)),
		},
		apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Order": {
				{Name: "maker", Type: "address"},
				{Name: "symbol", Type: "string"},
				{Name: "side", Type: "string"},
				{Name: "price", Type: "string"},
				{Name: "size", Type: "string"},
				{Name: "leverage", Type: "uint256"},
				{Name: "salt", Type: "string"},
				{Name: "expiration", Type: "string"},
			},
		},
		apitypes.TypedDataMessage{
			"maker":      a.funderAddress.Hex(),
			"symbol":     symbol,
			"side":       string(side),
			"price":      price,
			"size":       size,
			"leverage":   fmt.Sprintf("%d", leverage),
			"salt":       salt,
			"expiration": expiration,
		},
		"Order",
	)
}

// SignTypedData signs EIP-712 typed data and adjusts V to 27/28.
func (a *Auth) SignTypedData(domain *apitypes.TypedDataDomain, typesDef apitypes.Types, message apitypes.TypedDataMessage, primaryType string) ([]byte, error) {
	typedData := apitypes.TypedData{Types: typesDef, PrimaryType: primaryType, Domain: *domain, Message: message}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("typed data hash: %w", err)
	}

	sig, err := crypto.Sign(hash, a.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}

	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

func (a *Auth) buildHMAC(timestamp, method, path, body string) (string, error) {
	decoders := []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	}

	var secretBytes []byte
	var err error
	for _, dec := range decoders {
		secretBytes, err = dec.DecodeString(a.creds.Secret)
		if err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	message := timestamp + method + path
	if body != "" {
		message += body
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
