package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	EnvPrivateKey           = "SWAP_PRIVATE_KEY"
	EnvPrivateKeyFile       = "SWAP_PRIVATE_KEY_FILE"
	EnvKeystorePath         = "SWAP_KEYSTORE_PATH"
	EnvKeystorePassword     = "SWAP_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "SWAP_KEYSTORE_PASSWORD_FILE"

	KeySourceAuto     = "auto"
	KeySourceEnv      = "env"
	KeySourceFile     = "file"
	KeySourceKeystore = "keystore"

	defaultPrivateKeyRelativePath = "swap/key.hex"
	defaultPrivateKeyHintPath     = "~/.config/swap/key.hex"
)

type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.privateKey == nil {
		return nil, errors.New("local signer is not initialized")
	}
	signer := types.LatestSignerForChainID(chainID)
	return types.SignTx(tx, signer, s.privateKey)
}

func (s *LocalSigner) SignTypedData(typedData apitypes.TypedData) ([]byte, error) {
	if s == nil || s.privateKey == nil {
		return nil, errors.New("local signer is not initialized")
	}
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	// Shift v from {0,1} to {27,28} as EVM verifiers expect.
	sig[64] += 27
	return sig, nil
}

func NewLocalSignerFromEnv(source string) (*LocalSigner, error) {
	return NewLocalSignerFromInputs(source, "")
}

// NewLocalSignerFromInputs assembles key material from the environment,
// narrows it to the requested source, and lets an explicit --private-key
// value override everything else.
func NewLocalSignerFromInputs(source, privateKeyOverride string) (*LocalSigner, error) {
	inputs := keyInputsFromEnv()
	if err := inputs.restrict(source); err != nil {
		return nil, err
	}
	if override := strings.TrimSpace(privateKeyOverride); override != "" {
		inputs = keyInputs{hexKey: override}
	}

	return NewLocalSigner(LocalSignerConfig{
		PrivateKeyHex:        inputs.hexKey,
		PrivateKeyFile:       inputs.keyFile,
		KeystorePath:         inputs.keystorePath,
		KeystorePassword:     inputs.password,
		KeystorePasswordFile: inputs.passwordFile,
	})
}

type keyInputs struct {
	hexKey       string
	keyFile      string
	keystorePath string
	password     string
	passwordFile string
}

func keyInputsFromEnv() keyInputs {
	in := keyInputs{
		hexKey:       strings.TrimSpace(os.Getenv(EnvPrivateKey)),
		keyFile:      strings.TrimSpace(os.Getenv(EnvPrivateKeyFile)),
		keystorePath: strings.TrimSpace(os.Getenv(EnvKeystorePath)),
		password:     strings.TrimSpace(os.Getenv(EnvKeystorePassword)),
		passwordFile: strings.TrimSpace(os.Getenv(EnvKeystorePasswordFile)),
	}
	if in.keyFile == "" {
		in.keyFile = discoverDefaultPrivateKeyFile()
	}
	return in
}

// restrict blanks the inputs outside the requested source. Auto keeps
// everything and loadPrivateKey applies env, file, keystore precedence.
func (in *keyInputs) restrict(source string) error {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", KeySourceAuto:
	case KeySourceEnv:
		in.keyFile = ""
		in.keystorePath = ""
		in.password = ""
		in.passwordFile = ""
	case KeySourceFile:
		in.hexKey = ""
		in.keystorePath = ""
		in.password = ""
		in.passwordFile = ""
	case KeySourceKeystore:
		in.hexKey = ""
		in.keyFile = ""
	default:
		return fmt.Errorf("unsupported key source %q (expected %s|%s|%s|%s)", source, KeySourceAuto, KeySourceEnv, KeySourceFile, KeySourceKeystore)
	}
	return nil
}

type LocalSignerConfig struct {
	PrivateKeyHex        string
	PrivateKeyFile       string
	KeystorePath         string
	KeystorePassword     string
	KeystorePasswordFile string
}

func NewLocalSigner(cfg LocalSignerConfig) (*LocalSigner, error) {
	pk, err := loadPrivateKey(cfg)
	if err != nil {
		return nil, err
	}
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid ECDSA public key")
	}
	addr := crypto.PubkeyToAddress(*pub)
	return &LocalSigner{privateKey: pk, address: addr}, nil
}

func loadPrivateKey(cfg LocalSignerConfig) (*ecdsa.PrivateKey, error) {
	if strings.TrimSpace(cfg.PrivateKeyHex) != "" {
		return parseHexKey(cfg.PrivateKeyHex)
	}
	if strings.TrimSpace(cfg.PrivateKeyFile) != "" {
		buf, err := readSecretFile(cfg.PrivateKeyFile, "private key file")
		if err != nil {
			return nil, err
		}
		return parseHexKey(string(buf))
	}
	if strings.TrimSpace(cfg.KeystorePath) != "" {
		return decryptKeystore(cfg)
	}
	return nil, fmt.Errorf("missing signing key: set %s, %s, or %s, put a hex key at %s, or pass --private-key", EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath, defaultPrivateKeyHintPath)
}

func decryptKeystore(cfg LocalSignerConfig) (*ecdsa.PrivateKey, error) {
	password := strings.TrimSpace(cfg.KeystorePassword)
	if password == "" && strings.TrimSpace(cfg.KeystorePasswordFile) != "" {
		buf, err := readSecretFile(cfg.KeystorePasswordFile, "keystore password file")
		if err != nil {
			return nil, err
		}
		password = strings.TrimSpace(string(buf))
	}
	if password == "" {
		return nil, fmt.Errorf("keystore password is required")
	}
	buf, err := os.ReadFile(cfg.KeystorePath)
	if err != nil {
		return nil, fmt.Errorf("read keystore file: %w", err)
	}
	key, err := keystore.DecryptKey(buf, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return key.PrivateKey, nil
}

// readSecretFile reads plaintext key material, refusing files other local
// users can read. Keystore JSON is ciphertext and does not take this path.
// Windows ACLs do not map onto mode bits, so the check is POSIX only.
func readSecretFile(path, kind string) ([]byte, error) {
	if runtime.GOOS != "windows" {
		if info, err := os.Stat(path); err == nil && info.Mode().Perm()&0o077 != 0 {
			return nil, fmt.Errorf("%s %s is readable by other users; run: chmod 600 %s", kind, path, path)
		}
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", kind, err)
	}
	return buf, nil
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return pk, nil
}

func defaultPrivateKeyPath() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, defaultPrivateKeyRelativePath)
}

func discoverDefaultPrivateKeyFile() string {
	path := defaultPrivateKeyPath()
	if path == "" {
		return ""
	}
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	if info.IsDir() {
		return ""
	}
	return path
}
