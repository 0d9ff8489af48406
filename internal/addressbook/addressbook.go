// Package addressbook is the external collaborator §9 describes as
// `resolve(AgentId) → SigningIdentity`: the core is agnostic to how a
// signing key reaches it, so this package owns the one concrete on-disk
// keystore format this repository ships. Keys are stored AES-256-GCM
// encrypted at rest (pkg/crypto's Encrypt/Decrypt) behind a bcrypt-checked
// passphrase (pkg/crypto's HashPassword/VerifyPassword), and parsed into the
// same ecdsa.PrivateKey/common.Address shape this corpus's other
// chain-facing repos use to hold an EOA key.
package addressbook

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"permsim/internal/domain"
	"permsim/internal/simerr"
	"permsim/pkg/crypto"
)

// SigningIdentity is what ChainClient resolves an AgentId to: an EOA key
// pair and the address it derives, the substrate §10.8 describes for
// ChainClient's identity bookkeeping.
type SigningIdentity struct {
	AccountID  domain.AgentId
	Address    common.Address
	PrivateKey *ecdsa.PrivateKey
}

// entry is the on-disk shape of one keystore record: the private key hex,
// AES-256-GCM encrypted under the book's master key.
type entry struct {
	AccountID         uint32 `json:"account_id"`
	Address           string `json:"address"`
	EncryptedKeyHex   string `json:"encrypted_key_hex"`
}

// keystoreFile is the on-disk keystore: a bcrypt hash of the unlocking
// passphrase plus the encrypted entries it gates.
type keystoreFile struct {
	PassphraseHash string  `json:"passphrase_hash"`
	Entries        []entry `json:"entries"`
}

// Book is the in-memory, unlocked address book: resolve(AgentId) →
// SigningIdentity.
type Book struct {
	identities map[domain.AgentId]SigningIdentity
}

// Open reads path, verifies passphrase against the stored bcrypt hash, and
// decrypts every entry's private key with masterKey (the AES-256-GCM key,
// distinct from the human passphrase, matching pkg/crypto's 32-byte key
// requirement). Returns a ConfigError on any failure, since an unresolvable
// identity is fatal at boot per §7.
func Open(path, passphrase string, masterKey []byte) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &simerr.ConfigError{Reason: fmt.Sprintf("reading keystore %s", path), Cause: err}
	}

	var file keystoreFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, &simerr.ConfigError{Reason: fmt.Sprintf("parsing keystore %s", path), Cause: err}
	}

	if err := crypto.VerifyPassword(passphrase, file.PassphraseHash); err != nil {
		return nil, &simerr.ConfigError{Reason: "keystore passphrase rejected", Cause: err}
	}

	book := &Book{identities: make(map[domain.AgentId]SigningIdentity, len(file.Entries))}
	for _, e := range file.Entries {
		keyHex, err := crypto.Decrypt(e.EncryptedKeyHex, masterKey)
		if err != nil {
			return nil, &simerr.ConfigError{Reason: fmt.Sprintf("decrypting identity %d", e.AccountID), Cause: err}
		}
		privateKey, err := gethcrypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			return nil, &simerr.ConfigError{Reason: fmt.Sprintf("parsing private key for identity %d", e.AccountID), Cause: err}
		}
		address := gethcrypto.PubkeyToAddress(privateKey.PublicKey)
		if declared := common.HexToAddress(e.Address); declared != address {
			return nil, simerr.NewConfigError(fmt.Sprintf("identity %d: address %s does not match key-derived address %s", e.AccountID, declared.Hex(), address.Hex()))
		}
		id := domain.AgentId(e.AccountID)
		book.identities[id] = SigningIdentity{AccountID: id, Address: address, PrivateKey: privateKey}
	}

	return book, nil
}

// Resolve returns the signing identity for account, or a ConfigError if the
// address book has no key for it.
func (b *Book) Resolve(account domain.AgentId) (SigningIdentity, error) {
	identity, ok := b.identities[account]
	if !ok {
		return SigningIdentity{}, simerr.NewConfigError(fmt.Sprintf("no signing identity for account %d", account))
	}
	return identity, nil
}

// Len reports how many identities are loaded.
func (b *Book) Len() int { return len(b.identities) }
