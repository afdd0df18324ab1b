package secrets

import (
	"errors"
	"fmt"
	"strings"

	"azubi-engine/internal/config"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService groups the engine's secrets in the OS keychain.
	KeyringService = "azubi-engine"
)

type Kind string

const (
	KindSMTP Kind = "smtp"
	KindIMAP Kind = "imap"
)

var ErrNotFound = errors.New("password not found (set it in keychain or via env)")

func Account(kind Kind, username, host string) string {
	return fmt.Sprintf("azubi:%s:%s@%s", kind, username, host)
}

func SMTPAccount(cfg config.Config) string {
	return Account(KindSMTP, cfg.SMTP.Username, cfg.SMTP.Host)
}

func IMAPAccount(cfg config.Config) string {
	return Account(KindIMAP, cfg.Bounce.Username, cfg.Bounce.IMAPHost)
}

// AccountFor returns the keyring account of kind for the current config.
func AccountFor(kind Kind, cfg config.Config) (string, error) {
	switch kind {
	case KindSMTP:
		return SMTPAccount(cfg), nil
	case KindIMAP:
		return IMAPAccount(cfg), nil
	}
	return "", fmt.Errorf("unknown secret kind %q", kind)
}

func Get(account string) (string, error) {
	if strings.TrimSpace(account) == "" {
		return "", errors.New("keyring account name is empty")
	}
	pw, err := keyring.Get(KeyringService, account)
	if errors.Is(err, keyring.ErrNotFound) || (err == nil && strings.TrimSpace(pw) == "") {
		return "", ErrNotFound
	}
	return pw, err
}

func Set(account string, password string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password is empty")
	}
	return keyring.Set(KeyringService, account, password)
}

func Delete(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, account)
}

// Resolve fills the SMTP and IMAP passwords from the keychain when the
// environment did not already provide them. A missing entry is not an error;
// the component that needs the password reports it.
func Resolve(cfg *config.Config) error {
	if cfg.SMTP.Password == "" && cfg.SMTP.Username != "" {
		pw, err := Get(SMTPAccount(*cfg))
		switch {
		case err == nil:
			cfg.SMTP.Password = pw
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("smtp password: %w", err)
		}
	}
	if cfg.Bounce.Password == "" && cfg.Bounce.Username != "" {
		pw, err := Get(IMAPAccount(*cfg))
		switch {
		case err == nil:
			cfg.Bounce.Password = pw
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("imap password: %w", err)
		}
	}
	return nil
}
