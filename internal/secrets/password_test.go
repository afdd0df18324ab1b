package secrets

import (
	"testing"

	"azubi-engine/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestSetGetDelete(t *testing.T) {
	keyring.MockInit()

	acct := Account(KindSMTP, "bewerber", "smtp.example.org")
	assert.Equal(t, "azubi:smtp:bewerber@smtp.example.org", acct)

	_, err := Get(acct)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Set(acct, "geheim"))
	pw, err := Get(acct)
	require.NoError(t, err)
	assert.Equal(t, "geheim", pw)

	require.NoError(t, Delete(acct))
	_, err = Get(acct)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, Set("", "x"))
	assert.Error(t, Set(acct, "  "))
}

func TestResolve(t *testing.T) {
	keyring.MockInit()

	cfg := config.Defaults()
	cfg.SMTP.Host = "smtp.example.org"
	cfg.SMTP.Username = "bewerber"
	cfg.Bounce.IMAPHost = "imap.example.org"
	cfg.Bounce.Username = "bewerber"
	cfg.Bounce.Password = "from-env"

	require.NoError(t, Set(SMTPAccount(cfg), "smtp-secret"))
	require.NoError(t, Set(IMAPAccount(cfg), "imap-secret"))

	require.NoError(t, Resolve(&cfg))
	assert.Equal(t, "smtp-secret", cfg.SMTP.Password)
	// env wins over the keychain
	assert.Equal(t, "from-env", cfg.Bounce.Password)

	_, err := AccountFor("pop3", cfg)
	assert.Error(t, err)
}
