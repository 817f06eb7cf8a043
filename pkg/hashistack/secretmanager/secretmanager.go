package secretmanager

import (
	"os"
	"time"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is installed when VAULT_ADDR is set; config then overlays the
// secret/<APP_ENV> KV entry.
var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

func Enabled() bool {
	return os.Getenv("VAULT_ADDR") != ""
}

func ProvideVault() (*vault.Client, error) {
	client, err := vault.New(
		vault.WithEnvironment(),
		vault.WithRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, err
	}

	zap.L().Info("vault client ready", zap.String("addr", os.Getenv("VAULT_ADDR")))
	return client, nil
}
