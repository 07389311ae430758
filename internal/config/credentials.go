package config

import (
	"os"
	"strings"

	xerrors "gelato-runner/internal/errors"

	"github.com/joho/godotenv"
)

// 凭据所使用的环境变量名。
const (
	EnvUserKey     = "DEMO_USER_PK"
	EnvProviderKey = "DEMO_PROVIDER_PK"
	EnvInfuraID    = "DEMO_INFURA_ID"
)

// Credentials 保存 User 与 Provider 两个钱包的私钥。
type Credentials struct {
	UserKey     string
	ProviderKey string
	InfuraID    string
}

// LoadEnvFiles 加载存在的 .env 文件，不存在的路径直接忽略。
// 已存在的环境变量优先于 .env 中的同名条目。
func LoadEnvFiles(envFiles ...string) error {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if file == "" {
			continue
		}
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return xerrors.Wrap(xerrors.CodeInitializationFailure, err, "加载 .env 文件失败")
	}
	return nil
}

// LoadCredentials 先加载可选的 .env 文件，再从环境变量读取私钥。
// 缺少任一私钥都会返回错误。
func LoadCredentials(envFiles ...string) (Credentials, error) {
	if err := LoadEnvFiles(envFiles...); err != nil {
		return Credentials{}, err
	}

	creds := Credentials{
		UserKey:     strings.TrimSpace(os.Getenv(EnvUserKey)),
		ProviderKey: strings.TrimSpace(os.Getenv(EnvProviderKey)),
		InfuraID:    strings.TrimSpace(os.Getenv(EnvInfuraID)),
	}

	var missing []string
	if creds.UserKey == "" {
		missing = append(missing, EnvUserKey)
	}
	if creds.ProviderKey == "" {
		missing = append(missing, EnvProviderKey)
	}
	if len(missing) > 0 {
		return Credentials{}, xerrors.New(xerrors.CodeInitializationFailure,
			"缺少钱包私钥: "+strings.Join(missing, ", "),
			xerrors.WithHint("在 .env 中设置 "+EnvUserKey+" 与 "+EnvProviderKey))
	}
	return creds, nil
}
