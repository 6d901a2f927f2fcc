package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	DB_URL           string `mapstructure:"DB_URL"`
	WebhookAddr      string `mapstructure:"WEBHOOK_ADDR"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// Полный список операторов получает отчёты о платежах, список
	// ERROR_LOG_ADMIN_IDS получает только критические эскалации.
	AdminIDs       string `mapstructure:"ADMIN_IDS"`
	ErrorLogAdmins string `mapstructure:"ERROR_LOG_ADMIN_IDS"`
}

func LoadConfig(path string) (config Config, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return config, fmt.Errorf("ошибка получения абсолютного пути: %w", err)
	}

	viper.AddConfigPath(filepath.Dir(absPath))
	viper.SetConfigName(filepath.Base(absPath))
	viper.SetConfigType("env")
	viper.AutomaticEnv()
	viper.SetDefault("WEBHOOK_ADDR", ":8000")

	if err := viper.ReadInConfig(); err != nil {
		return config, fmt.Errorf("ошибка чтения конфигурации: %w", err)
	}

	if err := viper.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("ошибка преобразования конфига: %w", err)
	}

	return config, nil
}

func (c *Config) OperatorIDs() []int64 {
	return parseIDList(c.AdminIDs)
}

func (c *Config) CriticalOperatorIDs() []int64 {
	ids := parseIDList(c.ErrorLogAdmins)
	if len(ids) == 0 {
		return c.OperatorIDs()
	}
	return ids
}

func parseIDList(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
