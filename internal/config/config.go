package config

import (
	"os"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	Telegram struct {
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
	} `mapstructure:"telegram"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Pricing struct {
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"pricing"`

	POS struct {
		PriceList          string `mapstructure:"price_list"`
		Currency           string `mapstructure:"currency"`
		Company            string `mapstructure:"company"`
		PageLength         int    `mapstructure:"page_length"`
		SearchDebounceMs   int    `mapstructure:"search_debounce_ms"`
		DeliveryOffsetDays int    `mapstructure:"delivery_offset_days"`
	} `mapstructure:"pos"`
}

func Load(path string) (Config, error) {
	// .env рядом с бинарником может переопределить токен/DSN через APP_*
	if _, err := os.Stat(".env"); err == nil {
		_ = gotenv.Load(".env")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	// Дефолты терминала
	if c.POS.PageLength <= 0 {
		c.POS.PageLength = 20
	}
	if c.POS.SearchDebounceMs <= 0 {
		c.POS.SearchDebounceMs = 300
	}
	if c.POS.DeliveryOffsetDays <= 0 {
		c.POS.DeliveryOffsetDays = 7
	}
	return c, nil
}
