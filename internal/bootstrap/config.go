package bootstrap

import (
	"github.com/spf13/viper"
)

type Config struct {
	ServerPort    string `mapstructure:"SERVER_PORT"`
	EngineURL     string `mapstructure:"ENGINE_URL"`
	RedisUrl      string `mapstructure:"REDIS_URL"`
	MongoUri      string `mapstructure:"MONGO_URI"`
	IsLocalCors   bool   `mapstructure:"LOCAL_CORS"`
	MinBoardSize  int    `mapstructure:"MIN_BOARD_SIZE"`
	MaxBoardSize  int    `mapstructure:"MAX_BOARD_SIZE"`
	SeatTokenTTLH int    `mapstructure:"SEAT_TOKEN_TTL_HOURS"`
}

func Setup(cfgPath string) (*Config, error) {
	viper.SetConfigFile(cfgPath)

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	var cfg Config

	err = viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	if cfg.MinBoardSize == 0 {
		cfg.MinBoardSize = 10
	}
	if cfg.MaxBoardSize == 0 {
		cfg.MaxBoardSize = 25
	}
	if cfg.SeatTokenTTLH == 0 {
		cfg.SeatTokenTTLH = 11
	}

	return &cfg, nil
}
