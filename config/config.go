package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Deck      DeckConfig      `mapstructure:"deck"`
	Game      GameConfig      `mapstructure:"game"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MonitorAddress string `mapstructure:"monitor_address"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// DeckConfig points at the external card shuffling/dealing service.
type DeckConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

// GameConfig holds the per-room defaults applied when a host creates a
// room without overriding them.
type GameConfig struct {
	StartingBalance int64         `mapstructure:"starting_balance"`
	MinBet          int64         `mapstructure:"min_bet"`
	BettingTime     time.Duration `mapstructure:"betting_time"`
	TurnTime        time.Duration `mapstructure:"turn_time"`
	BlackjackPayout float64       `mapstructure:"blackjack_payout"`
	ResetBalance    bool          `mapstructure:"reset_balance"`
	MinPlayers      int           `mapstructure:"min_players"`
	MaxPlayers      int           `mapstructure:"max_players"`
}

type SchedulerConfig struct {
	Tick time.Duration `mapstructure:"tick"`
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("deck.timeout", 5*time.Second)
	viper.SetDefault("deck.retries", 2)
	viper.SetDefault("game.starting_balance", 1000)
	viper.SetDefault("game.min_bet", 10)
	viper.SetDefault("game.betting_time", 30*time.Second)
	viper.SetDefault("game.turn_time", 20*time.Second)
	viper.SetDefault("game.blackjack_payout", 1.5)
	viper.SetDefault("game.min_players", 1)
	viper.SetDefault("game.max_players", 6)
	viper.SetDefault("scheduler.tick", time.Second)

	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
