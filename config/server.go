package config

type ServerConfig struct {
	Server struct {
		ListenAddr string `toml:"listen_addr" env:"LN_GATEWAY_LISTEN_ADDR" env-default:"localhost:8000"`
		// Number of workers serving each connection. Long-running feeds
		// each occupy one worker, so this bounds active feeds plus one
		// reserve worker for control requests.
		PoolSize        int `toml:"pool_size" env:"LN_GATEWAY_POOL_SIZE" env-default:"4"`
		MaxFeedsAllowed int `toml:"max_feeds_allowed" env:"LN_GATEWAY_MAX_FEEDS" env-default:"1"`
	} `toml:"server"`

	Auth struct {
		// 32-byte HMAC secret, hex encoded. Rotation means restarting with
		// a new value; outstanding tokens signed with the old secret become
		// invalid at that point.
		TokenSecret  string `toml:"token_secret" env:"LN_GATEWAY_TOKEN_SECRET"`
		PasswordSalt string `toml:"password_salt" env:"LN_GATEWAY_PASSWORD_SALT"`
	} `toml:"auth"`

	Database struct {
		Host            string `toml:"host" env:"LN_GATEWAY_DB_HOST"`
		Port            string `toml:"port" env:"LN_GATEWAY_DB_PORT" env-default:"5432"`
		User            string `toml:"user" env:"LN_GATEWAY_DB_USER"`
		Password        string `toml:"password" env:"LN_GATEWAY_DB_PASSWORD"`
		DB              string `toml:"db" env:"LN_GATEWAY_DB_NAME"`
		SslMode         string `toml:"ssl_mode" env:"LN_GATEWAY_DB_SSL_MODE" env-default:"disable"`
		MaxConns        int    `toml:"max_conns" env:"LN_GATEWAY_DB_MAX_CONNS" env-default:"25"`
		MinConns        int    `toml:"min_conns" env:"LN_GATEWAY_DB_MIN_CONNS" env-default:"5"`
		MaxConnLifetime int    `toml:"max_conn_lifetime" env:"LN_GATEWAY_DB_MAX_CONN_LIFETIME" env-default:"5"`
		MaxConnIdleTime int    `toml:"max_conn_idle_time" env:"LN_GATEWAY_DB_MAX_CONN_IDLE_TIME" env-default:"1"`
	} `toml:"database"`

	Redis struct {
		Host     string `toml:"host" env:"LN_GATEWAY_REDIS_HOST"`
		Port     string `toml:"port" env:"LN_GATEWAY_REDIS_PORT" env-default:"6379"`
		Password string `toml:"password" env:"LN_GATEWAY_REDIS_PASSWORD"`
		DB       int    `toml:"db" env:"LN_GATEWAY_REDIS_DB" env-default:"0"`
	} `toml:"redis"`

	Lightning struct {
		SocketPath  string `toml:"socket_path" env:"LN_GATEWAY_LIGHTNING_SOCKET"`
		LabelPrefix string `toml:"label_prefix" env:"LN_GATEWAY_LABEL_PREFIX" env-default:"lngw"`
		// Monitor poll interval in milliseconds.
		PollIntervalMs int `toml:"poll_interval_ms" env:"LN_GATEWAY_POLL_INTERVAL_MS" env-default:"500"`
	} `toml:"lightning"`

	Exchange struct {
		Provider string `toml:"provider" env:"LN_GATEWAY_EXCHANGE_PROVIDER" env-default:"coinbase"`
		BaseURL  string `toml:"base_url" env:"LN_GATEWAY_EXCHANGE_URL"`
		// Seconds the sat/USD rate stays cached in redis.
		CacheTTL int `toml:"cache_ttl" env:"LN_GATEWAY_EXCHANGE_CACHE_TTL" env-default:"60"`
	} `toml:"exchange"`
}
