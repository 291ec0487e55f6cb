package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

// Config 服务端运行参数
type Config struct {
	Host      string // 游戏监听主机，空表示所有本地地址
	Port      int    // 游戏监听 TCP 端口
	AdminAddr string // 管理接口地址（指标、配置、观战流），空表示关闭
	GRPCAddr  string // gRPC 健康检查地址，空表示关闭

	TickRate       int // 每秒 Tick 数
	BroadcastEvery int // 每 N 个 Tick 广播一次快照

	ReadBufferSize   int           // 每个连接的接收缓冲（字节）
	MaxMessageSize   int           // 允许的最大消息体（字节）
	SendQueueSize    int           // 每个连接的发送队列长度，满则丢帧
	InputQueueSize   int           // Tick 之间缓存的输入批次数
	MaxInputsPerTick int           // 每个玩家每个 Tick 最多应用的输入事件数
	WriteTimeout     time.Duration // 单次写超时

	PersonalizeSnapshots bool // 为每个接收方写入各自的 ClientTickAck

	WorldWidth       float64
	WorldHeight      float64
	PlayerSpeed      float64 // 每秒移动的世界单位
	RayLifetimeTicks int

	LogFile    string
	LogLevel   string
	LogConsole bool // 同时输出到控制台
}

// Default 没有任何环境变量覆盖时的默认配置
func Default() Config {
	return Config{
		Port:             7777,
		AdminAddr:        ":8080",
		TickRate:         50,
		BroadcastEvery:   3,
		ReadBufferSize:   512,
		MaxMessageSize:   64 << 10,
		SendQueueSize:    64,
		InputQueueSize:   1024,
		MaxInputsPerTick: 32,
		WriteTimeout:     5 * time.Second,
		WorldWidth:       100,
		WorldHeight:      100,
		PlayerSpeed:      10,
		RayLifetimeTicks: 3,
		LogFile:          "app.log",
		LogLevel:         "info",
		LogConsole:       true,
	}
}

// Load 先加载 envFile（不存在时忽略）到进程环境，再在 Default 之上读取环境变量。
// 所有解析错误一并返回。
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	c := Default()
	var errs error
	c.Host = getEnv("SHOOTER_HOST", c.Host)
	c.Port = getEnvInt("SHOOTER_PORT", c.Port, &errs)
	c.AdminAddr = getEnv("ADMIN_ADDR", c.AdminAddr)
	c.GRPCAddr = getEnv("GRPC_ADDR", c.GRPCAddr)

	c.TickRate = getEnvInt("TICK_RATE", c.TickRate, &errs)
	c.BroadcastEvery = getEnvInt("BROADCAST_EVERY", c.BroadcastEvery, &errs)

	c.ReadBufferSize = getEnvInt("READ_BUFFER_SIZE", c.ReadBufferSize, &errs)
	c.MaxMessageSize = getEnvInt("MAX_MESSAGE_SIZE", c.MaxMessageSize, &errs)
	c.SendQueueSize = getEnvInt("SEND_QUEUE_SIZE", c.SendQueueSize, &errs)
	c.InputQueueSize = getEnvInt("INPUT_QUEUE_SIZE", c.InputQueueSize, &errs)
	c.MaxInputsPerTick = getEnvInt("MAX_INPUTS_PER_TICK", c.MaxInputsPerTick, &errs)
	c.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", c.WriteTimeout, &errs)

	c.PersonalizeSnapshots = getEnvBool("PERSONALIZE_SNAPSHOTS", c.PersonalizeSnapshots, &errs)

	c.WorldWidth = getEnvFloat("WORLD_WIDTH", c.WorldWidth, &errs)
	c.WorldHeight = getEnvFloat("WORLD_HEIGHT", c.WorldHeight, &errs)
	c.PlayerSpeed = getEnvFloat("PLAYER_SPEED", c.PlayerSpeed, &errs)
	c.RayLifetimeTicks = getEnvInt("RAY_LIFETIME_TICKS", c.RayLifetimeTicks, &errs)

	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogConsole = getEnvBool("LOG_CONSOLE", c.LogConsole, &errs)

	if errs != nil {
		return Config{}, errs
	}
	return c, c.Validate()
}

// Validate 一次性报告所有越界字段
func (c Config) Validate() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Port >= 0 && c.Port <= 65535, "SHOOTER_PORT %d out of range", c.Port)
	check(c.TickRate > 0, "TICK_RATE must be positive, got %d", c.TickRate)
	check(c.BroadcastEvery > 0 && c.BroadcastEvery <= math.MaxInt32, "BROADCAST_EVERY must be in [1, %d], got %d", math.MaxInt32, c.BroadcastEvery)
	check(c.ReadBufferSize > 0, "READ_BUFFER_SIZE must be positive, got %d", c.ReadBufferSize)
	check(c.MaxMessageSize > 0, "MAX_MESSAGE_SIZE must be positive, got %d", c.MaxMessageSize)
	check(c.SendQueueSize > 0, "SEND_QUEUE_SIZE must be positive, got %d", c.SendQueueSize)
	check(c.InputQueueSize > 0, "INPUT_QUEUE_SIZE must be positive, got %d", c.InputQueueSize)
	check(c.MaxInputsPerTick > 0, "MAX_INPUTS_PER_TICK must be positive, got %d", c.MaxInputsPerTick)
	check(c.WorldWidth > 0 && c.WorldHeight > 0, "world size must be positive, got %vx%v", c.WorldWidth, c.WorldHeight)
	check(c.PlayerSpeed >= 0, "PLAYER_SPEED must not be negative, got %v", c.PlayerSpeed)
	check(c.RayLifetimeTicks > 0, "RAY_LIFETIME_TICKS must be positive, got %d", c.RayLifetimeTicks)
	return errs
}

// TickInterval 一个 Tick 的时长
func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// ListenAddr 游戏监听地址
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int, errs *error) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("environment variable %s must be an integer: %w", key, err))
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64, errs *error) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("environment variable %s must be a number: %w", key, err))
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool, errs *error) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("environment variable %s must be a boolean: %w", key, err))
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration, errs *error) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := time.ParseDuration(value)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("environment variable %s must be a duration: %w", key, err))
		return fallback
	}
	return v
}
