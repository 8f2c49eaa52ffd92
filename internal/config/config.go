package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// Default 默认配置
func Default() models.Config {
	return models.Config{
		Server: models.ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Database: models.DatabaseConfig{
			Path: "./data/abyss.db",
		},
		LLM: models.LLMConfig{
			Provider:    "openai",
			Temperature: 0.7,
			MaxTokens:   2000,
		},
		Game: models.DefaultGameConfig(),
	}
}

// Load 读取配置：默认值 < YAML 文件 < ABYSS_* 环境变量。文件不存在时只使用默认值和环境变量。
func Load(path string) (*models.Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	if err := validate(config); err != nil {
		return nil, err
	}
	return &config, nil
}

func validate(config models.Config) error {
	g := config.Game
	switch {
	case config.Server.Port == "":
		return fmt.Errorf("配置错误: server.port 不能为空")
	case g.MaxNPCsPerRound < 0:
		return fmt.Errorf("配置错误: game.max_npcs_per_round 不能为负数")
	case g.PleasureDecay < 0 || g.PleasureDecay > 1 || g.ActivityDecay < 0 || g.ActivityDecay > 1:
		return fmt.Errorf("配置错误: 衰减系数必须在 0 到 1 之间")
	case g.WeatherChangeChance < 0 || g.WeatherChangeChance > 1:
		return fmt.Errorf("配置错误: game.weather_change_chance 必须在 0 到 1 之间")
	}
	return nil
}
