package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// ErrNotFound 存档不存在
var ErrNotFound = errors.New("存档不存在")

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	s := &Storage{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("初始化数据库结构失败: %w", err)
	}

	return s, nil
}

func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS save_games (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		round INTEGER,
		phase TEXT,
		description TEXT,
		world TEXT NOT NULL, -- JSON object
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS generated_worlds (
		id TEXT PRIMARY KEY,
		segment_text TEXT NOT NULL,
		batch TEXT NOT NULL, -- JSON object
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveGame operations
func (s *Storage) CreateSaveGame(save *models.SaveGame, world *models.WorldState) error {
	worldJSON, err := json.Marshal(world)
	if err != nil {
		return fmt.Errorf("序列化世界失败: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO save_games (id, name, round, phase, description, world, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, save.ID, save.Name, save.Round, string(save.Phase), save.Description, string(worldJSON), save.CreatedAt)

	return err
}

func (s *Storage) GetSaveGame(id string) (*models.SaveGame, *models.WorldState, error) {
	var save models.SaveGame
	var phase, worldJSON string

	err := s.db.QueryRow(`
		SELECT id, name, round, phase, description, world, created_at
		FROM save_games WHERE id = ?
	`, id).Scan(&save.ID, &save.Name, &save.Round, &phase, &save.Description, &worldJSON, &save.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}
	save.Phase = models.Phase(phase)

	world := models.NewWorldState()
	if err := json.Unmarshal([]byte(worldJSON), world); err != nil {
		return nil, nil, fmt.Errorf("解析存档世界失败: %w", err)
	}
	return &save, world, nil
}

func (s *Storage) ListSaveGames() ([]models.SaveGame, error) {
	rows, err := s.db.Query(`
		SELECT id, name, round, phase, description, created_at
		FROM save_games
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var saves []models.SaveGame
	for rows.Next() {
		var save models.SaveGame
		var phase string
		err := rows.Scan(&save.ID, &save.Name, &save.Round, &phase, &save.Description, &save.CreatedAt)
		if err != nil {
			continue
		}
		save.Phase = models.Phase(phase)
		saves = append(saves, save)
	}

	return saves, rows.Err()
}

func (s *Storage) DeleteSaveGame(id string) error {
	res, err := s.db.Exec(`DELETE FROM save_games WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

// Generated world archive
func (s *Storage) CreateGeneratedWorld(id, segmentText string, batch any) error {
	batchJSON, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("序列化生成结果失败: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO generated_worlds (id, segment_text, batch)
		VALUES (?, ?, ?)
	`, id, segmentText, string(batchJSON))

	return err
}

func (s *Storage) CountGeneratedWorlds() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM generated_worlds`).Scan(&n)
	return n, err
}
