package models

import "time"

// Phase 回合阶段
type Phase string

const (
	PhaseInit       Phase = "init"
	PhaseOrder      Phase = "order"
	PhaseTurnStart  Phase = "turn_start"
	PhaseCharActing Phase = "char_acting"
	PhaseExecuting  Phase = "executing"
	PhaseSettlement Phase = "settlement"
	PhaseRoundEnd   Phase = "round_end"
)

// AttributeType 属性类型
type AttributeType string

const (
	AttrNumber AttributeType = "NUMBER"
	AttrText   AttributeType = "TEXT"
)

// Visibility 属性可见性
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ItemType 卡牌类型
type ItemType string

const (
	ItemSkill      ItemType = "skill"
	ItemConsumable ItemType = "consumable"
)

// TriggerType 卡牌触发方式
type TriggerType string

const (
	TriggerActive           TriggerType = "active"
	TriggerPassive          TriggerType = "passive"
	TriggerReaction         TriggerType = "reaction"
	TriggerSettlement       TriggerType = "settlement"
	TriggerHiddenSettlement TriggerType = "hidden_settlement"
)

// TargetType 效果目标
type TargetType string

const (
	TargetSelf         TargetType = "self"
	TargetSpecificChar TargetType = "specific_char"
	TargetAIChoice     TargetType = "ai_choice"
	TargetHit          TargetType = "hit_target"
	TargetWorld        TargetType = "world"
)

// LogType 日志类型
type LogType string

const (
	LogSystem     LogType = "system"
	LogAction     LogType = "action"
	LogEffect     LogType = "effect"
	LogReaction   LogType = "reaction"
	LogTrade      LogType = "trade"
	LogDeath      LogType = "death"
	LogSettlement LogType = "settlement"
	LogError      LogType = "error"
)

// Attribute 实体属性（数值或文本）
type Attribute struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Type       AttributeType `json:"type"`
	Value      float64       `json:"value"`
	Text       string        `json:"text,omitempty"`
	Visibility Visibility    `json:"visibility"`
}

// Effect 卡牌效果，下标0为命中判定
type Effect struct {
	TargetType           TargetType `json:"target_type"`
	TargetID             string     `json:"target_id,omitempty"` // specific_char 的静态目标
	TargetAttribute      string     `json:"target_attribute"`
	Value                int        `json:"value"`
	DynamicValue         bool       `json:"dynamic_value"`
	ConditionDescription string     `json:"condition_description"`
}

// Card 技能或道具定义，规范化之后不再修改
type Card struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	ItemType    ItemType    `json:"item_type"`
	TriggerType TriggerType `json:"trigger_type"`
	Cost        int         `json:"cost"`  // 创造所需创造点
	Value       int         `json:"value"` // 出售价值
	Effects     []Effect    `json:"effects"`
}

// Conflict 角色身上的矛盾，结算阶段可能被解决
type Conflict struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Reward      int    `json:"reward"`
	Solved      bool   `json:"solved"`
	SolvedRound int    `json:"solved_round,omitempty"`
}

// Drive 角色驱动力，权重每轮衰减
type Drive struct {
	ID        string `json:"id"`
	Condition string `json:"condition"`
	Reward    int    `json:"reward"`
	Weight    int    `json:"weight"`
	Fulfilled bool   `json:"fulfilled"`
}

// Actor 角色（玩家、NPC或环境）
type Actor struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	IsPlayer    bool                 `json:"is_player"`
	LocationID  string               `json:"location_id"`
	Attributes  map[string]Attribute `json:"attributes"`
	Skills      []Card               `json:"skills"`
	Inventory   []string             `json:"inventory"` // 卡牌ID，可重复
	Conflicts   []Conflict           `json:"conflicts"`
	Drives      []Drive              `json:"drives"`
}

// Location 地点
type Location struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Connections []string `json:"connections,omitempty"`
}

// PrizeItem 奖池物品
type PrizeItem struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Weight      int         `json:"weight"`
	ItemType    ItemType    `json:"item_type,omitempty"`
	TriggerType TriggerType `json:"trigger_type,omitempty"`
	Effects     []Effect    `json:"effects,omitempty"`
}

// PrizePool 奖池
type PrizePool struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	LocationIDs []string    `json:"location_ids,omitempty"`
	Items       []PrizeItem `json:"items"`
	MinDraws    int         `json:"min_draws"`
	MaxDraws    int         `json:"max_draws"`
}

// RoundState 回合状态，每条日志都会保存它的深拷贝
type RoundState struct {
	RoundNumber         int      `json:"round_number"`
	TurnIndex           int      `json:"turn_index"`
	Phase               Phase    `json:"phase"`
	CurrentOrder        []string `json:"current_order"`
	DefaultOrder        []string `json:"default_order"`
	ActiveCharID        string   `json:"active_char_id"`
	ActiveLocationID    string   `json:"active_location_id"`
	IsPaused            bool     `json:"is_paused"`
	UseManualTurnOrder  bool     `json:"use_manual_turn_order"`
	AwaitingManualOrder bool     `json:"awaiting_manual_order"`
	SkipSettlement      bool     `json:"skip_settlement"`
	IsHiddenRound       bool     `json:"is_hidden_round"`
	AutoAdvanceCount    int      `json:"auto_advance_count"`
	ActionPoints        int      `json:"action_points"`
	Error               string   `json:"error,omitempty"`
}

// LogEntry 历史日志条目
type LogEntry struct {
	ID        string      `json:"id"`
	Round     int         `json:"round"`
	TurnIndex int         `json:"turn_index"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Type      LogType     `json:"type"`
	Snapshot  *RoundState `json:"snapshot,omitempty"`
}

// WorldState 世界状态根聚合，由引擎独占
type WorldState struct {
	Actors     map[string]Actor     `json:"actors"`
	Cards      []Card               `json:"cards"`
	PrizePools map[string]PrizePool `json:"prize_pools"`
	Locations  map[string]Location  `json:"locations"`
	History    []LogEntry           `json:"history"`
	Round      RoundState           `json:"round"`
	Attributes map[string]Attribute `json:"attributes"`
}

// ActionKind 待执行行动类型
type ActionKind string

const (
	ActionSkill   ActionKind = "skill"
	ActionMove    ActionKind = "move"
	ActionCreate  ActionKind = "create_card"
	ActionRedeem  ActionKind = "redeem"
	ActionDraw    ActionKind = "lottery_draw"
	ActionDeposit ActionKind = "lottery_deposit"
)

// PendingAction 玩家提交回合前排队的行动，不随存档保存
type PendingAction struct {
	Kind       ActionKind  `json:"kind"`
	ActorID    string      `json:"actor_id"`
	CardID     string      `json:"card_id,omitempty"`
	TargetID   string      `json:"target_id,omitempty"`
	LocationID string      `json:"location_id,omitempty"`
	PoolID     string      `json:"pool_id,omitempty"`
	Count      int         `json:"count,omitempty"`
	CardIDs    []string    `json:"card_ids,omitempty"`
	BurnLife   bool        `json:"burn_life,omitempty"`
	Overrides  map[int]int `json:"overrides,omitempty"`
	NewCard    *Card       `json:"new_card,omitempty"`
}

// Config 配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Game     GameConfig     `yaml:"game"`
}

type ServerConfig struct {
	Port string `yaml:"port" env:"ABYSS_PORT"`
	Host string `yaml:"host" env:"ABYSS_HOST"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"ABYSS_DB_PATH"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider" env:"ABYSS_LLM_PROVIDER"`
	APIKey      string  `yaml:"api_key" env:"ABYSS_LLM_API_KEY"`
	APIBase     string  `yaml:"api_base" env:"ABYSS_LLM_API_BASE"`
	Model       string  `yaml:"model" env:"ABYSS_LLM_MODEL"`
	Temperature float32 `yaml:"temperature" env:"ABYSS_LLM_TEMPERATURE"`
	MaxTokens   int     `yaml:"max_tokens" env:"ABYSS_LLM_MAX_TOKENS"`
}

// GameConfig 游戏平衡参数
type GameConfig struct {
	MaxNPCsPerRound     int           `yaml:"max_npcs_per_round" env:"ABYSS_MAX_NPCS_PER_ROUND"`
	BaseSkillCost       int           `yaml:"base_skill_cost"`
	BurnLifeCost        int           `yaml:"burn_life_cost"`
	MoveMinPhysique     float64       `yaml:"move_min_physique"`
	ActivityPerEffect   float64       `yaml:"activity_per_effect"`
	ActivityPerReaction float64       `yaml:"activity_per_reaction"`
	ActivityAffected    float64       `yaml:"activity_affected"`
	ActivityPerAction   float64       `yaml:"activity_per_action"`
	PleasureDecay       float64       `yaml:"pleasure_decay"`
	ActivityDecay       float64       `yaml:"activity_decay"`
	PhysiqueRecovery    float64       `yaml:"physique_recovery"`
	DriveWeightDecay    int           `yaml:"drive_weight_decay"`
	ActionPointRecovery int           `yaml:"action_point_recovery"`
	MaxActionPoints     int           `yaml:"max_action_points"`
	WeatherChangeChance float64       `yaml:"weather_change_chance"`
	Weathers            []string      `yaml:"weathers"`
	HiddenRoundCard     string        `yaml:"hidden_round_card"`
	AutoReact           bool          `yaml:"auto_react" env:"ABYSS_AUTO_REACT"`
	TickInterval        time.Duration `yaml:"tick_interval" env:"ABYSS_TICK_INTERVAL"`
}

// DefaultGameConfig 默认平衡参数
func DefaultGameConfig() GameConfig {
	return GameConfig{
		MaxNPCsPerRound:     3,
		BaseSkillCost:       20,
		BurnLifeCost:        20,
		MoveMinPhysique:     50,
		ActivityPerEffect:   30,
		ActivityPerReaction: 20,
		ActivityAffected:    10,
		ActivityPerAction:   30,
		PleasureDecay:       0.8,
		ActivityDecay:       0.8,
		PhysiqueRecovery:    0.2,
		DriveWeightDecay:    10,
		ActionPointRecovery: 2,
		MaxActionPoints:     5,
		WeatherChangeChance: 0.3,
		Weathers:            []string{"晴", "多云", "小雨", "暴雨", "大雾"},
		HiddenRoundCard:     "隐藏回合",
		TickInterval:        500 * time.Millisecond,
	}
}

// SaveGame 存档
type SaveGame struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Round       int       `json:"round"`
	Phase       Phase     `json:"phase"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
