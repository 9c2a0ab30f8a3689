// internal/services/stats_service.go
package services

import (
	"sync"
	"time"

	"github.com/Corphon/VideoScriptStudio/internal/storage"
	"github.com/Corphon/VideoScriptStudio/internal/utils"
)

const (
	statsDir  = "stats"
	statsFile = "usage_stats.json"
)

// UsageStats 生成服务的使用统计
type UsageStats struct {
	TodayRequests   int            `json:"today_requests"`
	MonthlyTokens   int            `json:"monthly_tokens"`
	ScriptRequests  int            `json:"script_requests"`
	PromptRequests  int            `json:"prompt_requests"`
	EvictedKeys     int            `json:"evicted_keys"`
	DailyRequests   map[string]int `json:"daily_requests"`
	MonthlyRequests map[string]int `json:"monthly_requests"`
	LastUpdated     time.Time      `json:"last_updated"`
}

// StatsService 统计生成调用量与密钥淘汰次数
type StatsService struct {
	mutex sync.Mutex
	fs    *storage.FileStorage
	stats *UsageStats

	currentDay   string
	currentMonth string
}

// NewStatsService 创建统计服务并加载历史数据
func NewStatsService(fs *storage.FileStorage) *StatsService {
	s := &StatsService{fs: fs}

	var loaded UsageStats
	if fs != nil && fs.FileExists(statsDir, statsFile) {
		if err := fs.LoadJSONFile(statsDir, statsFile, &loaded); err != nil {
			utils.GetLogger().Warn("加载统计数据失败", map[string]interface{}{
				"err": err.Error(),
			})
		}
	}
	if loaded.DailyRequests == nil {
		loaded.DailyRequests = make(map[string]int)
	}
	if loaded.MonthlyRequests == nil {
		loaded.MonthlyRequests = make(map[string]int)
	}
	s.stats = &loaded

	now := time.Now()
	s.currentDay = now.Format("2006-01-02")
	s.currentMonth = now.Format("2006-01")
	s.rolloverLocked(now)

	return s
}

// rolloverLocked 跨天/跨月时重置周期计数
func (s *StatsService) rolloverLocked(now time.Time) {
	day := now.Format("2006-01-02")
	month := now.Format("2006-01")

	if day != s.currentDay {
		s.currentDay = day
		s.stats.TodayRequests = 0
	}
	if month != s.currentMonth {
		s.currentMonth = month
		s.stats.MonthlyTokens = 0
	}
}

// RecordScriptRequest 记录一次脚本生成调用
func (s *StatsService) RecordScriptRequest(tokens int) {
	s.record(tokens, func() { s.stats.ScriptRequests++ })
}

// RecordPromptRequest 记录一次形象提示词生成调用
func (s *StatsService) RecordPromptRequest(tokens int) {
	s.record(tokens, func() { s.stats.PromptRequests++ })
}

// RecordKeyEviction 记录一次密钥淘汰
func (s *StatsService) RecordKeyEviction() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stats.EvictedKeys++
	s.stats.LastUpdated = time.Now()
	s.saveLocked()
}

func (s *StatsService) record(tokens int, bump func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	s.rolloverLocked(now)

	bump()
	s.stats.TodayRequests++
	s.stats.MonthlyTokens += tokens
	s.stats.DailyRequests[s.currentDay]++
	s.stats.MonthlyRequests[s.currentMonth]++
	s.stats.LastUpdated = now
	s.saveLocked()
}

// GetStats 返回当前统计数据的副本
func (s *StatsService) GetStats() UsageStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.rolloverLocked(time.Now())

	copied := *s.stats
	copied.DailyRequests = make(map[string]int, len(s.stats.DailyRequests))
	for k, v := range s.stats.DailyRequests {
		copied.DailyRequests[k] = v
	}
	copied.MonthlyRequests = make(map[string]int, len(s.stats.MonthlyRequests))
	for k, v := range s.stats.MonthlyRequests {
		copied.MonthlyRequests[k] = v
	}
	return copied
}

func (s *StatsService) saveLocked() {
	if s.fs == nil {
		return
	}
	if err := s.fs.SaveJSONFile(statsDir, statsFile, s.stats); err != nil {
		utils.GetLogger().Warn("保存统计数据失败", map[string]interface{}{
			"err": err.Error(),
		})
	}
}
