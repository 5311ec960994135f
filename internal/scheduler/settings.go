package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/brandpulse/internal/model"
)

// GetSettings はテナントのスケジュール設定を返す。
// 存在しない場合はデフォルト値（enabled=true, 24時間, UTC）で遅延作成する。
func (s *Service) GetSettings(ctx context.Context, tenantID string) (*model.ScheduleSettings, error) {
	settings, err := s.scheduleRepo.GetOrCreate(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("スケジュール設定の読み取りに失敗: %w", err)
	}
	return settings, nil
}

// UpdateSettings はスケジュール設定を検証・更新し、タイマーを再登録する。
// 収集間隔は[1,168]時間、タイムゾーンはIANA名のみ受け付ける。
// 検証失敗時は設定を一切変更しない。
func (s *Service) UpdateSettings(ctx context.Context, tenantID string, enabled bool, intervalHours int, timezone string) (*model.ScheduleSettings, error) {
	if !model.IsValidIntervalHours(intervalHours) {
		return nil, model.NewInvalidIntervalError(intervalHours)
	}
	if _, err := time.LoadLocation(timezone); err != nil || timezone == "" {
		return nil, model.NewInvalidTimezoneError(timezone)
	}

	settings, err := s.scheduleRepo.GetOrCreate(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("スケジュール設定の読み取りに失敗: %w", err)
	}

	settings.Enabled = enabled
	settings.IntervalHours = intervalHours
	settings.Timezone = timezone
	settings.UpdatedAt = s.now().UTC()

	if err := s.scheduleRepo.Update(ctx, settings); err != nil {
		return nil, fmt.Errorf("スケジュール設定の更新に失敗: %w", err)
	}

	// 永続化に成功してからタイマーを差し替える
	s.ScheduleTenant(settings)

	return settings, nil
}
