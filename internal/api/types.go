package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PKL-SST-2025/be-tabungin/internal/domain"
)

const dateLayout = "2006-01-02"

// Amount accepts a monetary value as either a JSON string or a JSON number. The raw text
// is kept so that parsing happens exactly once, with decimal semantics.
type Amount struct {
	raw string
	set bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	a.set = true
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &a.raw)
	}
	a.raw = string(data)
	return nil
}

// Positive parses the amount and requires it to be greater than zero.
func (a Amount) Positive() (decimal.Decimal, error) {
	return domain.ParseAmount(a.raw)
}

// optional parses a present amount without a sign check. It returns nil when absent.
func (a Amount) optional() (*decimal.Decimal, error) {
	if !a.set {
		return nil, nil
	}
	parsed, err := decimal.NewFromString(strings.TrimSpace(a.raw))
	if err != nil {
		return nil, domain.ErrInvalidAmount
	}
	return &parsed, nil
}

// Date is a calendar date encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler. RFC 3339 timestamps are truncated to their date.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if parsed, err := time.Parse(dateLayout, raw); err == nil {
		d.Time = parsed
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("invalid date %q", raw)
	}
	y, m, day := parsed.Date()
	d.Time = time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return nil
}

func (d *Date) ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

// CreateTargetRequest is the payload for POST /v1/savings/targets.
type CreateTargetRequest struct {
	Name         string `json:"name"`
	TargetAmount Amount `json:"target_amount"`
	Icon         string `json:"icon"`
	IconColor    string `json:"icon_color"`
	TargetDate   *Date  `json:"target_date"`
}

func (r CreateTargetRequest) toInput(userID string) (domain.CreateTargetInput, error) {
	amount, err := r.TargetAmount.Positive()
	if err != nil {
		return domain.CreateTargetInput{}, err
	}
	return domain.CreateTargetInput{
		UserID:       userID,
		Name:         r.Name,
		TargetAmount: amount,
		Icon:         r.Icon,
		IconColor:    r.IconColor,
		TargetDate:   r.TargetDate.ptr(),
	}, nil
}

// UpdateTargetRequest is the payload for PUT /v1/savings/targets/{id}. Absent fields are
// left unchanged.
type UpdateTargetRequest struct {
	Name          *string `json:"name"`
	TargetAmount  Amount  `json:"target_amount"`
	CurrentAmount Amount  `json:"current_amount"`
	Icon          *string `json:"icon"`
	IconColor     *string `json:"icon_color"`
	TargetDate    *Date   `json:"target_date"`
	IsCompleted   *bool   `json:"is_completed"`
}

func (r UpdateTargetRequest) toPatch() (domain.TargetPatch, error) {
	targetAmount, err := r.TargetAmount.optional()
	if err != nil {
		return domain.TargetPatch{}, err
	}
	currentAmount, err := r.CurrentAmount.optional()
	if err != nil {
		return domain.TargetPatch{}, err
	}
	patch := domain.TargetPatch{
		Name:          r.Name,
		TargetAmount:  targetAmount,
		CurrentAmount: currentAmount,
		Icon:          r.Icon,
		IconColor:     r.IconColor,
		TargetDate:    r.TargetDate.ptr(),
		IsCompleted:   r.IsCompleted,
	}
	return patch, patch.Validate()
}

// AmountRequest is the payload for deposits and withdrawals.
type AmountRequest struct {
	Amount Amount `json:"amount"`
}

// TargetView exposes a savings target. Amounts are fixed-point strings.
type TargetView struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	TargetAmount  string    `json:"target_amount"`
	CurrentAmount string    `json:"current_amount"`
	Icon          string    `json:"icon"`
	IconColor     string    `json:"icon_color"`
	TargetDate    *string   `json:"target_date,omitempty"`
	IsCompleted   bool      `json:"is_completed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ListTargetsResponse packages list results.
type ListTargetsResponse struct {
	Items []TargetView `json:"items"`
}

// ActivityView exposes an activity log entry.
type ActivityView struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	SavingsTargetID *string   `json:"savings_target_id,omitempty"`
	ActivityType    string    `json:"activity_type"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Amount          string    `json:"amount"`
	Icon            string    `json:"icon"`
	IconColor       string    `json:"icon_color"`
	CreatedAt       time.Time `json:"created_at"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// StatisticsView exposes the cached per-user statistics.
type StatisticsView struct {
	UserID            string    `json:"user_id"`
	TotalSaved        string    `json:"total_saved"`
	StreakDays        int       `json:"streak_days"`
	DailyAverage      string    `json:"daily_average"`
	AchievementsCount int       `json:"achievements_count"`
	LastDepositDate   *string   `json:"last_deposit_date,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// StreakDayView is one day of the streak window.
type StreakDayView struct {
	Date           string  `json:"date"`
	HasDeposit     bool    `json:"has_deposit"`
	DepositAmount  *string `json:"deposit_amount,omitempty"`
	IsToday        bool    `json:"is_today"`
	IsPartOfStreak bool    `json:"is_part_of_streak"`
}

// StreakView is the recomputed streak window.
type StreakView struct {
	CurrentStreak int             `json:"current_streak"`
	Days          []StreakDayView `json:"days"`
}

// AchievementView exposes an earned achievement.
type AchievementView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	IconColor   string    `json:"icon_color"`
	EarnedAt    time.Time `json:"earned_at"`
}

// ListAchievementsResponse packages list results.
type ListAchievementsResponse struct {
	Items []AchievementView `json:"items"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(domain.MoneyScale)
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func toTargetView(t domain.SavingsTarget) TargetView {
	return TargetView{
		ID:            t.ID,
		UserID:        t.UserID,
		Name:          t.Name,
		TargetAmount:  money(t.TargetAmount),
		CurrentAmount: money(t.CurrentAmount),
		Icon:          t.Icon,
		IconColor:     t.IconColor,
		TargetDate:    formatDate(t.TargetDate),
		IsCompleted:   t.IsCompleted,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func toActivityViews(activities []domain.Activity) []ActivityView {
	items := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		items = append(items, ActivityView{
			ID:              a.ID,
			UserID:          a.UserID,
			SavingsTargetID: a.SavingsTargetID,
			ActivityType:    string(a.Type),
			Title:           a.Title,
			Description:     a.Description,
			Amount:          money(a.Amount),
			Icon:            a.Icon,
			IconColor:       a.IconColor,
			CreatedAt:       a.CreatedAt,
		})
	}
	return items
}

func toStatisticsView(s domain.UserStatistics) StatisticsView {
	return StatisticsView{
		UserID:            s.UserID,
		TotalSaved:        money(s.TotalSaved),
		StreakDays:        s.StreakDays,
		DailyAverage:      money(s.DailyAverage),
		AchievementsCount: s.AchievementsCount,
		LastDepositDate:   formatDate(s.LastDepositDate),
		UpdatedAt:         s.UpdatedAt,
	}
}

func toStreakView(w domain.StreakWindow) StreakView {
	days := make([]StreakDayView, 0, len(w.Days))
	for _, d := range w.Days {
		view := StreakDayView{
			Date:           d.Date.Format(dateLayout),
			HasDeposit:     d.HasDeposit,
			IsToday:        d.IsToday,
			IsPartOfStreak: d.IsPartOfStreak,
		}
		if d.DepositAmount != nil {
			amount := money(*d.DepositAmount)
			view.DepositAmount = &amount
		}
		days = append(days, view)
	}
	return StreakView{CurrentStreak: w.CurrentStreak, Days: days}
}

func toAchievementView(a domain.Achievement) AchievementView {
	return AchievementView{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		Icon:        a.Icon,
		IconColor:   a.IconColor,
		EarnedAt:    a.EarnedAt,
	}
}
