package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PlanType string

const (
	PlanMonthly PlanType = "monthly"
	PlanOneTime PlanType = "onetime"
)

func (p PlanType) Valid() bool {
	return p == PlanMonthly || p == PlanOneTime
}

type OrderStatus int

const (
	OrderPending OrderStatus = 0
	OrderPaid    OrderStatus = 2
)

type ConsumptionType string

const (
	ConsumeView     ConsumptionType = "view"
	ConsumeGenerate ConsumptionType = "generate"
)

func (c ConsumptionType) Valid() bool {
	return c == ConsumeView || c == ConsumeGenerate
}

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestCompleted RequestStatus = "completed"
	RequestFailed    RequestStatus = "failed"
)

type User struct {
	Address   string    `json:"user_address"`
	Nickname  string    `json:"nickname"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

// UserCredits is the ledger row for one wallet. A nil ExpiresAt means the
// credits never expire.
type UserCredits struct {
	Address     string     `json:"user_address"`
	Credits     int        `json:"credits"`
	UsedCredits int        `json:"used_credits"`
	Plan        PlanType   `json:"plan"`
	ExpiresAt   *time.Time `json:"expires_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreditBalance is the snapshot returned to clients. Totals are recomputed
// from settled orders rather than read from the ledger row.
type CreditBalance struct {
	OneTimeCredits  int        `json:"one_time_credits"`
	MonthlyCredits  int        `json:"monthly_credits"`
	TotalCredits    int        `json:"total_credits"`
	UsedCredits     int        `json:"used_credits"`
	LeftCredits     int        `json:"left_credits"`
	ExpiresAt       *time.Time `json:"expires_at"`
	DaysUntilExpiry int        `json:"days_until_expiry"`
}

type ExpiringCredits struct {
	IsExpiring bool `json:"isExpiring"`
	DaysLeft   int  `json:"daysLeft"`
	Credits    int  `json:"credits"`
}

type CreditConsumption struct {
	ID        int64           `json:"id"`
	Address   string          `json:"user_address"`
	Amount    int             `json:"amount"`
	Type      ConsumptionType `json:"type"`
	ReportID  *int64          `json:"report_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type Order struct {
	OrderNo         string          `json:"order_no"`
	CreatedAt       time.Time       `json:"created_at"`
	Address         string          `json:"user_address"`
	Amount          decimal.Decimal `json:"amount"`
	Credits         int             `json:"credits"`
	Network         string          `json:"network"`
	TransactionHash string          `json:"transaction_hash"`
	Status          OrderStatus     `json:"order_status"`
	ExpiredAt       time.Time       `json:"expired_at"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	Plan            PlanType        `json:"plan"`
	TokenAddress    string          `json:"token_address"`
	TokenDecimals   int             `json:"token_decimals"`
}

type Plan struct {
	ID          int64           `json:"id"`
	Type        PlanType        `json:"plan_type"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Credits     int             `json:"credits"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Report struct {
	ID          int64         `json:"id"`
	ProjectName string        `json:"projectName"`
	Summary     string        `json:"summary"`
	Content     ReportContent `json:"content"`
	ImageURL    string        `json:"image_url"`
	Address     string        `json:"user_address"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ReportContent mirrors the JSON document produced by the analysis model.
type ReportContent struct {
	Summary            ReportSummary      `json:"summary"`
	CoreAnalysis       CoreAnalysis       `json:"coreAnalysis"`
	InvestmentAnalysis InvestmentAnalysis `json:"investmentAnalysis"`
	SocialLinks        SocialLinks        `json:"socialLinks"`
}

type ReportSummary struct {
	Description      string `json:"description"`
	ImageDescription string `json:"imageDescription"`
}

type CoreAnalysis struct {
	Technology string `json:"technology"`
	Ecosystem  string `json:"ecosystem"`
	Tokenomics string `json:"tokenomics"`
}

type InvestmentAnalysis struct {
	CompetitiveAdvantage string `json:"competitiveAdvantage"`
	Risks                string `json:"risks"`
	InvestmentStrategy   string `json:"investmentStrategy"`
}

type SocialLinks struct {
	Website  string `json:"website"`
	Twitter  string `json:"twitter"`
	Telegram string `json:"telegram"`
	Discord  string `json:"discord"`
	Github   string `json:"github"`
	Docs     string `json:"docs"`
}

func (l SocialLinks) IsZero() bool {
	return l == SocialLinks{}
}

type UserReport struct {
	Address   string    `json:"user_address"`
	ReportID  int64     `json:"report_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ReportRequest is the dedup guard marker for one (project, wallet) pair.
type ReportRequest struct {
	ID          int64         `json:"id"`
	ProjectName string        `json:"project_name"`
	Address     string        `json:"wallet_address"`
	RequestID   string        `json:"request_id"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
