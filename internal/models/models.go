package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleParent Role = "PARENT"
	RoleChild  Role = "CHILD"
)

func (role Role) Valid() bool {
	switch role {
	case RoleParent, RoleChild:
		return true
	}
	return false
}

// HomePath is where a member of this role lands after login.
func (role Role) HomePath() string {
	switch role {
	case RoleParent:
		return "/home/parent"
	case RoleChild:
		return "/home/child"
	}
	return "/login"
}

type Plan string

const (
	PlanFree Plan = "FREE"
	PlanPro  Plan = "PRO"
)

type TaskStatus string

const (
	TaskStatusActive   TaskStatus = "ACTIVE"
	TaskStatusInactive TaskStatus = "INACTIVE"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

type SubmissionStatus string

const (
	SubmissionPending       SubmissionStatus = "PENDING"
	SubmissionApproved      SubmissionStatus = "APPROVED"
	SubmissionRejected      SubmissionStatus = "REJECTED"
	SubmissionNeedsRevision SubmissionStatus = "NEEDS_REVISION"
)

type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "PENDING"
	RedemptionApproved  RedemptionStatus = "APPROVED"
	RedemptionRejected  RedemptionStatus = "REJECTED"
	RedemptionDelivered RedemptionStatus = "DELIVERED"
)

type LedgerKind string

const (
	LedgerCreditTask      LedgerKind = "CREDIT_TASK"
	LedgerCreditAllowance LedgerKind = "CREDIT_ALLOWANCE"
	LedgerDebitPayment    LedgerKind = "DEBIT_PAYMENT"
	LedgerDebitReward     LedgerKind = "DEBIT_REWARD"
	LedgerAdjustment      LedgerKind = "ADJUSTMENT"
)

// IsCredit reports whether entries of this kind add to the balance.
func (kind LedgerKind) IsCredit() bool {
	switch kind {
	case LedgerCreditTask, LedgerCreditAllowance:
		return true
	}
	return false
}

type NotificationKind string

const (
	NotificationNewTask          NotificationKind = "NOVA_TAREFA"
	NotificationTaskPending      NotificationKind = "TAREFA_PENDENTE"
	NotificationTaskApproved     NotificationKind = "TAREFA_APROVADA"
	NotificationTaskRejected     NotificationKind = "TAREFA_REJEITADA"
	NotificationNewReward        NotificationKind = "NOVA_RECOMPENSA"
	NotificationNewRedemption    NotificationKind = "NOVO_RESGATE"
	NotificationRewardDelivered  NotificationKind = "RECOMPENSA_ENTREGUE"
	NotificationRewardRejected   NotificationKind = "RECOMPENSA_REJEITADA"
	NotificationPaymentReceived  NotificationKind = "PAGAMENTO_RECEBIDO"
	NotificationAllowanceGranted NotificationKind = "MESADA_RECEBIDA"
)

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	AvatarURL    string
	CreatedAt    time.Time
}

type Family struct {
	ID        string
	Name      string
	Plan      Plan
	CreatedAt time.Time
}

type Member struct {
	ID        string
	UserID    string
	FamilyID  string
	Role      Role
	XPBalance int
	JoinedAt  time.Time

	// Populated by queries that join users.
	Name      string
	Email     string
	AvatarURL string
}

type Wallet struct {
	ID       string
	MemberID string
	Balance  decimal.Decimal
	Currency string
}

type LedgerEntry struct {
	ID          string
	WalletID    string
	Kind        LedgerKind
	Amount      decimal.Decimal
	Description string
	CreatedAt   time.Time
}

type Progress struct {
	ID           string
	MemberID     string
	LevelXP      int
	CumulativeXP int
	Level        int
	LastTaskAt   *time.Time
}

type Task struct {
	ID            string
	Title         string
	Description   string
	BaseValue     decimal.Decimal
	Status        TaskStatus
	RequiresPhoto bool
	Deadline      *time.Time
	Priority      Priority
	Icon          string
	CreatorID     string
	ExecutorID    *string
	CreatedAt     time.Time
}

type Submission struct {
	ID            string
	TaskID        string
	Status        SubmissionStatus
	Note          string
	PhotoURL      *string
	SubmittedAt   time.Time
	ApprovedAt    *time.Time
	ApprovedValue *decimal.Decimal
}

// SubmissionDetail is a submission joined with its task and executor.
type SubmissionDetail struct {
	Submission
	TaskTitle    string
	TaskIcon     string
	TaskValue    decimal.Decimal
	ExecutorID   string
	ExecutorName string
}

type Reward struct {
	ID          string
	FamilyID    string
	Title       string
	Description string
	CostXP      int
	Active      bool
	CreatorID   string
	CreatedAt   time.Time
}

type Redemption struct {
	ID        string
	RewardID  string
	MemberID  string
	XPPaid    int
	Status    RedemptionStatus
	CreatedAt time.Time
}

// RedemptionDetail is a redemption joined with its reward and member.
type RedemptionDetail struct {
	Redemption
	RewardTitle string
	MemberName  string
	FamilyID    string
	UserID      string
}

type Notification struct {
	ID      string
	UserID  string
	Kind    NotificationKind
	Message string
	SentAt  time.Time
	ReadAt  *time.Time
}

// Identity is the authenticated caller, resolved once per request.
type Identity struct {
	UserID   string
	MemberID string
	FamilyID string
	Role     Role
	Name     string
	Email    string
}

func (identity Identity) IsParent() bool {
	return identity.Role == RoleParent
}

func (identity Identity) IsChild() bool {
	return identity.Role == RoleChild
}
